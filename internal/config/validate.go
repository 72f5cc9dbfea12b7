package config

import (
	"fmt"
	"net/url"

	"golang.org/x/text/language"

	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/menu"
)

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := validateTransport(&c.Transport); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	if _, err := parseDuration(c.Session.RequestTimeout); err != nil {
		return fmt.Errorf("session: invalid requestTimeout %q: %w", c.Session.RequestTimeout, err)
	}
	if c.RequestTimeout() < 0 {
		return fmt.Errorf("session: requestTimeout must not be negative")
	}

	if c.Locale.Language != "" {
		if _, err := language.Parse(c.Locale.Language); err != nil {
			return fmt.Errorf("locale: invalid language %q: %w", c.Locale.Language, err)
		}
	}
	if c.Locale.Watch && c.Locale.Bundles == "" {
		return fmt.Errorf("locale: watch needs a bundles directory")
	}

	if err := menu.Validate(c.Menus); err != nil {
		return fmt.Errorf("menus: %w", err)
	}

	for service, format := range c.Output {
		switch format {
		case FormatTable, FormatObject, FormatJSON:
		default:
			return fmt.Errorf("output %s: unknown format %q", service, format)
		}
	}

	return nil
}

func validateTransport(t *TransportConfig) error {
	switch t.Kind {
	case "", client.KindUnix:
		if t.URL != "" {
			return fmt.Errorf("url is only used by the websocket transport")
		}
	case client.KindWebsocket:
		if t.URL == "" {
			return fmt.Errorf("websocket transport needs a url")
		}
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
		}
	default:
		return fmt.Errorf("unknown kind: %s", t.Kind)
	}

	if t.ConnectAttempts < 0 {
		return fmt.Errorf("connectAttempts must not be negative")
	}
	d, err := parseDuration(t.DialTimeout)
	if err != nil {
		return fmt.Errorf("invalid dialTimeout %q: %w", t.DialTimeout, err)
	}
	if d < 0 {
		return fmt.Errorf("dialTimeout must not be negative")
	}
	return nil
}
