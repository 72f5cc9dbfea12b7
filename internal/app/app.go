// Package app wires the bridge and its collaborators from a Config and
// hands them to commands as one Services value.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atu-ide/bizbridge/internal/bridge"
	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/config"
	"github.com/atu-ide/bizbridge/internal/i18n"
	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
	"github.com/atu-ide/bizbridge/internal/notify"
	"github.com/atu-ide/bizbridge/internal/output"
	"github.com/atu-ide/bizbridge/internal/pagemap"
)

// Options tune how New builds the services
type Options struct {
	// Out receives console notifications; nil means stderr
	Out     io.Writer
	NoColor bool
	// Dial overrides client.Dial, mainly for tests
	Dial func(ctx context.Context, opts client.Options) (client.Channel, error)
}

// Services is everything a command needs to talk to the backend
type Services struct {
	Config    *config.Config
	Channel   client.Channel
	Bridge    *bridge.Service
	Notifier  notify.Notifier
	Localizer *i18n.Catalog
	Renderers *pagemap.Registry[string, output.Renderer]
	Metrics   *bridge.Metrics
	Registry  *prometheus.Registry

	stopWatch context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
}

var formats = map[string]output.Renderer{
	config.FormatTable:  output.PrintResponseTable,
	config.FormatObject: output.PrintObjectTable,
	config.FormatJSON:   output.PrintResponseJSON,
}

// New builds the services in dependency order. On failure everything
// already started is torn down again.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{Config: cfg}

	// Step 1: metrics registry
	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(collectors.NewGoCollector())
	s.Metrics = bridge.InitMetrics(s.Registry)

	// Step 2: localization
	catalog, err := i18n.NewCatalog(cfg.Locale.Language)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}
	if cfg.Locale.Bundles != "" {
		if err := catalog.LoadDir(cfg.Locale.Bundles); err != nil {
			return nil, fmt.Errorf("locale: %w", err)
		}
	}
	s.Localizer = catalog

	// Step 3: renderers per service
	s.Renderers = pagemap.New[string, output.Renderer]()
	for service, format := range cfg.Output {
		r, ok := formats[format]
		if !ok {
			return nil, fmt.Errorf("output %s: unknown format %q", service, format)
		}
		if _, err := s.Renderers.Register(service, r); err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
	}

	// Step 4: notification sinks
	s.Notifier = notify.Multi{notify.NewConsole(opts.Out, opts.NoColor), notify.Log{}}

	// Step 5: channel
	dial := opts.Dial
	if dial == nil {
		dial = client.Dial
	}
	ch, err := dial(ctx, cfg.ClientOptions())
	if err != nil {
		return nil, err
	}
	s.Channel = ch

	// Step 6: bridge
	s.Bridge = bridge.New(ch,
		bridge.WithNotifier(s.Notifier),
		bridge.WithLocalizer(s.Localizer),
		bridge.WithMetrics(s.Metrics),
	)

	// Step 7: bundle hot reload (optional)
	if cfg.Locale.Watch {
		wctx, cancel := context.WithCancel(context.Background())
		s.stopWatch = cancel
		s.watchDone = make(chan struct{})
		go func() {
			defer close(s.watchDone)
			err := catalog.Watch(wctx, func(err error) {
				if err == nil {
					logging.Info().Str("locale", catalog.Locale().String()).Msg("bundles reloaded")
				}
			})
			if err != nil {
				logging.Warn().Err(err).Msg("bundle watch stopped")
			}
		}()
	}

	logging.Info().
		Str("transport", cfg.Transport.Kind).
		Str("locale", catalog.Locale().String()).
		Int("renderers", len(cfg.Output)).
		Msg("services ready")

	return s, nil
}

// Renderer returns the renderer configured for service, or the table
// renderer when none is registered
func (s *Services) Renderer(service string) output.Renderer {
	if r, err := s.Renderers.Get(service); err == nil {
		return r
	}
	return output.PrintResponseTable
}

// Render prints resp with the renderer registered for its service
func (s *Services) Render(w io.Writer, head models.RequestHead, resp *models.RawResponse) error {
	return s.Renderer(head.ServiceName)(w, head, resp)
}

// RequestOptions returns per-request options derived from the session config
func (s *Services) RequestOptions(ignoreError bool) *bridge.RequestOptions {
	return &bridge.RequestOptions{
		IgnoreError: ignoreError,
		Timeout:     s.Config.RequestTimeout(),
	}
}

// MetricsHandler serves the services' Prometheus registry
func (s *Services) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}

// Close tears the services down in reverse order of construction
func (s *Services) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopWatch != nil {
			s.stopWatch()
			<-s.watchDone
		}
		if s.Bridge != nil {
			if cerr := s.Bridge.Close(); cerr != nil && !errors.Is(cerr, client.ErrClosed) {
				err = cerr
			}
		}
	})
	return err
}
