package client

import (
	"context"
	"fmt"
	"time"

	"github.com/atu-ide/bizbridge/internal/logging"
)

const (
	DefaultSocketPath = "/tmp/bizbridge.sock"
	DefaultTimeout    = 30 * time.Second

	KindUnix      = "unix"
	KindWebsocket = "websocket"

	maxBackoff = 10 * time.Second
)

// Options selects and tunes the transport
type Options struct {
	Kind       string // "unix" (default) or "websocket"
	SocketPath string
	URL        string
	Timeout    time.Duration // dial and per-write timeout
	Attempts   int           // connect attempts, at least 1
}

type connector interface {
	Channel
	Connect(ctx context.Context) error
}

// New builds an unconnected channel for opts
func New(opts Options) (Channel, error) {
	c, err := newConnector(opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newConnector(opts Options) (connector, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	switch opts.Kind {
	case "", KindUnix:
		path := opts.SocketPath
		if path == "" {
			path = DefaultSocketPath
		}
		return NewConnection(path, opts.Timeout), nil
	case KindWebsocket:
		if opts.URL == "" {
			return nil, fmt.Errorf("websocket transport needs a url")
		}
		return NewWSConnection(opts.URL, nil, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %s", opts.Kind)
	}
}

// Dial builds a channel and connects it, retrying with exponential backoff
func Dial(ctx context.Context, opts Options) (Channel, error) {
	c, err := newConnector(opts)
	if err != nil {
		return nil, err
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := 500 * time.Millisecond
	for i := 0; i < attempts; i++ {
		err = c.Connect(ctx)
		if err == nil {
			return c, nil
		}
		if i == attempts-1 {
			break
		}
		logging.Warn().Err(err).Int("attempt", i+1).Int("of", attempts).Dur("retry_in", backoff).Msg("connect failed")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.Close()
			return nil, ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	c.Close()
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
}
