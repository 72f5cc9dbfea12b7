package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
)

// WSConnection carries frames as websocket text messages
type WSConnection struct {
	url      string
	header   http.Header
	timeout  time.Duration
	maxFrame int

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn

	inbox     chan *models.Message
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
	err       error
}

// NewWSConnection creates a websocket channel for url
func NewWSConnection(url string, header http.Header, timeout time.Duration) *WSConnection {
	return &WSConnection{
		url:      url,
		header:   header,
		timeout:  timeout,
		maxFrame: models.MaxFrameSize,
		inbox:    make(chan *models.Message, inboxSize),
		done:     make(chan struct{}),
	}
}

// Connect dials the websocket endpoint and starts reading
func (c *WSConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.closed {
		return ErrClosed
	}

	dialer := *websocket.DefaultDialer
	if c.timeout > 0 {
		dialer.HandshakeTimeout = c.timeout
	}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("websocket connect %s: %w", c.url, err)
	}
	conn.SetReadLimit(int64(c.maxFrame))
	c.conn = conn

	go c.readLoop(conn)

	logging.Info().Str("url", c.url).Msg("connected")
	return nil
}

// Send writes one frame as a text message
func (c *WSConnection) Send(ctx context.Context, msg *models.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *WSConnection) readLoop(conn *websocket.Conn) {
	defer close(c.inbox)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				err = fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, c.maxFrame)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				err = ErrClosed
			}
			c.shutdown(err)
			return
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.inbox <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *WSConnection) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		conn := c.conn
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			// WriteControl may run concurrently with WriteMessage
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
		if err != nil && !errors.Is(err, ErrClosed) {
			logging.Warn().Err(err).Str("url", c.url).Msg("websocket lost")
		}
	})
}

// Messages returns incoming frames in arrival order
func (c *WSConnection) Messages() <-chan *models.Message {
	return c.inbox
}

// Done is closed when the connection ends
func (c *WSConnection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended
func (c *WSConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and tears the connection down
func (c *WSConnection) Close() error {
	c.mu.Lock()
	started := c.conn != nil
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.shutdown(ErrClosed)
	if !started && !alreadyClosed {
		close(c.inbox)
	}
	return nil
}
