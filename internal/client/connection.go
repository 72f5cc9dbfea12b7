package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
)

var (
	ErrNotConnected  = errors.New("channel not connected")
	ErrClosed        = errors.New("channel closed")
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
)

// inboxSize bounds how far the read loop can run ahead of the consumer
const inboxSize = 64

// Channel is a bidirectional message transport to the backend.
// Messages is closed once the channel stops delivering frames.
type Channel interface {
	Send(ctx context.Context, msg *models.Message) error
	Messages() <-chan *models.Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Connection manages the Unix domain socket connection to the backend.
// Frames are newline-delimited JSON.
type Connection struct {
	socketPath string
	timeout    time.Duration

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader

	maxFrame int

	inbox     chan *models.Message
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
	err       error
}

// NewConnection creates a new connection instance
func NewConnection(socketPath string, timeout time.Duration) *Connection {
	return &Connection{
		socketPath: socketPath,
		timeout:    timeout,
		maxFrame:   models.MaxFrameSize,
		inbox:      make(chan *models.Message, inboxSize),
		done:       make(chan struct{}),
	}
}

// Connect establishes the Unix domain socket connection and starts reading
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.closed {
		return ErrClosed
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	go c.readLoop(conn, c.reader)

	logging.Info().Str("socket", c.socketPath).Msg("connected")
	return nil
}

// Send writes one frame
func (c *Connection) Send(ctx context.Context, msg *models.Message) error {
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
	data = append(data, '\n')

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

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Connection) readLoop(conn net.Conn, reader *bufio.Reader) {
	defer close(c.inbox)

	for {
		line, err := readFrame(reader, c.maxFrame)
		if errors.Is(err, ErrFrameTooLarge) {
			logging.Warn().Int("limit", c.maxFrame).Msg("dropping oversized frame")
			continue
		}
		if err != nil {
			c.shutdown(fmt.Errorf("failed to read frame: %w", err))
			return
		}

		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Warn().Err(err).Int("bytes", len(line)).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.inbox <- &msg:
		case <-c.done:
			return
		}
	}
}

// readFrame reads one newline-terminated frame of at most limit bytes.
// A longer frame is consumed up to its newline and reported as
// ErrFrameTooLarge, so the stream stays in sync.
func readFrame(r *bufio.Reader, limit int) ([]byte, error) {
	var frame []byte
	tooLarge := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLarge {
			if len(frame)+len(chunk) > limit+1 {
				tooLarge = true
				frame = nil
			} else {
				frame = append(frame, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if tooLarge {
			return nil, ErrFrameTooLarge
		}
		return frame, nil
	}
}

func (c *Connection) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		conn := c.conn
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			conn.Close()
		}
		if err != nil && !errors.Is(err, ErrClosed) {
			logging.Warn().Err(err).Str("socket", c.socketPath).Msg("connection lost")
		}
	})
}

// Messages returns incoming frames in arrival order
func (c *Connection) Messages() <-chan *models.Message {
	return c.inbox
}

// Done is closed when the connection ends
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil while it is open
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	started := c.conn != nil
	alreadyClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.shutdown(ErrClosed)
	if !started && !alreadyClosed {
		// readLoop never ran, so nobody else closes the inbox
		close(c.inbox)
	}
	return nil
}

// IsConnected returns true if the connection is established and open
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return false
	default:
		return c.conn != nil
	}
}
