// Package server is a small scriptable backend speaking the bridge wire
// format. It backs the transport tests and the `bizbridge mock` command.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
)

const (
	writeWait = 10 * time.Second

	// ErrIDUnknownService is replied when no handler matches the request head
	ErrIDUnknownService = 404
)

// Request is what a handler sees for one incoming frame
type Request struct {
	ID   string
	Head models.RequestHead
	Body models.RequestBody[json.RawMessage]
}

// Handler answers a request. It may call Backend.Push for follow-up events.
type Handler func(ctx context.Context, req *Request) models.RawResponse

type peer interface {
	send(msg *models.Message) error
	close()
}

// Backend routes requests by event key and broadcasts pushed events
type Backend struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
	peers    map[peer]struct{}
}

// New creates a backend that answers unknown heads with an error envelope
func New() *Backend {
	return &Backend{
		handlers: make(map[string]Handler),
		peers:    make(map[peer]struct{}),
	}
}

// Handle registers h for head. A later call for the same head replaces it.
func (b *Backend) Handle(head models.RequestHead, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[head.EventKey()] = h
}

// HandleFallback registers the handler used when no head matches
func (b *Backend) HandleFallback(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fallback = h
}

// Push broadcasts an event to every connected peer and returns how many got it
func (b *Backend) Push(head models.RequestHead, resp models.RawResponse) int {
	msg, err := models.NewEvent(head, resp)
	if err != nil {
		logging.Error().Err(err).Msg("push marshal failed")
		return 0
	}

	b.mu.RLock()
	peers := make([]peer, 0, len(b.peers))
	for p := range b.peers {
		peers = append(peers, p)
	}
	b.mu.RUnlock()

	sent := 0
	for _, p := range peers {
		if err := p.send(msg); err != nil {
			logging.Debug().Err(err).Msg("push to peer failed")
			continue
		}
		sent++
	}
	return sent
}

// Peers returns the number of connected peers
func (b *Backend) Peers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

func (b *Backend) addPeer(p peer) {
	b.mu.Lock()
	b.peers[p] = struct{}{}
	b.mu.Unlock()
}

func (b *Backend) removePeer(p peer) {
	b.mu.Lock()
	delete(b.peers, p)
	b.mu.Unlock()
}

// Close disconnects every peer
func (b *Backend) Close() {
	b.mu.Lock()
	peers := b.peers
	b.peers = make(map[peer]struct{})
	b.mu.Unlock()

	for p := range peers {
		p.close()
	}
}

func (b *Backend) handle(ctx context.Context, p peer, msg *models.Message) {
	if msg.Type != models.TypeRequest || msg.Head == nil {
		logging.Debug().Str("type", msg.Type).Msg("ignoring non-request frame")
		return
	}

	req := &Request{ID: msg.ID, Head: *msg.Head}
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &req.Body); err != nil {
			b.reply(p, req, models.RawResponse{
				Error: &models.ResponseError{
					ErrorID:    400,
					ErrorLevel: models.NormalError,
					ErrorDesc:  models.ErrorDesc{Desc: fmt.Sprintf("malformed body: %v", err), Params: []string{}},
				},
			})
			return
		}
	}

	b.mu.RLock()
	h, ok := b.handlers[req.Head.EventKey()]
	if !ok {
		h = b.fallback
	}
	b.mu.RUnlock()

	if h == nil {
		b.reply(p, req, models.RawResponse{
			Error: &models.ResponseError{
				ErrorID:    ErrIDUnknownService,
				ErrorLevel: models.NormalError,
				ErrorDesc: models.ErrorDesc{
					DescKey: true,
					Desc:    "bridge.unknownService",
					Params:  []string{req.Head.ServiceName, req.Head.RequestID},
				},
			},
		})
		return
	}

	b.reply(p, req, h(ctx, req))
}

func (b *Backend) reply(p peer, req *Request, resp models.RawResponse) {
	msg, err := models.NewReply(req.ID, req.Head, resp)
	if err != nil {
		logging.Error().Err(err).Msg("reply marshal failed")
		return
	}
	if err := p.send(msg); err != nil {
		logging.Debug().Err(err).Str("id", req.ID).Msg("reply failed")
	}
}

// Echo is a handler returning the request data unchanged
func Echo(_ context.Context, req *Request) models.RawResponse {
	return models.RawResponse{Error: models.Success(), Data: req.Body.Data}
}

// --- Unix socket side ---

type socketPeer struct {
	mu   sync.Mutex
	conn net.Conn
}

func (p *socketPeer) send(msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err = p.conn.Write(data)
	return err
}

func (p *socketPeer) close() {
	p.conn.Close()
}

// ListenUnix removes a stale socket file and listens on path
func ListenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	return l, nil
}

// Serve accepts connections until ctx is done or l fails
func (b *Backend) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go b.ServeConn(ctx, conn)
	}
}

// ServeConn speaks newline-delimited JSON on conn until it closes
func (b *Backend) ServeConn(ctx context.Context, conn net.Conn) {
	p := &socketPeer{conn: conn}
	b.addPeer(p)
	defer func() {
		b.removePeer(p)
		conn.Close()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Warn().Err(err).Msg("invalid frame from peer")
			continue
		}
		b.handle(ctx, p, &msg)
	}
}

// --- Websocket side ---

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) send(msg *models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(msg)
}

func (p *wsPeer) close() {
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.conn.Close()
}

// ServeHTTP upgrades the request to a websocket and serves frames on it
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(models.MaxFrameSize)

	p := &wsPeer{conn: conn}
	b.addPeer(p)
	defer func() {
		b.removePeer(p)
		conn.Close()
	}()

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				logging.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		b.handle(r.Context(), p, &msg)
	}
}
