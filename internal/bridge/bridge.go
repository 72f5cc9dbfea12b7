// Package bridge correlates requests with backend replies over a shared
// channel and fans pushed events out to listeners keyed by event key.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/i18n"
	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
	"github.com/atu-ide/bizbridge/internal/notify"
)

// RequestOptions tunes a single fetch
type RequestOptions struct {
	// IgnoreError suppresses routing a failed response to ShowErrorMessage
	IgnoreError bool
	// Timeout bounds the wait for a reply; zero waits until ctx is done
	Timeout time.Duration
}

// ShouldReport tells a caller whether e should go to ShowErrorMessage
func (o *RequestOptions) ShouldReport(e *models.ResponseError) bool {
	return (o == nil || !o.IgnoreError) && e.IsError()
}

// Service is the request/event bridge over one channel
type Service struct {
	ch        client.Channel
	notifier  notify.Notifier
	localizer i18n.Localizer
	metrics   *Metrics
	registry  *Registry
	events    *dispatcher
	newID     func() string

	mu      sync.Mutex
	pending map[string]chan *models.RawResponse
	closed  bool
	done    chan struct{}
}

// Option configures a Service
type Option func(*Service)

// WithNotifier sets where ShowErrorMessage sends messages
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLocalizer sets how description keys are resolved
func WithLocalizer(l i18n.Localizer) Option {
	return func(s *Service) { s.localizer = l }
}

// WithMetrics records fetches, events and listeners in m
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithIDGenerator replaces the uuid correlation id source
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// New starts a bridge reading from ch. ch must already be connected.
func New(ch client.Channel, opts ...Option) *Service {
	s := &Service{
		ch:       ch,
		notifier: notify.Log{},
		registry: NewRegistry(),
		newID:    func() string { return uuid.New().String() },
		pending:  make(map[string]chan *models.RawResponse),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = newDispatcher(s.dispatch, s.gaugeQueued)

	go s.pump()
	return s
}

// Done is closed once the channel has stopped and pending fetches are failed
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Close closes the channel and waits for the reader to drain. Events
// already queued for listeners may still be delivered after Close returns.
func (s *Service) Close() error {
	err := s.ch.Close()
	<-s.done
	return err
}

func (s *Service) pump() {
	defer close(s.done)

	for msg := range s.ch.Messages() {
		s.route(msg)
	}
	s.failPending()
	s.events.Close()
}

func (s *Service) route(msg *models.Message) {
	switch msg.Type {
	case models.TypeResponse:
		resp, err := msg.DecodeResponse()
		if err != nil {
			resp = &models.RawResponse{Error: models.LocalError(models.ErrIDDecode, err.Error())}
		}
		s.resolve(msg.ID, resp)
	case models.TypeEvent:
		if msg.Head == nil {
			logging.Warn().Msg("dropping event without head")
			return
		}
		resp, err := msg.DecodeResponse()
		if err != nil {
			logging.Warn().Err(err).Str("event", msg.Head.EventKey()).Msg("dropping undecodable event")
			return
		}
		s.events.Enqueue(msg.Head.EventKey(), resp)
	default:
		logging.Debug().Str("type", msg.Type).Msg("ignoring frame")
	}
}

func (s *Service) resolve(id string, resp *models.RawResponse) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		logging.Debug().Str("id", id).Msg("reply for unknown or abandoned request")
		return
	}
	ch <- resp
}

func (s *Service) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
}

// Fetch sends one request and waits for its reply, decoding data into T.
//
// Backend failures come back as a Response with a nonzero error_id. The
// error return is reserved for cases where no envelope can be produced:
// invalid head or body, channel not usable, write failure, ctx done.
func Fetch[T any, D any](ctx context.Context, s *Service, head models.RequestHead, body models.RequestBody[D], opts *RequestOptions) (*models.Response[T], error) {
	if err := body.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.roundTrip(ctx, head, body, opts)
	if err != nil {
		return nil, err
	}
	return models.DecodeData[T](raw), nil
}

// FetchRaw is Fetch without decoding, for callers that only pass data through
func (s *Service) FetchRaw(ctx context.Context, head models.RequestHead, body models.RequestBody[json.RawMessage], opts *RequestOptions) (*models.RawResponse, error) {
	if err := body.Validate(); err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, head, body, opts)
}

func (s *Service) roundTrip(ctx context.Context, head models.RequestHead, body any, opts *RequestOptions) (*models.RawResponse, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	msg, err := models.NewRequest(id, head, body)
	if err != nil {
		return nil, err
	}

	reply := make(chan *models.RawResponse, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.observe(head, outcomeTransport, 0)
		return nil, client.ErrClosed
	}
	s.pending[id] = reply
	s.mu.Unlock()
	s.gaugePending(1)

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.gaugePending(-1)
	}()

	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.ch.Send(ctx, msg); err != nil {
		s.observe(head, outcomeTransport, 0)
		return nil, fmt.Errorf("send %s: %w", head.EventKey(), err)
	}
	logging.Debug().Str("id", id).Str("event", head.EventKey()).Msg("request sent")

	select {
	case resp, ok := <-reply:
		switch {
		case !ok:
			resp = &models.RawResponse{Error: models.LocalError(models.ErrIDChannelClosed, "channel closed before reply")}
		case resp.Error == nil:
			logging.Warn().Str("id", id).Str("event", head.EventKey()).Msg("reply without error object")
			resp.Error = models.LocalError(models.ErrIDNoError, "reply carried no error object")
		}
		outcome := outcomeOK
		if !models.IsSuccess(resp) {
			outcome = outcomeBusiness
		}
		s.observe(head, outcome, time.Since(start))
		return resp, nil
	case <-ctx.Done():
		s.observe(head, outcomeTransport, 0)
		return nil, fmt.Errorf("request %s cancelled or timed out: %w", head.EventKey(), ctx.Err())
	}
}

func (s *Service) observe(head models.RequestHead, outcome string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.FetchTotal.WithLabelValues(head.ServiceName, outcome).Inc()
	if elapsed > 0 {
		s.metrics.FetchDuration.WithLabelValues(head.ServiceName).Observe(elapsed.Seconds())
	}
}

func (s *Service) gaugePending(delta float64) {
	if s.metrics != nil {
		s.metrics.PendingRequests.Add(delta)
	}
}
