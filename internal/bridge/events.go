package bridge

import (
	"fmt"
	"slices"
	"sync"

	"github.com/atu-ide/bizbridge/internal/logging"
	"github.com/atu-ide/bizbridge/internal/models"
)

// AddServerEventListener registers listener for events pushed on event's key.
// Registrations are not deduplicated: adding the same func twice runs it
// twice per event and needs two disposals.
//
// Listeners run one at a time on the bridge's dispatch goroutine, in event
// arrival order. A listener may call Fetch; later events wait until it
// returns.
func (s *Service) AddServerEventListener(event models.RequestHead, listener Listener) (Disposable, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if listener == nil {
		return nil, fmt.Errorf("nil listener for %s", event.EventKey())
	}

	d := s.registry.Add(event.EventKey(), listener)
	s.gaugeListeners(1)

	var once sync.Once
	return DisposeFunc(func() {
		once.Do(func() {
			d.Dispose()
			s.gaugeListeners(-1)
		})
	}), nil
}

// Listen is AddServerEventListener with event data decoded into T
func Listen[T any](s *Service, event models.RequestHead, listener func(*models.Response[T])) (Disposable, error) {
	if listener == nil {
		return nil, fmt.Errorf("nil listener for %s", event.EventKey())
	}
	return s.AddServerEventListener(event, func(raw *models.RawResponse) {
		listener(models.DecodeData[T](raw))
	})
}

// ListenerCount returns how many listeners are registered for event
func (s *Service) ListenerCount(event models.RequestHead) int {
	return s.registry.Count(event.EventKey())
}

// ListenerCounts returns listener counts for every event key with listeners
func (s *Service) ListenerCounts() map[string]int {
	return s.registry.Counts()
}

// dispatch runs every listener registered for key, in registration order,
// on a snapshot so listeners may add or dispose registrations.
func (s *Service) dispatch(key string, resp *models.RawResponse) {
	listeners := s.registry.Snapshot(key)
	if len(listeners) == 0 {
		logging.Debug().Str("event", key).Msg("no listener for event")
		s.countEvent("dropped")
		return
	}
	s.countEvent("delivered")

	for _, l := range listeners {
		s.invoke(key, l, cloneResponse(resp))
	}
}

// cloneResponse gives each listener its own copy of the envelope
func cloneResponse(resp *models.RawResponse) *models.RawResponse {
	r := &models.RawResponse{Data: slices.Clone(resp.Data)}
	if resp.Error != nil {
		e := *resp.Error
		e.ErrorDesc.Params = slices.Clone(e.ErrorDesc.Params)
		r.Error = &e
	}
	return r
}

func (s *Service) invoke(key string, l Listener, resp *models.RawResponse) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error().Str("event", key).Interface("panic", p).Msg("listener panicked")
			if s.metrics != nil {
				s.metrics.ListenerPanics.Inc()
			}
		}
	}()
	l(resp)
}

func (s *Service) countEvent(outcome string) {
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) gaugeListeners(delta float64) {
	if s.metrics != nil {
		s.metrics.Listeners.Add(delta)
	}
}

func (s *Service) gaugeQueued(delta float64) {
	if s.metrics != nil {
		s.metrics.EventsQueued.Add(delta)
	}
}
