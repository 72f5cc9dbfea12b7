package bridge

import (
	"sync"

	"github.com/atu-ide/bizbridge/internal/models"
)

type queuedEvent struct {
	key  string
	resp *models.RawResponse
}

// dispatcher delivers events to listeners on its own goroutine, in arrival
// order. Enqueue never blocks, so the reader keeps resolving replies while a
// listener waits on a Fetch of its own.
type dispatcher struct {
	deliver func(key string, resp *models.RawResponse)
	depth   func(delta float64)

	mu     sync.Mutex
	queue  []queuedEvent
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(deliver func(string, *models.RawResponse), depth func(float64)) *dispatcher {
	d := &dispatcher{
		deliver: deliver,
		depth:   depth,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules one event. Events after Close are dropped.
func (d *dispatcher) Enqueue(key string, resp *models.RawResponse) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, queuedEvent{key: key, resp: resp})
	d.mu.Unlock()
	d.depth(1)

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting events. Already queued events are still delivered.
func (d *dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Done is closed after the last queued event has been delivered
func (d *dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, ev := range batch {
			d.depth(-1)
			d.deliver(ev.key, ev.resp)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}
