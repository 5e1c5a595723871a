package position

import (
	"sync"
	"time"
)

const pushReadWindow = 200 * time.Millisecond

// PushSource receives samples and geolocation errors pushed by a client,
// typically a browser over the WebSocket. Pushes never block; when the
// buffer is full the oldest entry is dropped.
type PushSource struct {
	events chan pushEvent
	window time.Duration

	mu        sync.Mutex
	connected bool
}

type pushEvent struct {
	sample *Sample
	err    error
}

func NewPushSource() *PushSource {
	return &PushSource{events: make(chan pushEvent, 16), window: pushReadWindow}
}

func (p *PushSource) Name() string { return "Browser geolocation" }

func (p *PushSource) Connect() error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *PushSource) Close() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// Push queues a sample.
func (p *PushSource) Push(s Sample) {
	p.enqueue(pushEvent{sample: &s})
}

// PushError queues a W3C geolocation error (1 permission denied,
// 2 position unavailable, 3 timeout).
func (p *PushSource) PushError(code Code, message string) {
	switch code {
	case PermissionDenied, PositionUnavailable, Timeout:
	default:
		code = PositionUnavailable
	}
	p.enqueue(pushEvent{err: newError(code, message, nil)})
}

func (p *PushSource) enqueue(ev pushEvent) {
	for {
		select {
		case p.events <- ev:
			return
		default:
		}
		select {
		case <-p.events:
		default:
		}
	}
}

// Read waits up to the read window for the next pushed event.
func (p *PushSource) Read() (*Sample, error) {
	timer := time.NewTimer(p.window)
	defer timer.Stop()
	select {
	case ev := <-p.events:
		return ev.sample, ev.err
	case <-timer.C:
		return nil, nil
	}
}
