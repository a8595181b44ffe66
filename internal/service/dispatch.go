package service

import (
	"context"
	"sync"

	"tensord/pkg/types"
)

// dispatcher delivers events to the registered callback on a goroutine of
// its own, serialized per handle. The backlog is unbounded: a completed
// result is never subject to backpressure, because dropping one would break
// both delivery order and the at-least-once guarantee.
type dispatcher struct {
	mu     sync.Mutex
	events []types.Event
	wake   chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1)}
}

// push appends an event and nudges the dispatch goroutine. Never blocks.
func (d *dispatcher) push(ev types.Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run delivers queued events until the context is canceled. The callback
// slot is loaded immediately before each invocation, so clearing it stops
// any further deliveries (at most the one in flight completes). Events
// still queued at cancellation are discarded without invoking the callback.
func (d *dispatcher) run(ctx context.Context, s *svc) {
	defer s.wg.Done()
	for {
		for {
			d.mu.Lock()
			if len(d.events) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.events[0]
			d.events = d.events[1:]
			d.mu.Unlock()
			if cbp := s.cb.Load(); cbp != nil {
				invoke(*cbp, ev, s)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
	}
}

// invoke shields the dispatch goroutine from a panicking callback.
func invoke(cb types.EventCallback, ev types.Event, s *svc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("event callback panicked")
		}
	}()
	cb(ev)
}
