// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/dkeye/vlink/internal/events"
)

type Published struct {
	Topic string
	Event any
}

// Recorder keeps every published event in order.
type Recorder struct {
	mu  sync.Mutex
	log []Published
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(ctx context.Context, topic string, event any) error {
	r.mu.Lock()
	r.log = append(r.log, Published{Topic: topic, Event: event})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	for i, p := range r.log {
		out[i] = p.Topic
	}
	return out
}

func (r *Recorder) Events(topic string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, p := range r.log {
		if p.Topic == topic {
			out = append(out, p.Event)
		}
	}
	return out
}
