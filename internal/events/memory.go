package events

import (
	"context"
	"sync"
)

// Recorded is one event captured by a MemoryPublisher.
type Recorded struct {
	Topic string
	Event any
}

// MemoryPublisher keeps published events in order. FailWith makes every
// following Publish fail, which lets tests exercise the lossy path.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Recorded
	err    error
}

var _ Publisher = (*MemoryPublisher)(nil)

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, Recorded{Topic: topic, Event: event})
	return nil
}

func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Recorded, len(p.events))
	copy(out, p.events)
	return out
}

// Topic returns the events published on topic.
func (p *MemoryPublisher) Topic(topic string) []any {
	var out []any
	for _, r := range p.Events() {
		if r.Topic == topic {
			out = append(out, r.Event)
		}
	}
	return out
}

func (p *MemoryPublisher) Close() error {
	return nil
}
