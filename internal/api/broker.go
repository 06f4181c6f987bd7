package api

import (
	"sync"

	"harborplan/internal/planner"
)

// EventBroker fans run events out to stream subscribers keyed by run id.
type EventBroker interface {
	Subscribe(runID string) chan planner.Event
	Unsubscribe(runID string, ch chan planner.Event)
	Publish(runID string, evt planner.Event)
	Close() error
}

// Broker is the in-process EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan planner.Event]struct{} // runID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan planner.Event]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan planner.Event {
	ch := make(chan planner.Event, 16)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan planner.Event]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan planner.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(runID string, evt planner.Event) {
	b.mu.Lock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Broker) Close() error { return nil }
