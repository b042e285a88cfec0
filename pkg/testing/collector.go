package testing

import (
	"context"
	"sync"

	"github.com/jllopis/avalon/pkg/engine"
)

// EventCollector records match events in order. It implements
// engine.EventEmitter.
type EventCollector struct {
	mu     sync.Mutex
	events []engine.Event
}

func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements engine.EventEmitter.
func (c *EventCollector) Emit(_ context.Context, ev engine.Event) {
	c.Collect(ev)
}

func (c *EventCollector) Collect(ev engine.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of everything collected.
func (c *EventCollector) Events() []engine.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.Event(nil), c.events...)
}

func (c *EventCollector) EventTypes() []engine.EventType {
	evs := c.Events()
	types := make([]engine.EventType, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type
	}
	return types
}

// Phases is the sequence of phases entered, from PhaseChanged events.
func (c *EventCollector) Phases() []engine.Phase {
	var out []engine.Phase
	for _, ev := range c.Events() {
		if ev.Type == engine.EventPhaseChanged {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func (c *EventCollector) HasEvent(t engine.EventType) bool {
	for _, ev := range c.Events() {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func (c *EventCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *EventCollector) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
