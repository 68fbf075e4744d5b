// Package events announces call lifecycle changes to other services.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	CallStarted   Type = "call.started"
	CallEscalated Type = "call.escalated"
	CallEnded     Type = "call.ended"
)

// Event is the published payload. It carries no transcript text.
type Event struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	OwnerID   string    `json:"owner_id"`
	PersonaID string    `json:"persona_id"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome,omitempty"`
	Turns     int       `json:"turns,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Memory records events for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types lists the published event types in order.
func (m *Memory) Types() []Type {
	var out []Type
	for _, ev := range m.Events() {
		out = append(out, ev.Type)
	}
	return out
}
