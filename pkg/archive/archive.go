// Package archive persists ended calls. Each call is written once, at end of call.
package archive

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

// Archive stores ended sessions.
type Archive interface {
	Save(ctx context.Context, s session.CallSession) error
}

// Record is the durable shape of an ended call. Credentials never reach it.
type Record struct {
	ID           string                   `json:"id"`
	OwnerID      string                   `json:"owner_id"`
	DisplayName  string                   `json:"display_name"`
	PersonaID    string                   `json:"persona_id"`
	Source       session.Source           `json:"source"`
	Status       session.Status           `json:"status"`
	Provider     string                   `json:"provider"`
	CallerNumber string                   `json:"caller_number,omitempty"`
	CallSID      string                   `json:"call_sid,omitempty"`
	Transcript   []session.Turn           `json:"transcript"`
	Notes        []session.SupervisorNote `json:"supervisor_notes"`
	Summary      string                   `json:"summary"`
	StartedAt    time.Time                `json:"started_at"`
	EndedAt      time.Time                `json:"ended_at"`
}

// NewRecord flattens a session.
func NewRecord(s session.CallSession) Record {
	r := Record{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		DisplayName:  s.DisplayName,
		PersonaID:    s.PersonaID,
		Source:       s.Source,
		Status:       s.Status,
		Provider:     s.ProviderName(),
		CallerNumber: s.CallerNumber,
		CallSID:      s.CallSID,
		Transcript:   s.Transcript,
		Notes:        s.Notes,
		Summary:      s.Summary,
		StartedAt:    s.StartedAt,
	}
	if s.EndedAt != nil {
		r.EndedAt = *s.EndedAt
	}
	if r.Transcript == nil {
		r.Transcript = []session.Turn{}
	}
	if r.Notes == nil {
		r.Notes = []session.SupervisorNote{}
	}
	return r
}

func (r Record) marshal() ([]byte, error) { return json.Marshal(r) }

// Discard drops every record.
type Discard struct{}

func (Discard) Save(context.Context, session.CallSession) error { return nil }

// Memory keeps records in process; used in tests and local runs.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(ctx context.Context, s session.CallSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records = append(m.records, NewRecord(s))
	m.mu.Unlock()
	return nil
}

// Records returns a copy of everything saved.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
