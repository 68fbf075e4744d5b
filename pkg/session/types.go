package session

import (
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusEnded     Status = "ended"
)

// CanTransition reports whether from → to is a legal forward move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusEscalated || to == StatusEnded
	case StatusEscalated:
		return to == StatusEnded
	default:
		return false
	}
}

type Source string

const (
	SourceBrowser Source = "browser"
	SourcePhone   Source = "phone"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Turn is immutable once appended.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type SupervisorNote struct {
	Severity         Severity  `json:"severity"`
	Sentiment        string    `json:"sentiment"`
	Flags            []string  `json:"flags"`
	EscalationNeeded bool      `json:"escalation_needed"`
	Reason           string    `json:"reason"`
	At               time.Time `json:"at"`
}

// HasFlag reports whether flag is set on the note.
func (n SupervisorNote) HasFlag(flag string) bool {
	for _, f := range n.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Notable reports whether the note is worth surfacing to the caller.
func (n SupervisorNote) Notable() bool {
	return n.Severity == SeverityMedium || n.Severity == SeverityHigh || n.EscalationNeeded
}

// Critical reports whether the note demands escalation.
func (n SupervisorNote) Critical() bool {
	return n.Severity == SeverityHigh && n.EscalationNeeded
}

type CallSession struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
	PersonaID   string `json:"persona_id"`
	Status      Status `json:"status"`
	Source      Source `json:"source"`

	Transcript []Turn           `json:"transcript"`
	Notes      []SupervisorNote `json:"supervisor_notes"`

	// Credentials are never serialized.
	Provider *llm.Config `json:"-"`
	Speech   *tts.Config `json:"-"`

	CallerNumber string     `json:"caller_number,omitempty"`
	CallSID      string     `json:"call_sid,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Summary      string     `json:"summary,omitempty"`

	IdleDeadline *time.Time `json:"-"`
}

// ProviderName is the resolved backend tag, or "none".
func (s CallSession) ProviderName() string {
	if s.Provider == nil {
		return llm.ProviderNone
	}
	return s.Provider.Tag()
}

// LastUserText returns the most recent user utterance.
func (s CallSession) LastUserText() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleUser {
			return s.Transcript[i].Text
		}
	}
	return ""
}

func (s CallSession) clone() CallSession {
	out := s
	out.Transcript = append([]Turn(nil), s.Transcript...)
	out.Notes = make([]SupervisorNote, len(s.Notes))
	for i, n := range s.Notes {
		n.Flags = append([]string(nil), n.Flags...)
		out.Notes[i] = n
	}
	out.Provider = s.Provider.Clone()
	out.Speech = s.Speech.Clone()
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.IdleDeadline != nil {
		t := *s.IdleDeadline
		out.IdleDeadline = &t
	}
	return out
}
