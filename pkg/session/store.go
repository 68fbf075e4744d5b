// Package session is the live registry of calls. It owns every CallSession
// mutation and serializes them per session.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

const (
	DefaultGrace   = 60 * time.Second
	defaultJanitor = 30 * time.Second
)

type entry struct {
	// conv is held for a whole exchange (turn, escalation, end).
	conv sync.Mutex
	// mu guards s for individual reads and writes.
	mu sync.RWMutex
	s  CallSession
}

type Store struct {
	cache *cache.Cache
	grace time.Duration
	now   func() time.Time

	mu     sync.Mutex
	owners map[string]string
	calls  map[string]string
}

type Option func(*storeOptions)

type storeOptions struct {
	grace   time.Duration
	janitor time.Duration
	now     func() time.Time
}

// WithGrace sets how long ended sessions stay readable.
func WithGrace(d time.Duration) Option {
	return func(o *storeOptions) { o.grace = d }
}

// WithJanitor sets the eviction sweep interval.
func WithJanitor(d time.Duration) Option {
	return func(o *storeOptions) { o.janitor = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

func NewStore(opts ...Option) *Store {
	o := storeOptions{grace: DefaultGrace, janitor: defaultJanitor, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.grace <= 0 {
		o.grace = DefaultGrace
	}
	s := &Store{
		cache:  cache.New(cache.NoExpiration, o.janitor),
		grace:  o.grace,
		now:    o.now,
		owners: make(map[string]string),
		calls:  make(map[string]string),
	}
	s.cache.OnEvicted(s.unindex)
	return s
}

type CreateParams struct {
	OwnerID      string
	DisplayName  string
	PersonaID    string
	Source       Source
	Provider     *llm.Config
	Speech       *tts.Config
	CallerNumber string
	CallSID      string
	IdleDeadline *time.Time
}

// Create registers a new active session. Browser owners may hold at most one
// non-ended session.
func (s *Store) Create(p CreateParams) (CallSession, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return CallSession{}, errorsx.Validation("owner is required")
	}
	if strings.TrimSpace(p.PersonaID) == "" {
		return CallSession{}, errorsx.Validation("persona is required")
	}
	if p.Source != SourceBrowser && p.Source != SourcePhone {
		return CallSession{}, errorsx.Validation("unknown source %q", p.Source)
	}
	e := &entry{s: CallSession{
		ID:           uuid.NewString(),
		OwnerID:      p.OwnerID,
		DisplayName:  p.DisplayName,
		PersonaID:    p.PersonaID,
		Status:       StatusActive,
		Source:       p.Source,
		Transcript:   []Turn{},
		Notes:        []SupervisorNote{},
		Provider:     p.Provider.Clone(),
		Speech:       p.Speech.Clone(),
		CallerNumber: p.CallerNumber,
		CallSID:      p.CallSID,
		StartedAt:    s.now(),
	}}
	if p.IdleDeadline != nil {
		d := *p.IdleDeadline
		e.s.IdleDeadline = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Source == SourceBrowser {
		if existing, ok := s.owners[p.OwnerID]; ok {
			if _, found := s.cache.Get(existing); found {
				return CallSession{}, errorsx.ErrConflict
			}
		}
		s.owners[p.OwnerID] = e.s.ID
	}
	if p.CallSID != "" {
		s.calls[p.CallSID] = e.s.ID
	}
	s.cache.Set(e.s.ID, e, cache.NoExpiration)
	return e.s.clone(), nil
}

func (s *Store) lookup(id string) (*entry, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, errorsx.NotFound("session", id)
	}
	return v.(*entry), nil
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (CallSession, error) {
	e, err := s.lookup(id)
	if err != nil {
		return CallSession{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.s.clone(), nil
}

// FindByCallID looks up a phone session by its telephony call id.
func (s *Store) FindByCallID(callSID string) (CallSession, error) {
	s.mu.Lock()
	id, ok := s.calls[callSID]
	s.mu.Unlock()
	if !ok {
		return CallSession{}, errorsx.NotFound("call", callSID)
	}
	return s.Get(id)
}

// ActiveForOwner returns the owner's non-ended browser session.
func (s *Store) ActiveForOwner(owner string) (CallSession, error) {
	s.mu.Lock()
	id, ok := s.owners[owner]
	s.mu.Unlock()
	if !ok {
		return CallSession{}, errorsx.NotFound("active session for owner", owner)
	}
	return s.Get(id)
}

// Lock acquires the per-session conversation lock. Sessions never contend
// with each other.
func (s *Store) Lock(id string) (func(), error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.conv.Lock()
	return e.conv.Unlock, nil
}

// AppendTurn appends to the transcript. Timestamps never go backwards
// within one session.
func (s *Store) AppendTurn(id string, role Role, text string) (Turn, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Turn{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status == StatusEnded {
		return Turn{}, errorsx.ErrCallEnded
	}
	at := s.now()
	if n := len(e.s.Transcript); n > 0 && at.Before(e.s.Transcript[n-1].At) {
		at = e.s.Transcript[n-1].At
	}
	t := Turn{Role: role, Text: text, At: at}
	e.s.Transcript = append(e.s.Transcript, t)
	return t, nil
}

func (s *Store) AppendNote(id string, note SupervisorNote) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status == StatusEnded {
		return errorsx.ErrCallEnded
	}
	if note.At.IsZero() {
		note.At = s.now()
	}
	note.Flags = append([]string(nil), note.Flags...)
	e.s.Notes = append(e.s.Notes, note)
	return nil
}

// SetStatus moves the session forward. Use Finish to end it.
func (s *Store) SetStatus(id string, next Status) error {
	if next == StatusEnded {
		_, err := s.Finish(id, "")
		return err
	}
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !CanTransition(e.s.Status, next) {
		return errorsx.ErrInvalidTransition
	}
	e.s.Status = next
	return nil
}

// Finish ends the session and schedules its eviction after the grace window.
func (s *Store) Finish(id, summary string) (CallSession, error) {
	e, err := s.lookup(id)
	if err != nil {
		return CallSession{}, err
	}
	e.mu.Lock()
	if !CanTransition(e.s.Status, StatusEnded) {
		e.mu.Unlock()
		return CallSession{}, errorsx.ErrInvalidTransition
	}
	now := s.now()
	e.s.Status = StatusEnded
	e.s.EndedAt = &now
	e.s.Summary = summary
	e.s.IdleDeadline = nil
	out := e.s.clone()
	e.mu.Unlock()

	s.mu.Lock()
	if s.owners[out.OwnerID] == id {
		delete(s.owners, out.OwnerID)
	}
	s.cache.Set(id, e, s.grace)
	s.mu.Unlock()
	return out, nil
}

// Touch replaces the idle deadline of a live session.
func (s *Store) Touch(id string, deadline time.Time) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s.Status == StatusEnded {
		return errorsx.ErrCallEnded
	}
	e.s.IdleDeadline = &deadline
	return nil
}

// Expired lists live sessions whose idle deadline is before now.
func (s *Store) Expired(now time.Time) []string {
	var out []string
	for id, item := range s.cache.Items() {
		e := item.Object.(*entry)
		e.mu.RLock()
		if e.s.Status != StatusEnded && e.s.IdleDeadline != nil && e.s.IdleDeadline.Before(now) {
			out = append(out, id)
		}
		e.mu.RUnlock()
	}
	return out
}

// Len counts sessions still held, including ended ones in their grace window.
func (s *Store) Len() int { return s.cache.ItemCount() }

func (s *Store) unindex(id string, v interface{}) {
	e, ok := v.(*entry)
	if !ok {
		return
	}
	e.mu.RLock()
	owner, callSID := e.s.OwnerID, e.s.CallSID
	e.mu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[owner] == id {
		delete(s.owners, owner)
	}
	if s.calls[callSID] == id {
		delete(s.calls, callSID)
	}
}
