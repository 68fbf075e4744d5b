// Package settings holds the process-wide credentials snapshot read on every
// request and replaced as a whole by the admin operation.
package settings

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

// Telephony carries the four values escalation needs.
type Telephony struct {
	AccountSID     string `mapstructure:"account_sid" json:"account_sid"`
	AuthToken      string `mapstructure:"auth_token" json:"auth_token"`
	FromNumber     string `mapstructure:"from_number" json:"from_number"`
	OperatorNumber string `mapstructure:"operator_number" json:"operator_number"`
}

// Complete reports whether all four values are present.
func (t Telephony) Complete() bool {
	return strings.TrimSpace(t.AccountSID) != "" &&
		strings.TrimSpace(t.AuthToken) != "" &&
		strings.TrimSpace(t.FromNumber) != "" &&
		strings.TrimSpace(t.OperatorNumber) != ""
}

// Missing lists the names of absent values.
func (t Telephony) Missing() []string {
	var out []string
	if strings.TrimSpace(t.AccountSID) == "" {
		out = append(out, "account_sid")
	}
	if strings.TrimSpace(t.AuthToken) == "" {
		out = append(out, "auth_token")
	}
	if strings.TrimSpace(t.FromNumber) == "" {
		out = append(out, "from_number")
	}
	if strings.TrimSpace(t.OperatorNumber) == "" {
		out = append(out, "operator_number")
	}
	return out
}

// Snapshot is treated as immutable once stored.
type Snapshot struct {
	DefaultLLM    *llm.Config `json:"default_llm,omitempty"`
	PhoneLLM      *llm.Config `json:"phone_llm,omitempty"`
	OllamaBaseURL string      `json:"ollama_base_url,omitempty"`
	OllamaModel   string      `json:"ollama_model,omitempty"`
	TTS           *tts.Config `json:"tts,omitempty"`
	Telephony     Telephony   `json:"telephony"`
	PublicBaseURL string      `json:"public_base_url,omitempty"`
}

// Validate rejects unknown provider tags.
func (s Snapshot) Validate() error {
	for name, cfg := range map[string]*llm.Config{"default_llm": s.DefaultLLM, "phone_llm": s.PhoneLLM} {
		if cfg == nil {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if s.TTS != nil {
		switch s.TTS.Tag() {
		case "", "none", "mock", "elevenlabs", "deepgram":
		default:
			return fmt.Errorf("tts: unknown provider %q", s.TTS.Provider)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.DefaultLLM = s.DefaultLLM.Clone()
	out.PhoneLLM = s.PhoneLLM.Clone()
	out.TTS = s.TTS.Clone()
	return out
}

// Masked replaces secrets in redacted views. Writing it back keeps the
// stored value.
const Masked = "***"

// Redacted masks every secret for display.
func (s Snapshot) Redacted() Snapshot {
	out := s.Clone()
	out.DefaultLLM = out.DefaultLLM.Redacted()
	out.PhoneLLM = out.PhoneLLM.Redacted()
	if out.TTS != nil && out.TTS.APIKey != "" {
		out.TTS.APIKey = Masked
	}
	if out.Telephony.AuthToken != "" {
		out.Telephony.AuthToken = Masked
	}
	return out
}

// Store guards the current snapshot.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore validates and stores the initial snapshot.
func NewStore(initial Snapshot) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Store{snap: initial.Clone()}, nil
}

// Current returns a private copy of the active snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Replace swaps in next as a whole. Invalid snapshots leave the current one untouched.
func (s *Store) Replace(next Snapshot) error {
	_, err := s.Update(func(Snapshot) (Snapshot, error) { return next, nil })
	return err
}

// Update derives the next snapshot from the current one under the write
// lock, so concurrent updates never build on a stale view. An error from fn
// or from validation leaves the current snapshot untouched.
func (s *Store) Update(fn func(cur Snapshot) (Snapshot, error)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.snap.Clone())
	if err != nil {
		return Snapshot{}, err
	}
	if err := next.Validate(); err != nil {
		return Snapshot{}, err
	}
	s.snap = next.Clone()
	return s.snap.Clone(), nil
}
