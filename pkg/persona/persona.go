// Package persona holds the static catalog of AI identities a caller can talk to.
package persona

import (
	"fmt"
	"strconv"
	"strings"
)

// Persona is immutable once the registry is built.
type Persona struct {
	ID           string `mapstructure:"id" json:"id"`
	Name         string `mapstructure:"name" json:"name"`
	Specialty    string `mapstructure:"specialty" json:"specialty"`
	Description  string `mapstructure:"description" json:"description"`
	Theme        string `mapstructure:"theme" json:"theme"`
	VoiceID      string `mapstructure:"voice_id" json:"voice_id"`
	SystemPrompt string `mapstructure:"system_prompt" json:"-"`
	Greeting     string `mapstructure:"greeting" json:"greeting"`
}

// Registry is a read-only lookup. The slice order is the phone menu order.
type Registry struct {
	ordered []Persona
	byID    map[string]int
}

// NewRegistry validates and indexes the catalog.
func NewRegistry(personas []Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("persona catalog is empty")
	}
	if len(personas) > 9 {
		return nil, fmt.Errorf("persona catalog has %d entries, the phone menu supports 9", len(personas))
	}
	r := &Registry{
		ordered: make([]Persona, 0, len(personas)),
		byID:    make(map[string]int, len(personas)),
	}
	for _, p := range personas {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("persona id is required")
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("persona %s: name is required", p.ID)
		}
		if strings.TrimSpace(p.SystemPrompt) == "" {
			return nil, fmt.Errorf("persona %s: system_prompt is required", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %s", p.ID)
		}
		r.byID[p.ID] = len(r.ordered)
		r.ordered = append(r.ordered, p)
	}
	return r, nil
}

// Get returns the persona with the given id.
func (r *Registry) Get(id string) (Persona, bool) {
	idx, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Persona{}, false
	}
	return r.ordered[idx], true
}

// List returns the catalog in menu order.
func (r *Registry) List() []Persona {
	out := make([]Persona, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len is the number of personas.
func (r *Registry) Len() int { return len(r.ordered) }

// ByDigit maps a 1-based touch-tone digit to a persona.
func (r *Registry) ByDigit(digit string) (Persona, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(digit))
	if err != nil || n < 1 || n > len(r.ordered) {
		return Persona{}, false
	}
	return r.ordered[n-1], true
}
