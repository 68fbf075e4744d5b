// Package provider turns provider configs into working backends and picks
// the config a session should use.
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/resilience"
)

type LLMFactory func(ctx context.Context, cfg llm.Config) (llm.Provider, error)
type TTSFactory func(cfg tts.Config) (tts.Synthesizer, error)

// Registry maps provider tags to factories. Built providers are wrapped in a
// per-tag breaker that fails fast after repeated rate limits.
type Registry struct {
	mu  sync.Mutex
	llm map[string]LLMFactory
	tts map[string]TTSFactory

	breakers         map[string]*resilience.Breaker
	breakerThreshold int
	breakerCooldown  time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		llm:              make(map[string]LLMFactory),
		tts:              make(map[string]TTSFactory),
		breakers:         make(map[string]*resilience.Breaker),
		breakerThreshold: 3,
		breakerCooldown:  30 * time.Second,
	}
}

// WithBreaker overrides the rate limit breaker parameters.
func (r *Registry) WithBreaker(threshold int, cooldown time.Duration) *Registry {
	r.breakerThreshold = threshold
	r.breakerCooldown = cooldown
	return r
}

func normalize(tag string) string { return strings.ToLower(strings.TrimSpace(tag)) }

func (r *Registry) Register(tag string, factory LLMFactory) {
	r.mu.Lock()
	r.llm[normalize(tag)] = factory
	r.mu.Unlock()
}

func (r *Registry) RegisterTTS(tag string, factory TTSFactory) {
	r.mu.Lock()
	r.tts[normalize(tag)] = factory
	r.mu.Unlock()
}

// Build returns the backend for cfg. A nil config or the "none" tag builds
// llm.Unconfigured.
func (r *Registry) Build(ctx context.Context, cfg *llm.Config) (llm.Provider, error) {
	if cfg == nil || cfg.Tag() == llm.ProviderNone {
		return llm.Unconfigured{}, nil
	}
	tag := cfg.Tag()
	r.mu.Lock()
	fn := r.llm[tag]
	r.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", tag)
	}
	p, err := fn(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	return &guarded{Provider: p, breaker: r.breaker(tag)}, nil
}

// BuildTTS returns nil with no error when synthesis is disabled.
func (r *Registry) BuildTTS(cfg *tts.Config) (tts.Synthesizer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	tag := cfg.Tag()
	r.mu.Lock()
	fn := r.tts[tag]
	r.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", tag)
	}
	return fn(*cfg)
}

func (r *Registry) breaker(tag string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.breakers[tag]
	if b == nil {
		b = resilience.NewBreaker(r.breakerThreshold, r.breakerCooldown)
		r.breakers[tag] = b
	}
	return b
}
