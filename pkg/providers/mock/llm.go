package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

// Rule replies with Reply when the last user message contains Contains
// (case-insensitive).
type Rule struct {
	Contains string `mapstructure:"contains"`
	Reply    string `mapstructure:"reply"`
}

type LLMConfig struct {
	ResponseText string
	Rules        []Rule
	// Err, when set, is returned by every call.
	Err error
}

// LLMAdapter is a deterministic backend for local runs and tests.
type LLMAdapter struct {
	cfg LLMConfig

	mu       sync.Mutex
	requests []llm.Request
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return llm.ProviderMock }

func (a *LLMAdapter) Complete(ctx context.Context, input llm.Request) (string, error) {
	a.mu.Lock()
	a.requests = append(a.requests, input)
	a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.cfg.Err != nil {
		return "", a.cfg.Err
	}
	last := ""
	for i := len(input.Messages) - 1; i >= 0; i-- {
		if input.Messages[i].Role == llm.RoleUser {
			last = strings.ToLower(input.Messages[i].Content)
			break
		}
	}
	for _, r := range a.cfg.Rules {
		if r.Contains != "" && strings.Contains(last, strings.ToLower(r.Contains)) {
			return r.Reply, nil
		}
	}
	return a.cfg.ResponseText, nil
}

// Requests returns every request seen so far.
func (a *LLMAdapter) Requests() []llm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

var _ llm.Provider = (*LLMAdapter)(nil)
