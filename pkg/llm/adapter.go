package llm

import (
	"context"
	"errors"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the ordered conversation sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion call. Backends receive the system prompt
// separately from the ordered messages.
type Request struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

// Provider is implemented once per LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNotConfigured is returned by Unconfigured for every call.
var ErrNotConfigured = errors.New("no llm provider configured")

// Unconfigured is the provider used when resolution finds no backend.
type Unconfigured struct{}

func (Unconfigured) Name() string { return "none" }

func (Unconfigured) Complete(context.Context, Request) (string, error) {
	return "", errorsx.Wrap(ErrNotConfigured, errorsx.ReasonLLMNotConfigured)
}

// IsUnconfigured reports whether p is the fail-fast provider.
func IsUnconfigured(p Provider) bool {
	if p == nil {
		return true
	}
	_, ok := p.(Unconfigured)
	return ok
}

var _ Provider = Unconfigured{}
