package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

func TestConfigUsable(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
		want bool
	}{
		{"nil", nil, false},
		{"none", &Config{Provider: "none"}, false},
		{"unknown", &Config{Provider: "bard", APIKey: "k"}, false},
		{"openai without key", &Config{Provider: "openai"}, false},
		{"openai", &Config{Provider: " OpenAI ", APIKey: "k"}, true},
		{"ollama without url", &Config{Provider: "ollama"}, false},
		{"ollama", &Config{Provider: "ollama", BaseURL: "http://localhost:11434"}, true},
		{"kaggle", &Config{Provider: "kaggle", BaseURL: "https://x.ngrok.app/v1"}, true},
		{"mock", &Config{Provider: "mock"}, true},
	}
	for _, tc := range cases {
		if got := tc.cfg.Usable(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRedactedDoesNotMutate(t *testing.T) {
	cfg := &Config{Provider: "groq", APIKey: "secret"}
	red := cfg.Redacted()
	if red.APIKey != "***" {
		t.Fatalf("expected redacted key")
	}
	if cfg.APIKey != "secret" {
		t.Fatalf("original mutated")
	}
}

func TestUnconfiguredFailsFast(t *testing.T) {
	_, err := Unconfigured{}.Complete(context.Background(), Request{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if errorsx.Reason(err) != errorsx.ReasonLLMNotConfigured {
		t.Fatalf("expected reason, got %s", errorsx.Reason(err))
	}
	if !IsUnconfigured(Unconfigured{}) || !IsUnconfigured(nil) {
		t.Fatalf("expected unconfigured")
	}
}
