package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

func TestLLMAdapterRules(t *testing.T) {
	a := NewLLMAdapter(LLMConfig{
		ResponseText: "default",
		Rules:        []Rule{{Contains: "HELP", Reply: "I'm here."}},
	})
	text, err := a.Complete(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "please help me"},
	}})
	if err != nil || text != "I'm here." {
		t.Fatalf("unexpected %q %v", text, err)
	}
	text, _ = a.Complete(context.Background(), llm.Request{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "hello"},
	}})
	if text != "default" {
		t.Fatalf("expected default, got %q", text)
	}
	if n := len(a.Requests()); n != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", n)
	}
}

func TestLLMAdapterError(t *testing.T) {
	boom := errors.New("boom")
	a := NewLLMAdapter(LLMConfig{Err: boom})
	if _, err := a.Complete(context.Background(), llm.Request{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
