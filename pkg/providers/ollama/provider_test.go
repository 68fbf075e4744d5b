package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
)

func TestCompleteUsesNativeChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"llama3.2:3b","message":{"role":"assistant","content":"I'm listening."},"done":true}`))
	}))
	defer srv.Close()

	p := New(srv.URL+"/", "")
	text, err := p.Complete(context.Background(), llm.Request{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens:    150,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "I'm listening." {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Stream {
		t.Fatalf("expected non-streaming request")
	}
	if got.Options == nil || got.Options.NumPredict != 150 {
		t.Fatalf("expected num_predict 150, got %+v", got.Options)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()
	if _, err := New(srv.URL, "missing").Complete(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCompleteWithoutBaseURL(t *testing.T) {
	if _, err := New("", "").Complete(context.Background(), llm.Request{}); err == nil {
		t.Fatalf("expected error")
	}
}
