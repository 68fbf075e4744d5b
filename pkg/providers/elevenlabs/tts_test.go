package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
)

func TestSynthesizeCollectsChunks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		gotPath = r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("def"))})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/{voice_id}/stream-input"
	s := New(Config{APIKey: "xi-key", WSBase: base})
	audio, err := s.Synthesize(context.Background(), "voice-1", "Hello there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "abcdef" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if gotKey != "xi-key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotPath != "/v1/text-to-speech/voice-1/stream-input" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestSynthesizeWithoutKey(t *testing.T) {
	_, err := New(Config{}).Synthesize(context.Background(), "v", "hi")
	if !errors.Is(err, tts.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
