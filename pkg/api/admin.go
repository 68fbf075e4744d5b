package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

type settingsRequest struct {
	DefaultLLM    map[string]any     `json:"default_llm"`
	PhoneLLM      map[string]any     `json:"phone_llm"`
	OllamaBaseURL string             `json:"ollama_base_url" validate:"omitempty,url"`
	OllamaModel   string             `json:"ollama_model" validate:"max=128"`
	TTS           *speechConfig      `json:"tts"`
	Telephony     settings.Telephony `json:"telephony"`
	PublicBaseURL string             `json:"public_base_url" validate:"omitempty,url"`
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Current().Redacted())
}

// putSettings replaces the snapshot as a whole. Secrets sent back masked
// keep their stored value.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	next := settings.Snapshot{
		OllamaBaseURL: strings.TrimSpace(req.OllamaBaseURL),
		OllamaModel:   strings.TrimSpace(req.OllamaModel),
		Telephony:     req.Telephony,
		PublicBaseURL: strings.TrimSpace(req.PublicBaseURL),
	}
	var err error
	if next.DefaultLLM, err = provider.DecodeLLM(req.DefaultLLM); err != nil {
		s.writeError(w, r, err)
		return
	}
	if next.PhoneLLM, err = provider.DecodeLLM(req.PhoneLLM); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TTS != nil {
		next.TTS = &tts.Config{Provider: req.TTS.Provider, APIKey: req.TTS.APIKey, Model: req.TTS.Model}
	}
	stored, err := s.settings.Update(func(current settings.Snapshot) (settings.Snapshot, error) {
		keepMasked(&next, current)
		return next, nil
	})
	if err != nil {
		s.writeError(w, r, errorsx.Validation("%s", err))
		return
	}
	id, _ := IdentityFrom(r.Context())
	s.logger.Info("settings_replaced",
		slog.String("by", id.UserID),
		slog.String("default_llm", tag(next.DefaultLLM)),
		slog.String("phone_llm", tag(next.PhoneLLM)),
		slog.Bool("telephony_complete", next.Telephony.Complete()))
	writeJSON(w, http.StatusOK, stored.Redacted())
}

func keepMasked(next *settings.Snapshot, current settings.Snapshot) {
	keepLLM(next.DefaultLLM, current.DefaultLLM)
	keepLLM(next.PhoneLLM, current.PhoneLLM)
	if next.TTS != nil && next.TTS.APIKey == settings.Masked {
		next.TTS.APIKey = ""
		if current.TTS != nil && current.TTS.Tag() == next.TTS.Tag() {
			next.TTS.APIKey = current.TTS.APIKey
		}
	}
	if next.Telephony.AuthToken == settings.Masked {
		next.Telephony.AuthToken = current.Telephony.AuthToken
	}
}

func keepLLM(next, current *llm.Config) {
	if next == nil || next.APIKey != settings.Masked {
		return
	}
	next.APIKey = ""
	if current != nil && current.Tag() == next.Tag() {
		next.APIKey = current.APIKey
	}
}

func tag(c *llm.Config) string {
	if c == nil {
		return llm.ProviderNone
	}
	return c.Tag()
}
