package api

import (
	"net/http"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/dialogue"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/provider"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
)

type startRequest struct {
	PersonaID string         `json:"persona_id" validate:"required,max=64"`
	Provider  map[string]any `json:"provider"`
	Speech    *speechConfig  `json:"tts"`
}

type speechConfig struct {
	Provider string `json:"provider" validate:"required,oneof=none mock elevenlabs deepgram"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type startResponse struct {
	Session  session.CallSession `json:"session"`
	Greeting string              `json:"greeting"`
}

type turnRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type escalateRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type personaView struct {
	Digit int `json:"digit"`
	persona.Persona
}

func (s *Server) startCall(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	llmCfg, err := provider.DecodeLLM(req.Provider)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	params := dialogue.StartParams{
		OwnerID:     id.UserID,
		DisplayName: id.Name,
		PersonaID:   req.PersonaID,
		Provider:    llmCfg,
	}
	if req.Speech != nil {
		params.Speech = &tts.Config{Provider: req.Speech.Provider, APIKey: req.Speech.APIKey, Model: req.Speech.Model}
	}
	sess, err := s.calls.Start(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, _ := s.personas.Get(sess.PersonaID)
	writeJSON(w, http.StatusCreated, startResponse{Session: sess, Greeting: p.Greeting})
}

func (s *Server) getCall(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	sess, err := s.calls.Transcript(r.PathValue("id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) sendTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	res, err := s.calls.ProcessTurn(r.Context(), r.PathValue("id"), id.UserID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) endCall(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	sess, err := s.calls.End(r.Context(), r.PathValue("id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) escalateCall(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	res, err := s.calls.Escalate(r.Context(), r.PathValue("id"), id.UserID, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listPersonas(w http.ResponseWriter, _ *http.Request) {
	list := s.personas.List()
	out := make([]personaView, 0, len(list))
	for i, p := range list {
		out = append(out, personaView{Digit: i + 1, Persona: p})
	}
	writeJSON(w, http.StatusOK, out)
}
