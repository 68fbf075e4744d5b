package ivr

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/telephony"
)

// Register mounts the voice webhooks on mux.
func (b *Bridge) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+IncomingPath, b.signed(b.handleIncoming))
	mux.HandleFunc("POST "+SelectPath, b.signed(b.handleSelect))
	mux.HandleFunc("POST "+ConversePath, b.signed(b.handleConverse))
	mux.HandleFunc("POST "+StatusPath, b.signed(b.handleStatus))
}

// Handler returns a mux serving only the voice webhooks.
func (b *Bridge) Handler() http.Handler {
	mux := http.NewServeMux()
	b.Register(mux)
	return mux
}

// signed rejects requests whose signature does not match when an auth token
// is configured.
func (b *Bridge) signed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := b.settings.Current()
		if token := snap.Telephony.AuthToken; token != "" && !telephony.ValidateRequest(r, token, snap.PublicBaseURL) {
			b.logger.Warn("twilio_invalid_signature",
				slog.String("path", r.URL.Path),
				slog.String("reason_code", string(errorsx.ReasonTransportInvalidSign)))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		next(w, r)
	}
}

func (b *Bridge) handleIncoming(w http.ResponseWriter, r *http.Request) {
	b.write(w, b.Entry(r.PostFormValue("From"), r.PostFormValue("CallSid")))
}

func (b *Bridge) handleSelect(w http.ResponseWriter, r *http.Request) {
	b.write(w, b.SelectPersona(r.Context(), SelectInput{
		Digits:  r.PostFormValue("Digits"),
		From:    r.PostFormValue("From"),
		CallSID: r.PostFormValue("CallSid"),
	}))
}

func (b *Bridge) handleConverse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attempt, _ := strconv.Atoi(q.Get("attempt"))
	b.write(w, b.Converse(r.Context(), ConverseInput{
		SessionID: q.Get("session"),
		CallSID:   r.PostFormValue("CallSid"),
		Speech:    r.PostFormValue("SpeechResult"),
		Attempt:   attempt,
	}))
}

func (b *Bridge) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.Status(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("CallStatus"))
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bridge) write(w http.ResponseWriter, reply Reply) {
	if err := telephony.Write(w, reply...); err != nil {
		b.logger.Error("twiml_render_failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
