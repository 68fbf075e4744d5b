package deepgram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/speak/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/speak"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
)

const DefaultModel = "aura-asteria-en"

type Config struct {
	APIKey string
	Model  string
}

// Speaker renders text through Deepgram's Aura REST endpoint.
type Speaker struct {
	cfg Config
	dg  *api.Client
}

func NewSpeaker(cfg Config) (*Speaker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.Wrap(tts.ErrNotConfigured, errorsx.ReasonTTSNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	return &Speaker{cfg: cfg, dg: api.New(c)}, nil
}

func (s *Speaker) Name() string { return "deepgram" }

// Synthesize ignores voiceID when it does not name an Aura model; persona
// voices are ElevenLabs identifiers.
func (s *Speaker) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errorsx.Wrap(errors.New("empty text"), errorsx.ReasonTTSSynthesize)
	}
	model := s.cfg.Model
	if strings.HasPrefix(voiceID, "aura-") {
		model = voiceID
	}
	var buf interfaces.RawResponse
	if _, err := s.dg.ToStream(ctx, text, &interfaces.SpeakOptions{Model: model}, &buf); err != nil {
		slog.Warn("deepgram speak failed", "model", model, "error", err)
		return nil, errorsx.Wrapf(err, errorsx.ReasonTTSSynthesize, "deepgram speak")
	}
	out := buf.Bytes()
	if len(out) == 0 {
		return nil, errorsx.Wrap(errors.New("deepgram returned no audio"), errorsx.ReasonTTSSynthesize)
	}
	return out, nil
}

var _ tts.Synthesizer = (*Speaker)(nil)
