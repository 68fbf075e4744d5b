package mock

import (
	"context"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
)

type TTSConfig struct {
	Err error
}

// TTS emits deterministic silent audio.
type TTS struct {
	cfg TTSConfig
}

func NewTTS(cfg TTSConfig) *TTS {
	return &TTS{cfg: cfg}
}

func (s *TTS) Name() string { return "mock" }

func (s *TTS) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]byte, 320), nil
}

var _ tts.Synthesizer = (*TTS)(nil)
