package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/resilience"
)

const (
	DefaultWSBase  = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	DefaultModelID = "eleven_turbo_v2_5"
)

type Config struct {
	APIKey       string
	ModelID      string
	OutputFormat string
	// WSBase overrides the stream-input endpoint; {voice_id} is substituted.
	WSBase string
}

// ElevenLabsTTS renders one utterance per websocket session.
type ElevenLabsTTS struct {
	cfg    Config
	dialer *websocket.Dialer
}

func New(cfg Config) *ElevenLabsTTS {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.WSBase == "" {
		cfg.WSBase = DefaultWSBase
	}
	return &ElevenLabsTTS{
		cfg:    cfg,
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
	}
}

func (s *ElevenLabsTTS) Name() string { return "elevenlabs" }

type streamMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *ElevenLabsTTS) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, errorsx.Wrap(tts.ErrNotConfigured, errorsx.ReasonTTSNotConfigured)
	}
	voiceID = strings.TrimSpace(voiceID)
	text = strings.TrimSpace(text)
	if voiceID == "" || text == "" {
		return nil, errorsx.Wrap(errors.New("voice id and text are required"), errorsx.ReasonTTSSynthesize)
	}
	u, err := s.buildURL(voiceID)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	conn, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}, errorsx.ReasonTTSSynthesize)
		}
		return nil, errorsx.Wrapf(err, errorsx.ReasonTTSSynthesize, "connect elevenlabs")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	for _, payload := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{"text": text + " ", "flush": true},
		{"text": ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(payload); err != nil {
			return nil, errorsx.Wrapf(err, errorsx.ReasonTTSSynthesize, "send text")
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errorsx.Wrap(ctx.Err(), errorsx.ReasonTTSSynthesize)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				return audio, nil
			}
			return nil, errorsx.Wrapf(err, errorsx.ReasonTTSSynthesize, "read audio")
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("elevenlabs non-json message", "size_bytes", len(data))
			continue
		}
		if msg.Error != "" {
			return nil, errorsx.Wrap(errors.New("elevenlabs: "+msg.Error+" "+msg.Message), errorsx.ReasonTTSSynthesize)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, errorsx.Wrapf(err, errorsx.ReasonTTSSynthesize, "decode audio")
			}
			audio = append(audio, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}
	if len(audio) == 0 {
		return nil, errorsx.Wrap(errors.New("elevenlabs returned no audio"), errorsx.ReasonTTSSynthesize)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return audio, nil
}

func (s *ElevenLabsTTS) buildURL(voiceID string) (string, error) {
	base := strings.ReplaceAll(s.cfg.WSBase, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ tts.Synthesizer = (*ElevenLabsTTS)(nil)
