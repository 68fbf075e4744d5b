package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/resilience"
)

// Default base URLs for the OpenAI-compatible backends.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Adapter talks to any /chat/completions endpoint.
type Adapter struct {
	Label   string
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

func NewAdapter(apiKey, model string) *Adapter {
	return &Adapter{
		Label:   llm.ProviderOpenAI,
		APIKey:  apiKey,
		Model:   model,
		BaseURL: OpenAIBaseURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewCompatible builds an adapter for a backend tag that speaks the OpenAI protocol.
func NewCompatible(cfg llm.Config) (*Adapter, error) {
	a := NewAdapter(cfg.APIKey, cfg.Model)
	a.Label = cfg.Tag()
	switch cfg.Tag() {
	case llm.ProviderOpenAI:
		if a.Model == "" {
			a.Model = "gpt-4o-mini"
		}
	case llm.ProviderGroq:
		a.BaseURL = GroqBaseURL
		if a.Model == "" {
			a.Model = "llama-3.1-8b-instant"
		}
	case llm.ProviderOpenRouter:
		a.BaseURL = OpenRouterBaseURL
		if a.Model == "" {
			a.Model = "meta-llama/llama-3.1-8b-instruct"
		}
	case llm.ProviderKaggle:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("kaggle provider requires base_url")
		}
		if a.Model == "" {
			a.Model = "llama3.2:3b"
		}
	default:
		return nil, fmt.Errorf("provider %q is not openai-compatible", cfg.Provider)
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		a.BaseURL = strings.TrimRight(base, "/")
	}
	return a, nil
}

func (a *Adapter) Name() string {
	if a.Label != "" {
		return a.Label
	}
	return llm.ProviderOpenAI
}

func (a *Adapter) Complete(ctx context.Context, input llm.Request) (string, error) {
	body, err := a.buildRequest(input)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", body)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	a.applyHeaders(req)
	resp, err := a.client().Do(req)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "%s request", a.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return "", errorsx.Wrap(resilience.RateLimitError{Provider: a.Name(), Message: string(body)}, errorsx.ReasonLLMRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errorsx.Wrap(fmt.Errorf("%s status %d: %s", a.Name(), resp.StatusCode, strings.TrimSpace(string(body))), errorsx.ReasonLLMGenerate)
	}
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "%s decode", a.Name())
	}
	if len(payload.Choices) == 0 {
		return "", errorsx.Wrap(errors.New("no choices"), errorsx.ReasonLLMGenerate)
	}
	text := strings.TrimSpace(payload.Choices[0].Message.Content)
	if text == "" {
		return "", errorsx.Wrap(errors.New("empty completion"), errorsx.ReasonLLMGenerate)
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (a *Adapter) buildRequest(input llm.Request) (*bytes.Buffer, error) {
	req := chatRequest{
		Model:       a.Model,
		Messages:    normalizeMessages(input),
		MaxTokens:   input.MaxTokens,
		Temperature: input.Temperature,
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func normalizeMessages(input llm.Request) []chatMessage {
	out := make([]chatMessage, 0, len(input.Messages)+1)
	if sp := strings.TrimSpace(input.SystemPrompt); sp != "" {
		out = append(out, chatMessage{Role: "system", Content: sp})
	}
	for _, m := range input.Messages {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

var _ llm.Provider = (*Adapter)(nil)
