package ollama

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
)

const DefaultModel = "llama3.2:3b"

// Provider calls a self-hosted Ollama server through its native /api/chat endpoint.
type Provider struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func New(baseURL, model string) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) Name() string { return llm.ProviderOllama }

func (p *Provider) Complete(ctx context.Context, input llm.Request) (string, error) {
	if p.BaseURL == "" {
		return "", errorsx.Wrap(errors.New("ollama base url is empty"), errorsx.ReasonLLMNotConfigured)
	}
	messages := make([]chatMessage, 0, len(input.Messages)+1)
	if sp := strings.TrimSpace(input.SystemPrompt); sp != "" {
		messages = append(messages, chatMessage{Role: "system", Content: sp})
	}
	for _, m := range input.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	payload := chatRequest{
		Model:    p.Model,
		Messages: messages,
		Options: &chatOptions{
			Temperature: input.Temperature,
			NumPredict:  input.MaxTokens,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	// ngrok free tunnels answer with an HTML interstitial unless this header is present.
	req.Header.Set("ngrok-skip-browser-warning", "true")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "ollama request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorsx.Wrap(fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body))), errorsx.ReasonLLMGenerate)
	}
	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "unmarshal response")
	}
	text := strings.TrimSpace(out.Message.Content)
	if text == "" {
		return "", errorsx.Wrap(errors.New("ollama returned empty message"), errorsx.ReasonLLMGenerate)
	}
	return text, nil
}

var _ llm.Provider = (*Provider)(nil)
