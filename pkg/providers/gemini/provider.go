package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/resilience"
)

const DefaultModel = "gemini-2.0-flash"

// Provider wraps the Gemini API client.
type Provider struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errorsx.Wrap(errors.New("gemini api key is empty"), errorsx.ReasonLLMNotConfigured)
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonLLMNotConfigured, "gemini client")
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string { return llm.ProviderGemini }

func (p *Provider) Complete(ctx context.Context, input llm.Request) (string, error) {
	contents, cfg := toProviderFormat(input)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 429 {
			return "", errorsx.Wrap(resilience.RateLimitError{Provider: llm.ProviderGemini, Message: apiErr.Message}, errorsx.ReasonLLMRateLimit)
		}
		return "", errorsx.Wrapf(err, errorsx.ReasonLLMGenerate, "gemini generate")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errorsx.Wrap(errors.New("gemini returned empty text"), errorsx.ReasonLLMGenerate)
	}
	return text, nil
}

// toProviderFormat maps the conversation onto Gemini roles. Gemini names the
// assistant role "model".
func toProviderFormat(input llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(input.Messages))
	for _, m := range input.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(input.Temperature)),
	}
	if input.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(input.MaxTokens)
	}
	if sp := strings.TrimSpace(input.SystemPrompt); sp != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sp, genai.RoleUser)
	}
	return contents, cfg
}

var _ llm.Provider = (*Provider)(nil)
