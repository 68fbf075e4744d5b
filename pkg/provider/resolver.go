package provider

import (
	"strings"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/configutil"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

// Resolve picks the first usable config in order: explicit, phone default,
// process default, then a bare Ollama endpoint. It returns nil when nothing
// is usable. The result never aliases snapshot memory.
func Resolve(snap settings.Snapshot, explicit *llm.Config) *llm.Config {
	for _, cfg := range []*llm.Config{explicit, snap.PhoneLLM, snap.DefaultLLM} {
		if cfg.Usable() {
			return cfg.Clone()
		}
	}
	if strings.TrimSpace(snap.OllamaBaseURL) != "" {
		return &llm.Config{
			Provider: llm.ProviderOllama,
			BaseURL:  snap.OllamaBaseURL,
			Model:    snap.OllamaModel,
		}
	}
	return nil
}

var llmSchema = configutil.Schema{
	Required: []string{"provider"},
	Optional: []string{"api_key", "model", "base_url"},
}

// DecodeLLM turns a free-form settings map (request body, admin update) into
// a validated config. An empty map decodes to nil.
func DecodeLLM(input map[string]any) (*llm.Config, error) {
	if len(input) == 0 {
		return nil, nil
	}
	var cfg llm.Config
	if err := llmSchema.Decode(input, &cfg); err != nil {
		return nil, errorsx.Validation("llm settings: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errorsx.Validation("%s", err)
	}
	return &cfg, nil
}
