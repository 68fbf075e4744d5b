package llm

import (
	"fmt"
	"strings"
)

// Backend tags.
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderGroq       = "groq"
	ProviderOpenRouter = "openrouter"
	ProviderKaggle     = "kaggle"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
	ProviderMock       = "mock"
)

var knownProviders = map[string]bool{
	ProviderNone:       true,
	ProviderOpenAI:     true,
	ProviderGroq:       true,
	ProviderOpenRouter: true,
	ProviderKaggle:     true,
	ProviderOllama:     true,
	ProviderGemini:     true,
	ProviderMock:       true,
}

// Config selects and parameterizes one backend.
type Config struct {
	Provider string `mapstructure:"provider" json:"provider"`
	APIKey   string `mapstructure:"api_key" json:"api_key,omitempty"`
	Model    string `mapstructure:"model" json:"model,omitempty"`
	BaseURL  string `mapstructure:"base_url" json:"base_url,omitempty"`
}

// Tag returns the normalized provider tag.
func (c Config) Tag() string {
	tag := strings.ToLower(strings.TrimSpace(c.Provider))
	if tag == "" {
		return ProviderNone
	}
	return tag
}

// Known reports whether tag names a supported backend.
func Known(tag string) bool {
	return knownProviders[strings.ToLower(strings.TrimSpace(tag))]
}

// Validate checks the tag only; credentials are checked by Usable.
func (c Config) Validate() error {
	if !Known(c.Tag()) {
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
	return nil
}

// Usable reports whether the config can build a working backend.
func (c *Config) Usable() bool {
	if c == nil || c.Validate() != nil {
		return false
	}
	switch c.Tag() {
	case ProviderNone:
		return false
	case ProviderMock:
		return true
	case ProviderOllama, ProviderKaggle:
		return strings.TrimSpace(c.BaseURL) != ""
	default:
		return strings.TrimSpace(c.APIKey) != ""
	}
}

// Clone returns a copy that shares no memory with c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// Redacted hides the API key.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	if out != nil && out.APIKey != "" {
		out.APIKey = "***"
	}
	return out
}
