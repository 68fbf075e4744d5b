package tts

import (
	"context"
	"errors"
	"strings"
)

// Synthesizer defines the contract for any TTS vendor implementation.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Synthesize renders text with the given voice and returns encoded audio.
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// ErrNotConfigured is returned when no synthesis key is available.
var ErrNotConfigured = errors.New("tts not configured")

// Config selects a TTS vendor and carries its key.
type Config struct {
	Provider string `mapstructure:"provider" json:"provider"`
	APIKey   string `mapstructure:"api_key" json:"api_key,omitempty"`
	Model    string `mapstructure:"model" json:"model,omitempty"`
}

// Tag returns the normalized vendor tag.
func (c Config) Tag() string {
	return strings.ToLower(strings.TrimSpace(c.Provider))
}

// Enabled reports whether synthesis should be attempted.
func (c *Config) Enabled() bool {
	if c == nil {
		return false
	}
	switch c.Tag() {
	case "", "none":
		return false
	case "mock":
		return true
	default:
		return strings.TrimSpace(c.APIKey) != ""
	}
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
