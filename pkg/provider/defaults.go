package provider

import (
	"context"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/adapters/tts"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/deepgram"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/elevenlabs"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/gemini"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/mock"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/ollama"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/providers/openai"
)

// NewDefaultRegistry registers every built-in backend. mockLLM configures
// the scripted backend served under the "mock" tag.
func NewDefaultRegistry(mockLLM mock.LLMConfig) *Registry {
	r := NewRegistry()
	compatible := func(_ context.Context, cfg llm.Config) (llm.Provider, error) {
		return openai.NewCompatible(cfg)
	}
	for _, tag := range []string{llm.ProviderOpenAI, llm.ProviderGroq, llm.ProviderOpenRouter, llm.ProviderKaggle} {
		r.Register(tag, compatible)
	}
	r.Register(llm.ProviderOllama, func(_ context.Context, cfg llm.Config) (llm.Provider, error) {
		return ollama.New(cfg.BaseURL, cfg.Model), nil
	})
	r.Register(llm.ProviderGemini, func(ctx context.Context, cfg llm.Config) (llm.Provider, error) {
		return gemini.New(ctx, cfg.APIKey, cfg.Model)
	})
	scripted := mock.NewLLMAdapter(mockLLM)
	r.Register(llm.ProviderMock, func(context.Context, llm.Config) (llm.Provider, error) {
		return scripted, nil
	})

	r.RegisterTTS("elevenlabs", func(cfg tts.Config) (tts.Synthesizer, error) {
		return elevenlabs.New(elevenlabs.Config{APIKey: cfg.APIKey, ModelID: cfg.Model}), nil
	})
	r.RegisterTTS("deepgram", func(cfg tts.Config) (tts.Synthesizer, error) {
		return deepgram.NewSpeaker(deepgram.Config{APIKey: cfg.APIKey, Model: cfg.Model})
	})
	r.RegisterTTS("mock", func(tts.Config) (tts.Synthesizer, error) {
		return mock.NewTTS(mock.TTSConfig{}), nil
	})
	return r
}
