package provider

import (
	"context"
	"fmt"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/llm"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/resilience"
)

type guarded struct {
	llm.Provider
	breaker *resilience.Breaker
}

func (g *guarded) Complete(ctx context.Context, req llm.Request) (string, error) {
	if !g.breaker.Allow() {
		return "", errorsx.Wrap(fmt.Errorf("%s: %w", g.Name(), resilience.ErrOpen), errorsx.ReasonLLMRateLimit)
	}
	text, err := g.Provider.Complete(ctx, req)
	g.breaker.Record(err)
	return text, err
}
