package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// rateLimitedModel waits on a shared limiter before every provider call.
// Models derived through WithTools share the limiter.
type rateLimitedModel struct {
	inner   einomodel.ToolCallingChatModel
	limiter *rate.Limiter
}

// NewLimiter returns a token bucket of rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// WithRateLimit throttles cm on limiter. A nil limiter returns cm unchanged.
func WithRateLimit(cm einomodel.ToolCallingChatModel, limiter *rate.Limiter) einomodel.ToolCallingChatModel {
	if cm == nil || limiter == nil {
		return cm
	}
	return &rateLimitedModel{inner: cm, limiter: limiter}
}

func (m *rateLimitedModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return m.inner.Generate(ctx, in, opts...)
}

func (m *rateLimitedModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return m.inner.Stream(ctx, in, opts...)
}

func (m *rateLimitedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &rateLimitedModel{inner: bound, limiter: m.limiter}, nil
}

// IsCallbacksEnabled defers to the wrapped model so callbacks fire once.
func (m *rateLimitedModel) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(m.inner)
}
