package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultMaxTokens = 4000
	defaultTimeout   = 60 * time.Second
)

type BuildOptions struct {
	Provider string
	APIKey   string
	// Model and BaseURL default to the catalog entry.
	Model       string
	BaseURL     string
	Timeout     time.Duration
	HTTPClient  *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// BuildFunc constructs a Provider; Router takes one so tests can swap it.
type BuildFunc func(ctx context.Context, o BuildOptions) (Provider, error)

// Build returns a Provider for o.Provider, wrapped with retries when MaxRetries > 0.
func Build(ctx context.Context, o BuildOptions) (Provider, error) {
	info, ok := Lookup(o.Provider)
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", o.Provider)
	}
	if o.Model == "" {
		o.Model = info.DefaultModel
	}
	if o.BaseURL == "" && o.Provider != Anthropic && o.Provider != Google {
		o.BaseURL = info.BaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}

	var (
		p   Provider
		err error
	)
	switch o.Provider {
	case OpenAI, Groq, Together, Fireworks, HuggingFace:
		p, err = newOpenAICompatible(ctx, o)
	case Anthropic:
		p, err = newClaude(ctx, o)
	case Google:
		p, err = newGemini(ctx, o)
	case Cohere:
		p = newCohere(o)
	}
	if err != nil {
		return nil, err
	}
	if o.MaxRetries > 0 {
		p = &retrying{next: p, maxRetries: o.MaxRetries, base: o.BackoffBase}
	}
	return p, nil
}

type retrying struct {
	next       Provider
	maxRetries int
	base       time.Duration
}

func (r *retrying) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	base := r.base
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := r.next.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		case <-time.After(base * (1 << attempt)):
		}
	}
	return ChatResponse{}, lastErr
}
