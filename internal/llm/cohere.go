package llm

import (
	"context"
	"fmt"

	"github.com/imroc/req/v3"
)

// cohereChat calls Cohere's v1 chat endpoint, which is not OpenAI compatible.
type cohereChat struct {
	client *req.Client
	apiKey string
	model  string
}

var _ Provider = (*cohereChat)(nil)

type cohereRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Preamble    string  `json:"preamble,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type cohereResponse struct {
	Text string `json:"text"`
}

func newCohere(o BuildOptions) *cohereChat {
	c := req.C().SetBaseURL(o.BaseURL).SetTimeout(o.Timeout)
	if o.HTTPClient != nil && o.HTTPClient.Transport != nil {
		c.GetClient().Transport = o.HTTPClient.Transport
	}
	return &cohereChat{client: c, apiKey: o.APIKey, model: o.Model}
}

func (c *cohereChat) Chat(ctx context.Context, r ChatRequest) (ChatResponse, error) {
	m := c.model
	if r.Model != "" {
		m = r.Model
	}
	maxTokens := r.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	var out cohereResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBearerAuthToken(c.apiKey).
		SetBody(cohereRequest{
			Model:       m,
			Message:     r.UserPrompt,
			Preamble:    r.SystemPrompt,
			Temperature: r.Temperature,
			MaxTokens:   maxTokens,
		}).
		SetSuccessResult(&out).
		Post("/v1/chat")
	if err != nil {
		return ChatResponse{}, fmt.Errorf("cohere chat: %w", err)
	}
	if !resp.IsSuccessState() {
		return ChatResponse{}, fmt.Errorf("cohere chat: API error: %d", resp.StatusCode)
	}
	if out.Text == "" {
		return ChatResponse{}, fmt.Errorf("cohere chat: empty response")
	}
	return ChatResponse{Text: out.Text, Provider: Cohere, Model: m}, nil
}
