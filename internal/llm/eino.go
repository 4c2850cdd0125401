package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// chatModel adapts an eino chat model to Provider.
type chatModel struct {
	name  string
	model string
	cm    model.BaseChatModel
}

var _ Provider = (*chatModel)(nil)

func (c *chatModel) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	msgs := make([]*schema.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(req.UserPrompt))

	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}

	out, err := c.cm.Generate(ctx, msgs, opts...)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("%s chat: %w", c.name, err)
	}
	if out == nil || out.Content == "" {
		return ChatResponse{}, fmt.Errorf("%s chat: empty response", c.name)
	}
	m := c.model
	if req.Model != "" {
		m = req.Model
	}
	return ChatResponse{Text: out.Content, Provider: c.name, Model: m}, nil
}

func newOpenAICompatible(ctx context.Context, o BuildOptions) (Provider, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:     o.APIKey,
		BaseURL:    o.BaseURL,
		Model:      o.Model,
		Timeout:    o.Timeout,
		HTTPClient: o.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s model: %w", o.Provider, err)
	}
	return &chatModel{name: o.Provider, model: o.Model, cm: cm}, nil
}

func newClaude(ctx context.Context, o BuildOptions) (Provider, error) {
	cfg := &claude.Config{
		APIKey:    o.APIKey,
		Model:     o.Model,
		MaxTokens: defaultMaxTokens,
	}
	if o.BaseURL != "" {
		cfg.BaseURL = &o.BaseURL
	}
	cm, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build anthropic model: %w", err)
	}
	return &chatModel{name: o.Provider, model: o.Model, cm: cm}, nil
}

func newGemini(ctx context.Context, o BuildOptions) (Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:     o.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.HTTPClient,
	}
	if o.HTTPClient == nil {
		cc.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("build genai client: %w", err)
	}
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{Client: client, Model: o.Model})
	if err != nil {
		return nil, fmt.Errorf("build google model: %w", err)
	}
	return &chatModel{name: o.Provider, model: o.Model, cm: cm}, nil
}
