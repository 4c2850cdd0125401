package llm

import (
	"context"
	"errors"
)

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float32
}

type ChatResponse struct {
	Text     string
	Provider string
	Model    string
}

// Provider is one chat-completion backend bound to a single API key.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

var (
	// ErrNoAPIKeys means the user has no active, validated, non-exhausted key.
	ErrNoAPIKeys = errors.New("no API keys available for AI services")
	// ErrAllProvidersFailed means every usable key was tried and failed.
	ErrAllProvidersFailed = errors.New("all available providers failed")
)

const (
	OpenAI      = "openai"
	Google      = "google"
	Anthropic   = "anthropic"
	Together    = "together"
	Fireworks   = "fireworks"
	Cohere      = "cohere"
	Groq        = "groq"
	HuggingFace = "huggingface"
)

// ProviderInfo describes a supported vendor.
type ProviderInfo struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	DefaultModel string `json:"default_model"`
	BaseURL      string `json:"-"`
	KeyURL       string `json:"key_url"`
}

// catalog is ordered by preference; the router tries keys in this order.
var catalog = []ProviderInfo{
	{Name: OpenAI, DisplayName: "OpenAI", DefaultModel: "gpt-3.5-turbo", BaseURL: "https://api.openai.com/v1", KeyURL: "https://platform.openai.com/api-keys"},
	{Name: Google, DisplayName: "Google Gemini", DefaultModel: "gemini-1.5-flash", BaseURL: "https://generativelanguage.googleapis.com", KeyURL: "https://aistudio.google.com/app/apikey"},
	{Name: Anthropic, DisplayName: "Anthropic Claude", DefaultModel: "claude-3-haiku-20240307", BaseURL: "https://api.anthropic.com", KeyURL: "https://console.anthropic.com/settings/keys"},
	{Name: Together, DisplayName: "Together AI", DefaultModel: "meta-llama/Llama-2-70b-chat-hf", BaseURL: "https://api.together.xyz/v1", KeyURL: "https://api.together.xyz/settings/api-keys"},
	{Name: Fireworks, DisplayName: "Fireworks AI", DefaultModel: "accounts/fireworks/models/llama-v2-70b-chat", BaseURL: "https://api.fireworks.ai/inference/v1", KeyURL: "https://fireworks.ai/account/api-keys"},
	{Name: Cohere, DisplayName: "Cohere", DefaultModel: "command", BaseURL: "https://api.cohere.ai", KeyURL: "https://dashboard.cohere.com/api-keys"},
	{Name: Groq, DisplayName: "Groq", DefaultModel: "llama2-70b-4096", BaseURL: "https://api.groq.com/openai/v1", KeyURL: "https://console.groq.com/keys"},
	{Name: HuggingFace, DisplayName: "Hugging Face", DefaultModel: "meta-llama/Llama-3.1-8B-Instruct", BaseURL: "https://router.huggingface.co/v1", KeyURL: "https://huggingface.co/settings/tokens"},
}

// Catalog returns the supported providers in preference order.
func Catalog() []ProviderInfo {
	return append([]ProviderInfo(nil), catalog...)
}

func Lookup(name string) (ProviderInfo, bool) {
	for _, p := range catalog {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

func Supported(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Rank orders provider names by catalog preference; unknown names sort last.
func Rank(name string) int {
	for i, p := range catalog {
		if p.Name == name {
			return i
		}
	}
	return len(catalog)
}
