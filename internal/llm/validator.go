package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/samber/lo"
)

// ValidationResult is the outcome of probing a key against its provider.
type ValidationResult struct {
	Valid     bool           `json:"is_valid"`
	Error     string         `json:"error,omitempty"`
	QuotaInfo map[string]any `json:"quota_info,omitempty"`
}

var claudeModels = []string{"claude-3-haiku", "claude-3-sonnet", "claude-3-opus"}

// Validator probes provider APIs with a cheap authenticated request.
type Validator struct {
	client  *req.Client
	baseURL map[string]string
}

type ValidatorOption func(*Validator)

// WithProbeBaseURL points the probe for provider at baseURL instead of the vendor host.
func WithProbeBaseURL(provider, baseURL string) ValidatorOption {
	return func(v *Validator) { v.baseURL[provider] = strings.TrimRight(baseURL, "/") }
}

func NewValidator(timeout time.Duration, opts ...ValidatorOption) *Validator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	v := &Validator{
		client: req.C().SetTimeout(timeout).SetUserAgent("lumnicode-engine"),
		baseURL: map[string]string{
			OpenAI:      "https://api.openai.com",
			Google:      "https://generativelanguage.googleapis.com",
			Anthropic:   "https://api.anthropic.com",
			HuggingFace: "https://huggingface.co",
			Together:    "https://api.together.xyz",
			Fireworks:   "https://api.fireworks.ai/inference",
			Cohere:      "https://api.cohere.ai",
			Groq:        "https://api.groq.com/openai",
		},
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate never returns an error; failures are reported in the result.
func (v *Validator) Validate(ctx context.Context, provider, apiKey string) ValidationResult {
	base, ok := v.baseURL[provider]
	if !ok {
		return ValidationResult{Error: fmt.Sprintf("Unsupported provider: %s", provider)}
	}
	switch provider {
	case Google:
		return v.probeModels(ctx, v.client.R().SetQueryParam("key", apiKey), base+"/v1beta/models", "models", "name",
			[]string{"gemini-pro", "gemini-1.5-pro", "gemini-1.5-flash"}, http.StatusBadRequest)
	case Anthropic:
		return v.probeAnthropic(ctx, base, apiKey)
	case HuggingFace:
		return v.probeWhoAmI(ctx, base, apiKey)
	case OpenAI:
		return v.probeModels(ctx, v.client.R().SetBearerAuthToken(apiKey), base+"/v1/models", "data", "id",
			[]string{"gpt-4", "gpt-3.5-turbo", "gpt-4-turbo"}, 0)
	case Cohere:
		return v.probeModels(ctx, v.client.R().SetBearerAuthToken(apiKey), base+"/v1/models", "models", "name", nil, 0)
	default:
		return v.probeModels(ctx, v.client.R().SetBearerAuthToken(apiKey), base+"/v1/models", "data", "id", nil, 0)
	}
}

// probeModels lists models. When wanted is set, quota info reports which of
// them are available; otherwise it lists the first ten ids.
func (v *Validator) probeModels(ctx context.Context, r *req.Request, url, listKey, idKey string, wanted []string, invalidStatus int) ValidationResult {
	resp, err := r.SetContext(ctx).Get(url)
	if err != nil {
		return ValidationResult{Error: "Network error: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		if invalidStatus != 0 && resp.StatusCode == invalidStatus {
			return ValidationResult{Error: "Invalid API key"}
		}
		return statusFailure(resp)
	}

	var body map[string][]map[string]any
	if err := json.Unmarshal(resp.Bytes(), &body); err != nil {
		return ValidationResult{Valid: true, QuotaInfo: map[string]any{}}
	}
	ids := lo.FilterMap(body[listKey], func(m map[string]any, _ int) (string, bool) {
		s, ok := m[idKey].(string)
		return s, ok
	})
	available := lo.Slice(ids, 0, 10)
	if wanted != nil {
		available = lo.Filter(wanted, func(w string, _ int) bool {
			return lo.ContainsBy(ids, func(id string) bool { return strings.Contains(id, w) })
		})
	}
	return ValidationResult{
		Valid:     true,
		QuotaInfo: map[string]any{"available_models": available, "total_models": len(ids)},
	}
}

func (v *Validator) probeAnthropic(ctx context.Context, base, apiKey string) ValidationResult {
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(map[string]any{
			"model":      "claude-3-haiku-20240307",
			"max_tokens": 10,
			"messages":   []map[string]string{{"role": "user", "content": "test"}},
		}).
		Post(base + "/v1/messages")
	if err != nil {
		return ValidationResult{Error: "Network error: " + err.Error()}
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return ValidationResult{Valid: true, QuotaInfo: map[string]any{"available_models": claudeModels}}
	case http.StatusBadRequest:
		// a malformed probe still proves the key was accepted
		if strings.Contains(strings.ToLower(resp.String()), "invalid_api_key") {
			return ValidationResult{Error: "Invalid API key"}
		}
		return ValidationResult{Valid: true, QuotaInfo: map[string]any{"available_models": claudeModels}}
	default:
		return statusFailure(resp)
	}
}

func (v *Validator) probeWhoAmI(ctx context.Context, base, apiKey string) ValidationResult {
	var who struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	resp, err := v.client.R().SetContext(ctx).SetBearerAuthToken(apiKey).SetSuccessResult(&who).Get(base + "/api/whoami-v2")
	if err != nil {
		return ValidationResult{Error: "Network error: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return statusFailure(resp)
	}
	return ValidationResult{Valid: true, QuotaInfo: map[string]any{
		"user": lo.Ternary(who.Name != "", who.Name, "Unknown"),
		"type": lo.Ternary(who.Type != "", who.Type, "user"),
	}}
}

func statusFailure(resp *req.Response) ValidationResult {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ValidationResult{Error: "Invalid API key"}
	case http.StatusTooManyRequests:
		return ValidationResult{Error: "Rate limit exceeded"}
	default:
		return ValidationResult{Error: fmt.Sprintf("API error: %d - %s", resp.StatusCode, strings.TrimSpace(resp.String()))}
	}
}
