package llm

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/pkg/logger"
)

const (
	RequestAssist     = "assist"
	RequestGeneration = "generation"
)

// KeyStore is the part of the API key repository the router needs.
type KeyStore interface {
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

type UsageStore interface {
	Create(ctx context.Context, l *models.UsageLog) error
}

// SecretOpener decrypts a stored key; additional data binds it to its owner.
type SecretOpener interface {
	OpenString(raw, additionalData string) (string, error)
}

// KeyAAD is the additional data API keys are sealed with.
func KeyAAD(userID uuid.UUID, provider string) string {
	return userID.String() + ":" + provider
}

type RouterConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	Build       BuildFunc
}

// Router sends a chat request through the user's keys, falling back to the
// next key when a provider fails.
type Router struct {
	keys   KeyStore
	usage  UsageStore
	opener SecretOpener
	cfg    RouterConfig
	log    *zap.Logger
}

func NewRouter(keys KeyStore, usage UsageStore, opener SecretOpener, cfg RouterConfig) *Router {
	if cfg.Build == nil {
		cfg.Build = Build
	}
	return &Router{keys: keys, usage: usage, opener: opener, cfg: cfg, log: logger.Named("llm")}
}

// UsableKeys returns the user's active, validated, non-exhausted keys in preference order.
func (r *Router) UsableKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	all, err := r.keys.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.APIKey, 0, len(all))
	for _, k := range all {
		if !k.IsActive || !k.IsValidated || !Supported(k.Provider) {
			continue
		}
		if k.Exhausted() {
			r.log.Warn("monthly limit reached, skipping key", zap.String("key_id", k.ID.String()))
			continue
		}
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool { return Rank(out[i].Provider) < Rank(out[j].Provider) })
	return out, nil
}

// Chat tries each usable key once, in order, and returns the first success.
func (r *Router) Chat(ctx context.Context, userID uuid.UUID, requestType string, req ChatRequest) (ChatResponse, error) {
	keys, err := r.UsableKeys(ctx, userID)
	if err != nil {
		return ChatResponse{}, err
	}
	if len(keys) == 0 {
		return ChatResponse{}, ErrNoAPIKeys
	}

	var lastErr error
	for i := range keys {
		k := keys[i]
		resp, err := r.try(ctx, userID, requestType, &k, req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) {
			return ChatResponse{}, err
		}
		lastErr = err
		r.log.Warn("provider failed, trying next key",
			zap.String("provider", k.Provider), zap.String("key_id", k.ID.String()), zap.Error(err))
	}
	return ChatResponse{}, errors.Join(ErrAllProvidersFailed, lastErr)
}

func (r *Router) try(ctx context.Context, userID uuid.UUID, requestType string, k *models.APIKey, req ChatRequest) (ChatResponse, error) {
	secret, err := r.opener.OpenString(k.EncryptedKey, KeyAAD(userID, k.Provider))
	if err != nil {
		return ChatResponse{}, err
	}
	p, err := r.cfg.Build(ctx, BuildOptions{
		Provider:    k.Provider,
		APIKey:      secret,
		Timeout:     r.cfg.Timeout,
		MaxRetries:  r.cfg.MaxRetries,
		BackoffBase: r.cfg.BackoffBase,
	})
	if err != nil {
		return ChatResponse{}, err
	}

	callCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout*time.Duration(r.cfg.MaxRetries+1))
		defer cancel()
	}
	start := time.Now()
	resp, err := p.Chat(callCtx, req)
	metrics.Global().ProviderCalls.WithLabelValues(k.Provider, metrics.Outcome(err)).Inc()

	entry := &models.UsageLog{
		UserID:      userID,
		APIKeyID:    &k.ID,
		Provider:    k.Provider,
		Model:       resp.Model,
		RequestType: requestType,
		PromptChars: len(req.SystemPrompt) + len(req.UserPrompt),
		Success:     err == nil,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.ResponseChars = len(resp.Text)
		if uerr := r.keys.RecordUsage(ctx, k.ID, time.Now()); uerr != nil {
			r.log.Error("record key usage failed", zap.String("key_id", k.ID.String()), zap.Error(uerr))
		}
	}
	if r.usage != nil {
		if uerr := r.usage.Create(ctx, entry); uerr != nil {
			r.log.Error("write usage log failed", zap.Error(uerr))
		}
	}
	return resp, err
}
