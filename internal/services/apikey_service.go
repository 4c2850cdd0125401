package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/metrics"
	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
)

const revalidatePageSize = 100

// KeyValidator probes a provider with a raw key.
type KeyValidator interface {
	Validate(ctx context.Context, provider, apiKey string) llm.ValidationResult
}

// SecretBox seals and opens stored API keys.
type SecretBox interface {
	SealString(value, additionalData string) (string, error)
	OpenString(raw, additionalData string) (string, error)
	NeedsRotation(raw string) bool
}

type APIKeyService interface {
	AddKey(ctx context.Context, userID uuid.UUID, input *AddKeyInput) (*models.APIKey, error)
	ListKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	UsageStats(ctx context.Context, userID uuid.UUID) (*UsageStats, error)
	Providers() []llm.ProviderInfo
	ValidateUserKeys(ctx context.Context, userID uuid.UUID) ([]KeyValidation, error)
	DeactivateKey(ctx context.Context, keyID, userID uuid.UUID) error
	DeleteKey(ctx context.Context, keyID, userID uuid.UUID) error

	// Scheduled jobs.
	ResetMonthlyUsage(ctx context.Context) (int64, error)
	RevalidateActiveKeys(ctx context.Context) (int, error)
}

type AddKeyInput struct {
	Provider           string
	APIKey             string
	DisplayName        string
	MonthlyLimit       *int64
	RateLimitPerMinute int
}

type KeyUsage struct {
	ID                uuid.UUID `json:"id"`
	Provider          string    `json:"provider"`
	DisplayName       string    `json:"display_name"`
	UsageCount        int64     `json:"usage_count"`
	CurrentMonthUsage int64     `json:"current_month_usage"`
	MonthlyLimit      *int64    `json:"monthly_limit"`
	IsActive          bool      `json:"is_active"`
	IsValidated       bool      `json:"is_validated"`
}

type UsageStats struct {
	TotalKeys  int                        `json:"total_keys"`
	ActiveKeys int                        `json:"active_keys"`
	TotalUsage int64                      `json:"total_usage"`
	Providers  []string                   `json:"providers"`
	Keys       []KeyUsage                 `json:"keys"`
	ThisMonth  []repository.ProviderUsage `json:"this_month"`
}

type KeyValidation struct {
	KeyID       uuid.UUID `json:"key_id"`
	Provider    string    `json:"provider"`
	DisplayName string    `json:"display_name"`
	llm.ValidationResult
}

type apiKeyService struct {
	keyRepo   repository.APIKeyRepository
	usageRepo repository.UsageRepository
	validator KeyValidator
	box       SecretBox
	now       func() time.Time
}

func NewAPIKeyService(keyRepo repository.APIKeyRepository, usageRepo repository.UsageRepository, validator KeyValidator, box SecretBox) APIKeyService {
	return &apiKeyService{
		keyRepo:   keyRepo,
		usageRepo: usageRepo,
		validator: validator,
		box:       box,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ APIKeyService = (*apiKeyService)(nil)

// keyHint keeps the last four characters so users can tell keys apart.
func keyHint(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func quotaJSON(q map[string]any) datatypes.JSON {
	if len(q) == 0 {
		return nil
	}
	b, err := json.Marshal(q)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func (s *apiKeyService) AddKey(ctx context.Context, userID uuid.UUID, input *AddKeyInput) (*models.APIKey, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if !llm.Supported(provider) {
		return nil, appErr.Newf(appErr.CodeInvalid, "unsupported provider %q", input.Provider)
	}
	secret := strings.TrimSpace(input.APIKey)
	if secret == "" {
		return nil, appErr.New(appErr.CodeInvalid, "api_key is required")
	}

	res := s.validator.Validate(ctx, provider, secret)
	metrics.Global().KeyValidations.WithLabelValues(provider, lo.Ternary(res.Valid, "valid", "invalid")).Inc()
	if !res.Valid {
		logger.L().Info("api key rejected", zap.String("user_id", userID.String()), zap.String("provider", provider), zap.String("reason", res.Error))
		return nil, appErr.New(appErr.CodeInvalid, res.Error)
	}

	sealed, err := s.box.SealString(secret, llm.KeyAAD(userID, provider))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "encrypt api key failed")
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = provider + " Key"
	}
	rate := input.RateLimitPerMinute
	if rate <= 0 {
		rate = 60
	}
	now := s.now()
	k := &models.APIKey{
		UserID:             userID,
		Provider:           provider,
		DisplayName:        displayName,
		EncryptedKey:       sealed,
		KeyHint:            keyHint(secret),
		IsActive:           true,
		IsValidated:        true,
		LastValidatedAt:    &now,
		QuotaInfo:          quotaJSON(res.QuotaInfo),
		MonthlyLimit:       input.MonthlyLimit,
		RateLimitPerMinute: rate,
	}
	if err := s.keyRepo.Upsert(ctx, k); err != nil {
		return nil, err
	}

	logger.L().Info("api key saved", zap.String("user_id", userID.String()), zap.String("provider", provider), zap.String("key_id", k.ID.String()))
	return k, nil
}

func (s *apiKeyService) ListKeys(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.keyRepo.ListByUser(ctx, userID)
}

func (s *apiKeyService) UsageStats(ctx context.Context, userID uuid.UUID) (*UsageStats, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	month, err := s.usageRepo.SummarizeByUser(ctx, userID, monthStart)
	if err != nil {
		return nil, err
	}

	stats := &UsageStats{
		TotalKeys:  len(keys),
		ActiveKeys: lo.CountBy(keys, func(k models.APIKey) bool { return k.IsActive && k.IsValidated }),
		TotalUsage: lo.SumBy(keys, func(k models.APIKey) int64 { return k.UsageCount }),
		Providers:  lo.Uniq(lo.Map(keys, func(k models.APIKey, _ int) string { return k.Provider })),
		Keys: lo.Map(keys, func(k models.APIKey, _ int) KeyUsage {
			return KeyUsage{
				ID:                k.ID,
				Provider:          k.Provider,
				DisplayName:       k.DisplayName,
				UsageCount:        k.UsageCount,
				CurrentMonthUsage: k.CurrentMonthUsage,
				MonthlyLimit:      k.MonthlyLimit,
				IsActive:          k.IsActive,
				IsValidated:       k.IsValidated,
			}
		}),
		ThisMonth: month,
	}
	return stats, nil
}

func (s *apiKeyService) Providers() []llm.ProviderInfo {
	return llm.Catalog()
}

func (s *apiKeyService) ValidateUserKeys(ctx context.Context, userID uuid.UUID) ([]KeyValidation, error) {
	keys, err := s.keyRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]KeyValidation, 0, len(keys))
	for i := range keys {
		res := s.revalidate(ctx, &keys[i])
		out = append(out, KeyValidation{
			KeyID:            keys[i].ID,
			Provider:         keys[i].Provider,
			DisplayName:      keys[i].DisplayName,
			ValidationResult: res,
		})
	}
	return out, nil
}

// revalidate probes k, stores the outcome and reseals keys written under a retired encryption key.
func (s *apiKeyService) revalidate(ctx context.Context, k *models.APIKey) llm.ValidationResult {
	log := logger.L().With(zap.String("key_id", k.ID.String()), zap.String("provider", k.Provider))
	aad := llm.KeyAAD(k.UserID, k.Provider)

	var res llm.ValidationResult
	secret, err := s.box.OpenString(k.EncryptedKey, aad)
	if err != nil {
		log.Error("decrypt api key failed", zap.Error(err))
		res = llm.ValidationResult{Error: "stored key could not be decrypted"}
	} else {
		res = s.validator.Validate(ctx, k.Provider, secret)
	}
	metrics.Global().KeyValidations.WithLabelValues(k.Provider, lo.Ternary(res.Valid, "valid", "invalid")).Inc()

	if err := s.keyRepo.RecordValidation(ctx, k.ID, res.Valid, res.Error, quotaJSON(res.QuotaInfo), s.now()); err != nil {
		log.Error("record validation failed", zap.Error(err))
	}

	if secret != "" && s.box.NeedsRotation(k.EncryptedKey) {
		if sealed, err := s.box.SealString(secret, aad); err == nil {
			k.EncryptedKey = sealed
			k.IsValidated = res.Valid
			k.ValidationError = res.Error
			if err := s.keyRepo.Upsert(ctx, k); err != nil {
				log.Warn("reseal api key failed", zap.Error(err))
			} else {
				log.Info("api key resealed")
			}
		}
	}
	return res
}

func (s *apiKeyService) DeactivateKey(ctx context.Context, keyID, userID uuid.UUID) error {
	if err := s.keyRepo.SetActive(ctx, keyID, userID, false); err != nil {
		return err
	}
	logger.L().Info("api key deactivated", zap.String("key_id", keyID.String()), zap.String("user_id", userID.String()))
	return nil
}

func (s *apiKeyService) DeleteKey(ctx context.Context, keyID, userID uuid.UUID) error {
	if err := s.keyRepo.DeleteOwned(ctx, keyID, userID); err != nil {
		return err
	}
	logger.L().Info("api key deleted", zap.String("key_id", keyID.String()), zap.String("user_id", userID.String()))
	return nil
}

func (s *apiKeyService) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	n, err := s.keyRepo.ResetMonthlyUsage(ctx)
	if err != nil {
		return 0, err
	}
	logger.L().Info("monthly api key usage reset", zap.Int64("keys", n))
	return n, nil
}

func (s *apiKeyService) RevalidateActiveKeys(ctx context.Context) (int, error) {
	total := 0
	after := uuid.Nil
	for {
		page, err := s.keyRepo.ListActive(ctx, after, revalidatePageSize)
		if err != nil {
			return total, err
		}
		for i := range page {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			s.revalidate(ctx, &page[i])
			total++
		}
		if len(page) < revalidatePageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	logger.L().Info("active api keys revalidated", zap.Int("keys", total))
	return total, nil
}
