package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

type APIKeyRepository interface {
	BaseRepository[models.APIKey]
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	ListActive(ctx context.Context, afterID uuid.UUID, limit int) ([]models.APIKey, error)
	GetOwned(ctx context.Context, keyID, userID uuid.UUID, dest *models.APIKey) error
	// Upsert inserts k or refreshes the row with the same (user, provider, display name).
	Upsert(ctx context.Context, k *models.APIKey) error
	RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error
	RecordValidation(ctx context.Context, keyID uuid.UUID, valid bool, validationErr string, quota datatypes.JSON, at time.Time) error
	SetActive(ctx context.Context, keyID, userID uuid.UUID, active bool) error
	DeleteOwned(ctx context.Context, keyID, userID uuid.UUID) error
	ResetMonthlyUsage(ctx context.Context) (int64, error)
}

type apiKeyRepository struct {
	BaseRepository[models.APIKey]
	db *gorm.DB
}

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository {
	return &apiKeyRepository{BaseRepository: NewBaseRepository[models.APIKey](db, "api key"), db: db}
}

func (r *apiKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	var out []models.APIKey
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list api keys failed")
	}
	return out, nil
}

func (r *apiKeyRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	var out []models.APIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = true", userID).
		Order("is_validated DESC, current_month_usage ASC, created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list active api keys failed")
	}
	return out, nil
}

// ListActive pages through every active key in id order, starting after afterID.
func (r *apiKeyRepository) ListActive(ctx context.Context, afterID uuid.UUID, limit int) ([]models.APIKey, error) {
	var out []models.APIKey
	q := r.db.WithContext(ctx).Where("is_active = true")
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list active api keys failed")
	}
	return out, nil
}

func (r *apiKeyRepository) GetOwned(ctx context.Context, keyID, userID uuid.UUID, dest *models.APIKey) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", keyID, userID).First(dest).Error; err != nil {
		return readError(err, "api key not found", "get api key failed")
	}
	return nil
}

func (r *apiKeyRepository) Upsert(ctx context.Context, k *models.APIKey) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}, {Name: "display_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_key", "key_hint", "is_active", "is_validated", "last_validated_at",
			"validation_error", "quota_info", "monthly_limit", "rate_limit_per_minute", "updated_at",
		}),
	}).Create(k).Error
	if err != nil {
		return writeError(err, "upsert api key failed")
	}
	// Reload so ID and counters reflect the surviving row.
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND display_name = ?", k.UserID, k.Provider, k.DisplayName).
		First(k).Error
	if err != nil {
		return readError(err, "api key not found", "reload api key failed")
	}
	return nil
}

func (r *apiKeyRepository) RecordUsage(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", keyID).UpdateColumns(map[string]any{
		"usage_count":         gorm.Expr("usage_count + 1"),
		"current_month_usage": gorm.Expr("current_month_usage + 1"),
		"last_used_at":        at,
	})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "record api key usage failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "api key not found")
	}
	return nil
}

func (r *apiKeyRepository) RecordValidation(ctx context.Context, keyID uuid.UUID, valid bool, validationErr string, quota datatypes.JSON, at time.Time) error {
	updates := map[string]any{
		"is_validated":      valid,
		"validation_error":  validationErr,
		"last_validated_at": at,
		"updated_at":        at,
	}
	if quota != nil {
		updates["quota_info"] = quota
	}
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).Where("id = ?", keyID).UpdateColumns(updates)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "record api key validation failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "api key not found")
	}
	return nil
}

func (r *apiKeyRepository) SetActive(ctx context.Context, keyID, userID uuid.UUID, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND user_id = ?", keyID, userID).
		Update("is_active", active)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update api key failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "api key not found")
	}
	return nil
}

func (r *apiKeyRepository) DeleteOwned(ctx context.Context, keyID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", keyID, userID).Delete(&models.APIKey{})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "delete api key failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "api key not found")
	}
	return nil
}

func (r *apiKeyRepository) ResetMonthlyUsage(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("current_month_usage <> 0").
		UpdateColumn("current_month_usage", 0)
	if res.Error != nil {
		return 0, appErr.Wrap(res.Error, appErr.CodeInternal, "reset monthly usage failed")
	}
	return res.RowsAffected, nil
}
