package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

// ProviderUsage aggregates usage logs per provider.
type ProviderUsage struct {
	Provider string `json:"provider"`
	Calls    int64  `json:"calls"`
	Failures int64  `json:"failures"`
}

type UsageRepository interface {
	BaseRepository[models.UsageLog]
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageLog, error)
	SummarizeByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]ProviderUsage, error)
}

type usageRepository struct {
	BaseRepository[models.UsageLog]
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{BaseRepository: NewBaseRepository[models.UsageLog](db, "usage log"), db: db}
}

func (r *usageRepository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageLog, error) {
	var out []models.UsageLog
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list usage logs failed")
	}
	return out, nil
}

func (r *usageRepository) SummarizeByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]ProviderUsage, error) {
	var out []ProviderUsage
	err := r.db.WithContext(ctx).Model(&models.UsageLog{}).
		Select("provider, COUNT(*) AS calls, COUNT(*) FILTER (WHERE NOT success) AS failures").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("provider").
		Order("provider").
		Scan(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "summarize usage failed")
	}
	return out, nil
}
