package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

// ProjectFilter narrows ListByOwner. Zero values mean "no filter".
type ProjectFilter struct {
	Status string
	Search string
	Offset int
	Limit  int
}

type ProjectRepository interface {
	BaseRepository[models.Project]
	ListByOwner(ctx context.Context, ownerID uuid.UUID, f ProjectFilter) ([]models.Project, int64, error)
	GetOwned(ctx context.Context, projectID, ownerID uuid.UUID, dest *models.Project) error
	Touch(ctx context.Context, projectID uuid.UUID, at time.Time) error
}

type projectRepository struct {
	BaseRepository[models.Project]
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{BaseRepository: NewBaseRepository[models.Project](db, "project"), db: db}
}

func (r *projectRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, f ProjectFilter) ([]models.Project, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Project{}).Where("owner_id = ?", ownerID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		q = q.Where("name ILIKE ?", "%"+f.Search+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "count projects failed")
	}

	var out []models.Project
	q = q.Order("updated_at DESC").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, appErr.Wrap(err, appErr.CodeInternal, "list projects by owner failed")
	}
	return out, total, nil
}

// GetOwned loads a project only when ownerID owns it; foreign projects read as not found.
func (r *projectRepository) GetOwned(ctx context.Context, projectID, ownerID uuid.UUID, dest *models.Project) error {
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", projectID, ownerID).First(dest).Error
	if err != nil {
		return readError(err, "project not found", "get project failed")
	}
	return nil
}

func (r *projectRepository) Touch(ctx context.Context, projectID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).UpdateColumn("last_opened_at", at)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "touch project failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "project not found")
	}
	return nil
}
