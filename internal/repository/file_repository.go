package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

type FileRepository interface {
	BaseRepository[models.File]
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error)
	GetByPath(ctx context.Context, projectID uuid.UUID, path string, dest *models.File) error
	// SaveWithVersion persists f and, when its content checksum changed, appends a FileVersion.
	SaveWithVersion(ctx context.Context, f *models.File, message string) (*models.FileVersion, error)
	ListVersions(ctx context.Context, fileID uuid.UUID) ([]models.FileVersion, error)
	DeleteByProject(ctx context.Context, projectID uuid.UUID) error
}

type fileRepository struct {
	BaseRepository[models.File]
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{BaseRepository: NewBaseRepository[models.File](db, "file"), db: db}
}

func (r *fileRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.File, error) {
	var out []models.File
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("path ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list files failed")
	}
	return out, nil
}

func (r *fileRepository) GetByPath(ctx context.Context, projectID uuid.UUID, path string, dest *models.File) error {
	if err := r.db.WithContext(ctx).Where("project_id = ? AND path = ?", projectID, path).First(dest).Error; err != nil {
		return readError(err, "file not found", "get file by path failed")
	}
	return nil
}

func (r *fileRepository) SaveWithVersion(ctx context.Context, f *models.File, message string) (*models.FileVersion, error) {
	var created *models.FileVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(f).Error; err != nil {
			return writeError(err, "save file failed")
		}

		var last models.FileVersion
		err := tx.Where("file_id = ?", f.ID).Order("version DESC").Limit(1).Find(&last).Error
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "load last file version failed")
		}
		if last.ID != uuid.Nil && last.Checksum == f.Checksum {
			return nil
		}

		v := &models.FileVersion{
			FileID:   f.ID,
			Version:  last.Version + 1,
			Content:  f.Content,
			Checksum: f.Checksum,
			Message:  message,
		}
		if err := tx.Create(v).Error; err != nil {
			return writeError(err, "create file version failed")
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *fileRepository) ListVersions(ctx context.Context, fileID uuid.UUID) ([]models.FileVersion, error) {
	var out []models.FileVersion
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("version DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list file versions failed")
	}
	return out, nil
}

func (r *fileRepository) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&models.File{}).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete project files failed")
	}
	return nil
}
