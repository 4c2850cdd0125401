package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/utils"
)

type SnapshotRepository interface {
	BaseRepository[models.ProjectSnapshot]
	// CreateFromProject copies the live files of the snapshot's project in one transaction.
	CreateFromProject(ctx context.Context, s *models.ProjectSnapshot) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectSnapshot, error)
	GetWithFiles(ctx context.Context, snapshotID uuid.UUID, dest *models.ProjectSnapshot) error
	// Restore replaces the project's files with the snapshot's and returns the restored files.
	Restore(ctx context.Context, s *models.ProjectSnapshot) ([]models.File, error)
}

type snapshotRepository struct {
	BaseRepository[models.ProjectSnapshot]
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{BaseRepository: NewBaseRepository[models.ProjectSnapshot](db, "snapshot"), db: db}
}

func (r *snapshotRepository) CreateFromProject(ctx context.Context, s *models.ProjectSnapshot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var files []models.File
		if err := tx.Where("project_id = ?", s.ProjectID).Order("path ASC").Find(&files).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "load project files failed")
		}
		s.Files = make([]models.SnapshotFile, 0, len(files))
		for _, f := range files {
			s.Files = append(s.Files, models.SnapshotFile{
				Path:     f.Path,
				Name:     f.Name,
				Content:  f.Content,
				Language: f.Language,
			})
		}
		s.FileCount = len(s.Files)
		if err := tx.Create(s).Error; err != nil {
			return writeError(err, "create snapshot failed")
		}
		return nil
	})
}

func (r *snapshotRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectSnapshot, error) {
	var out []models.ProjectSnapshot
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list snapshots failed")
	}
	return out, nil
}

func (r *snapshotRepository) GetWithFiles(ctx context.Context, snapshotID uuid.UUID, dest *models.ProjectSnapshot) error {
	err := r.db.WithContext(ctx).Preload("Files", func(db *gorm.DB) *gorm.DB {
		return db.Order("path ASC")
	}).First(dest, "id = ?", snapshotID).Error
	if err != nil {
		return readError(err, "snapshot not found", "get snapshot failed")
	}
	return nil
}

func (r *snapshotRepository) Restore(ctx context.Context, s *models.ProjectSnapshot) ([]models.File, error) {
	var restored []models.File
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// hard delete so the (project_id, path) unique index is free again
		fileIDs := tx.Unscoped().Model(&models.File{}).Select("id").Where("project_id = ?", s.ProjectID)
		if err := tx.Where("file_id IN (?)", fileIDs).Delete(&models.FileVersion{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "clear file versions failed")
		}
		if err := tx.Unscoped().Where("project_id = ?", s.ProjectID).Delete(&models.File{}).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "clear project files failed")
		}
		for _, sf := range s.Files {
			f := models.File{
				ProjectID: s.ProjectID,
				Name:      sf.Name,
				Path:      sf.Path,
				Content:   sf.Content,
				Language:  sf.Language,
				Checksum:  utils.ContentChecksum(sf.Content),
			}
			if err := tx.Create(&f).Error; err != nil {
				return writeError(err, "restore file failed")
			}
			restored = append(restored, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}
