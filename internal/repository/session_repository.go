package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/models"
	appErr "github.com/lumnicode/engine/pkg/errors"
)

// SessionProgress is the mutable progress part of a generation session.
type SessionProgress struct {
	Progress       int
	CurrentTask    string
	CurrentFile    string
	TotalFiles     int
	CompletedFiles int
}

type SessionRepository interface {
	BaseRepository[models.GenerationSession]
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]models.GenerationSession, error)
	GetActiveByProject(ctx context.Context, projectID uuid.UUID, dest *models.GenerationSession) error
	GetStatus(ctx context.Context, sessionID uuid.UUID) (string, error)
	// Transition moves the session to status `to` if its current status allows it.
	Transition(ctx context.Context, sessionID uuid.UUID, to, errMsg string) (*models.GenerationSession, error)
	UpdateProgress(ctx context.Context, sessionID uuid.UUID, p SessionProgress) error
}

type sessionRepository struct {
	BaseRepository[models.GenerationSession]
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{BaseRepository: NewBaseRepository[models.GenerationSession](db, "generation session"), db: db}
}

func (r *sessionRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]models.GenerationSession, error) {
	var out []models.GenerationSession
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list generation sessions failed")
	}
	return out, nil
}

func (r *sessionRepository) GetActiveByProject(ctx context.Context, projectID uuid.UUID, dest *models.GenerationSession) error {
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID, []string{models.SessionRunning, models.SessionPaused}).
		Order("created_at DESC").
		First(dest).Error
	if err != nil {
		return readError(err, "no active generation session", "get active generation session failed")
	}
	return nil
}

func (r *sessionRepository) GetStatus(ctx context.Context, sessionID uuid.UUID) (string, error) {
	var status string
	res := r.db.WithContext(ctx).Model(&models.GenerationSession{}).Select("status").Where("id = ?", sessionID).Scan(&status)
	if res.Error != nil {
		return "", appErr.Wrap(res.Error, appErr.CodeInternal, "get session status failed")
	}
	if res.RowsAffected == 0 {
		return "", appErr.New(appErr.CodeNotFound, "generation session not found")
	}
	return status, nil
}

func (r *sessionRepository) Transition(ctx context.Context, sessionID uuid.UUID, to, errMsg string) (*models.GenerationSession, error) {
	var from []string
	for _, s := range []string{models.SessionRunning, models.SessionPaused} {
		if models.CanTransition(s, to) {
			from = append(from, s)
		}
	}

	updates := map[string]any{"status": to, "updated_at": time.Now()}
	if models.IsTerminalSession(to) {
		updates["finished_at"] = time.Now()
	}
	if to == models.SessionCompleted {
		updates["progress"] = 100
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}

	var out models.GenerationSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GenerationSession{}).
			Where("id = ? AND status IN ?", sessionID, from).
			UpdateColumns(updates)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "update session status failed")
		}
		if err := tx.First(&out, "id = ?", sessionID).Error; err != nil {
			return readError(err, "generation session not found", "reload session failed")
		}
		if res.RowsAffected == 0 {
			return appErr.Newf(appErr.CodeConflict, "cannot move session from %s to %s", out.Status, to)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepository) UpdateProgress(ctx context.Context, sessionID uuid.UUID, p SessionProgress) error {
	res := r.db.WithContext(ctx).Model(&models.GenerationSession{}).
		Where("id = ? AND status IN ?", sessionID, []string{models.SessionRunning, models.SessionPaused}).
		UpdateColumns(map[string]any{
			"progress":        p.Progress,
			"current_task":    p.CurrentTask,
			"current_file":    p.CurrentFile,
			"total_files":     p.TotalFiles,
			"completed_files": p.CompletedFiles,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update session progress failed")
	}
	return nil
}
