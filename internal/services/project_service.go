package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	"github.com/lumnicode/engine/internal/workspace"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
)

type ProjectService interface {
	CreateProject(ctx context.Context, userID uuid.UUID, input *CreateProjectInput) (*models.Project, error)
	// GetProject also records the open time.
	GetProject(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID, filters *ProjectFilters) ([]models.Project, int64, error)
	UpdateProject(ctx context.Context, projectID, userID uuid.UUID, updates *UpdateProjectInput) (*models.Project, error)
	DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error

	CreateSnapshot(ctx context.Context, projectID, userID uuid.UUID, name, description string) (*models.ProjectSnapshot, error)
	ListSnapshots(ctx context.Context, projectID, userID uuid.UUID) ([]models.ProjectSnapshot, error)
	RestoreSnapshot(ctx context.Context, projectID, snapshotID, userID uuid.UUID) ([]models.File, error)
}

type CreateProjectInput struct {
	Name        string
	Description string
	TechStack   []string
	ProjectType string
	Template    string
	IsPublic    bool
}

type UpdateProjectInput struct {
	Name        *string
	Description *string
	TechStack   []string
	ProjectType *string
	Template    *string
	Status      *string
	IsPublic    *bool
}

type ProjectFilters struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

type projectService struct {
	projectRepo  repository.ProjectRepository
	fileRepo     repository.FileRepository
	snapshotRepo repository.SnapshotRepository
	mirror       *workspace.Mirror
}

func NewProjectService(projectRepo repository.ProjectRepository, fileRepo repository.FileRepository, snapshotRepo repository.SnapshotRepository, mirror *workspace.Mirror) ProjectService {
	if mirror == nil {
		mirror = workspace.NewMirror(nil)
	}
	return &projectService{projectRepo: projectRepo, fileRepo: fileRepo, snapshotRepo: snapshotRepo, mirror: mirror}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) CreateProject(ctx context.Context, userID uuid.UUID, input *CreateProjectInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErr.New(appErr.CodeInvalid, "name is required")
	}
	projectType := input.ProjectType
	if projectType == "" {
		projectType = "web"
	}

	p := &models.Project{
		OwnerID:     userID,
		Name:        name,
		Description: input.Description,
		TechStack:   input.TechStack,
		ProjectType: projectType,
		Template:    input.Template,
		Status:      models.ProjectStatusActive,
		IsPublic:    input.IsPublic,
	}
	if err := s.projectRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.L().Info("project created", zap.String("project_id", p.ID.String()), zap.String("user_id", userID.String()))
	return p, nil
}

func (s *projectService) owned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := s.projectRepo.GetOwned(ctx, projectID, userID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *projectService) GetProject(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	p, err := s.owned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.projectRepo.Touch(ctx, projectID, now); err != nil {
		logger.L().Warn("touch project failed", zap.String("project_id", projectID.String()), zap.Error(err))
	} else {
		p.LastOpenedAt = &now
	}
	return p, nil
}

func (s *projectService) ListProjects(ctx context.Context, userID uuid.UUID, filters *ProjectFilters) ([]models.Project, int64, error) {
	f := repository.ProjectFilter{}
	if filters != nil {
		f.Status = filters.Status
		f.Search = filters.Search
		if filters.PageSize > 0 {
			f.Limit = filters.PageSize
			if filters.Page > 1 {
				f.Offset = (filters.Page - 1) * filters.PageSize
			}
		}
	}
	return s.projectRepo.ListByOwner(ctx, userID, f)
}

func (s *projectService) UpdateProject(ctx context.Context, projectID, userID uuid.UUID, updates *UpdateProjectInput) (*models.Project, error) {
	p, err := s.owned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	if updates.Name != nil {
		name := strings.TrimSpace(*updates.Name)
		if name == "" {
			return nil, appErr.New(appErr.CodeInvalid, "name cannot be empty")
		}
		p.Name = name
	}
	if updates.Description != nil {
		p.Description = *updates.Description
	}
	if updates.TechStack != nil {
		p.TechStack = updates.TechStack
	}
	if updates.ProjectType != nil {
		p.ProjectType = *updates.ProjectType
	}
	if updates.Template != nil {
		p.Template = *updates.Template
	}
	if updates.Status != nil {
		switch *updates.Status {
		case models.ProjectStatusActive, models.ProjectStatusArchived:
			p.Status = *updates.Status
		default:
			return nil, appErr.Newf(appErr.CodeInvalid, "unknown project status %q", *updates.Status)
		}
	}
	if updates.IsPublic != nil {
		p.IsPublic = *updates.IsPublic
	}

	if err := s.projectRepo.Update(ctx, p); err != nil {
		return nil, err
	}
	logger.L().Info("project updated", zap.String("project_id", projectID.String()), zap.String("user_id", userID.String()))
	return p, nil
}

func (s *projectService) DeleteProject(ctx context.Context, projectID, userID uuid.UUID) error {
	if _, err := s.owned(ctx, projectID, userID); err != nil {
		return err
	}
	if err := s.fileRepo.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.projectRepo.Delete(ctx, projectID); err != nil {
		return err
	}
	s.mirror.RemoveProject(ctx, projectID)
	logger.L().Info("project deleted", zap.String("project_id", projectID.String()), zap.String("user_id", userID.String()))
	return nil
}

func (s *projectService) CreateSnapshot(ctx context.Context, projectID, userID uuid.UUID, name, description string) (*models.ProjectSnapshot, error) {
	if _, err := s.owned(ctx, projectID, userID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErr.New(appErr.CodeInvalid, "snapshot name is required")
	}
	snap := &models.ProjectSnapshot{ProjectID: projectID, Name: name, Description: description}
	if err := s.snapshotRepo.CreateFromProject(ctx, snap); err != nil {
		return nil, err
	}
	logger.L().Info("snapshot created",
		zap.String("project_id", projectID.String()), zap.String("snapshot_id", snap.ID.String()), zap.Int("files", snap.FileCount))
	return snap, nil
}

func (s *projectService) ListSnapshots(ctx context.Context, projectID, userID uuid.UUID) ([]models.ProjectSnapshot, error) {
	if _, err := s.owned(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.snapshotRepo.ListByProject(ctx, projectID)
}

func (s *projectService) RestoreSnapshot(ctx context.Context, projectID, snapshotID, userID uuid.UUID) ([]models.File, error) {
	if _, err := s.owned(ctx, projectID, userID); err != nil {
		return nil, err
	}
	var snap models.ProjectSnapshot
	if err := s.snapshotRepo.GetWithFiles(ctx, snapshotID, &snap); err != nil {
		return nil, err
	}
	if snap.ProjectID != projectID {
		return nil, appErr.New(appErr.CodeNotFound, "snapshot not found")
	}

	files, err := s.snapshotRepo.Restore(ctx, &snap)
	if err != nil {
		return nil, err
	}
	s.mirror.RemoveProject(ctx, projectID)
	for _, f := range files {
		s.mirror.Write(ctx, projectID, f.Path, f.Content)
	}
	logger.L().Info("snapshot restored",
		zap.String("project_id", projectID.String()), zap.String("snapshot_id", snapshotID.String()), zap.Int("files", len(files)))
	return files, nil
}
