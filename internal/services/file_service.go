package services

import (
	"context"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/internal/repository"
	"github.com/lumnicode/engine/internal/workspace"
	appErr "github.com/lumnicode/engine/pkg/errors"
	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/utils"
)

type FileService interface {
	ListFiles(ctx context.Context, projectID, userID uuid.UUID) ([]models.File, error)
	CreateFile(ctx context.Context, userID uuid.UUID, input *CreateFileInput) (*models.File, error)
	GetFile(ctx context.Context, fileID, userID uuid.UUID) (*models.File, error)
	UpdateFile(ctx context.Context, fileID, userID uuid.UUID, input *UpdateFileInput) (*models.File, error)
	DeleteFile(ctx context.Context, fileID, userID uuid.UUID) error
	ListVersions(ctx context.Context, fileID, userID uuid.UUID) ([]models.FileVersion, error)

	// WriteFile creates or overwrites the file at path without an ownership
	// check and reports whether it was created. Used by the generation worker.
	WriteFile(ctx context.Context, projectID uuid.UUID, filePath, content, message string) (*models.File, bool, error)
}

type CreateFileInput struct {
	// ProjectID arrives as a string so malformed ids are reported as invalid input.
	ProjectID string
	Name      string
	Path      string
	Content   string
	Language  string
}

type UpdateFileInput struct {
	Name     *string
	Path     *string
	Content  *string
	Language *string
	Message  string
}

type fileService struct {
	projectRepo repository.ProjectRepository
	fileRepo    repository.FileRepository
	mirror      *workspace.Mirror
}

func NewFileService(projectRepo repository.ProjectRepository, fileRepo repository.FileRepository, mirror *workspace.Mirror) FileService {
	if mirror == nil {
		mirror = workspace.NewMirror(nil)
	}
	return &fileService{projectRepo: projectRepo, fileRepo: fileRepo, mirror: mirror}
}

var _ FileService = (*fileService)(nil)

func (s *fileService) checkProject(ctx context.Context, projectID, userID uuid.UUID) error {
	var p models.Project
	return s.projectRepo.GetOwned(ctx, projectID, userID, &p)
}

func (s *fileService) ListFiles(ctx context.Context, projectID, userID uuid.UUID) ([]models.File, error) {
	if err := s.checkProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.fileRepo.ListByProject(ctx, projectID)
}

func (s *fileService) CreateFile(ctx context.Context, userID uuid.UUID, input *CreateFileInput) (*models.File, error) {
	projectID, err := uuid.Parse(input.ProjectID)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid project_id")
	}
	if err := s.checkProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	p := input.Path
	if p == "" {
		p = input.Name
	}
	clean := utils.CleanRelPath(p)
	if clean == "" {
		return nil, appErr.Newf(appErr.CodeInvalid, "invalid file path %q", p)
	}
	name := input.Name
	if name == "" {
		name = path.Base(clean)
	}
	lang := input.Language
	if lang == "" {
		lang = utils.LanguageFromPath(clean)
	}

	f := &models.File{
		ProjectID: projectID,
		Name:      name,
		Path:      clean,
		Content:   input.Content,
		Language:  lang,
		Checksum:  utils.ContentChecksum(input.Content),
	}
	if _, err := s.fileRepo.SaveWithVersion(ctx, f, "created"); err != nil {
		if appErr.IsCode(err, appErr.CodeConflict) {
			return nil, appErr.Newf(appErr.CodeConflict, "file %s already exists", clean)
		}
		return nil, err
	}
	s.mirror.Write(ctx, projectID, f.Path, f.Content)

	logger.L().Info("file created", zap.String("file_id", f.ID.String()), zap.String("project_id", projectID.String()), zap.String("path", f.Path))
	return f, nil
}

// GetFile treats files of foreign projects as missing.
func (s *fileService) GetFile(ctx context.Context, fileID, userID uuid.UUID) (*models.File, error) {
	var f models.File
	if err := s.fileRepo.GetByID(ctx, fileID, &f); err != nil {
		return nil, err
	}
	if err := s.checkProject(ctx, f.ProjectID, userID); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodeNotFound, "file not found")
		}
		return nil, err
	}
	return &f, nil
}

func (s *fileService) UpdateFile(ctx context.Context, fileID, userID uuid.UUID, input *UpdateFileInput) (*models.File, error) {
	f, err := s.GetFile(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}

	oldPath := f.Path
	if input.Path != nil {
		clean := utils.CleanRelPath(*input.Path)
		if clean == "" {
			return nil, appErr.Newf(appErr.CodeInvalid, "invalid file path %q", *input.Path)
		}
		f.Path = clean
	}
	if input.Name != nil && *input.Name != "" {
		f.Name = *input.Name
	}
	if input.Content != nil {
		f.Content = *input.Content
		f.Checksum = utils.ContentChecksum(f.Content)
	}
	if input.Language != nil && *input.Language != "" {
		f.Language = *input.Language
	}

	message := input.Message
	if message == "" {
		message = "updated"
	}
	if _, err := s.fileRepo.SaveWithVersion(ctx, f, message); err != nil {
		return nil, err
	}

	if oldPath != f.Path {
		s.mirror.Remove(ctx, f.ProjectID, oldPath)
	}
	s.mirror.Write(ctx, f.ProjectID, f.Path, f.Content)
	return f, nil
}

func (s *fileService) DeleteFile(ctx context.Context, fileID, userID uuid.UUID) error {
	f, err := s.GetFile(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if err := s.fileRepo.Delete(ctx, fileID); err != nil {
		return err
	}
	s.mirror.Remove(ctx, f.ProjectID, f.Path)
	logger.L().Info("file deleted", zap.String("file_id", fileID.String()), zap.String("path", f.Path))
	return nil
}

func (s *fileService) ListVersions(ctx context.Context, fileID, userID uuid.UUID) ([]models.FileVersion, error) {
	if _, err := s.GetFile(ctx, fileID, userID); err != nil {
		return nil, err
	}
	return s.fileRepo.ListVersions(ctx, fileID)
}

func (s *fileService) WriteFile(ctx context.Context, projectID uuid.UUID, filePath, content, message string) (*models.File, bool, error) {
	clean := utils.CleanRelPath(filePath)
	if clean == "" {
		return nil, false, appErr.Newf(appErr.CodeInvalid, "invalid file path %q", filePath)
	}

	var f models.File
	created := false
	err := s.fileRepo.GetByPath(ctx, projectID, clean, &f)
	switch {
	case err == nil:
	case appErr.IsCode(err, appErr.CodeNotFound):
		created = true
		f = models.File{
			ProjectID: projectID,
			Name:      path.Base(clean),
			Path:      clean,
			Language:  utils.LanguageFromPath(clean),
		}
	default:
		return nil, false, err
	}

	f.Content = content
	f.Checksum = utils.ContentChecksum(content)
	if _, err := s.fileRepo.SaveWithVersion(ctx, &f, message); err != nil {
		return nil, false, err
	}
	s.mirror.Write(ctx, projectID, f.Path, f.Content)
	return &f, created, nil
}
