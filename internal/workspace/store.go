// Package workspace mirrors project files outside the database, on local
// disk or in an S3 bucket, keyed by "<project_id>/<path>".
package workspace

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/pkg/logger"
	"github.com/lumnicode/engine/pkg/utils"
)

// ErrInvalidPath is returned for empty paths or paths escaping the project root.
var ErrInvalidPath = errors.New("workspace: invalid path")

type Store interface {
	Put(ctx context.Context, projectID uuid.UUID, path string, content []byte) error
	Delete(ctx context.Context, projectID uuid.UUID, path string) error
	DeleteProject(ctx context.Context, projectID uuid.UUID) error
}

// Mirror writes through to a Store and only logs failures.
type Mirror struct {
	store Store
	log   *zap.Logger
}

func NewMirror(store Store) *Mirror {
	if store == nil {
		store = NopStore{}
	}
	return &Mirror{store: store, log: logger.Named("workspace")}
}

func (m *Mirror) Write(ctx context.Context, projectID uuid.UUID, path, content string) {
	if err := m.store.Put(ctx, projectID, path, []byte(content)); err != nil {
		m.log.Warn("mirror write failed", zap.String("project_id", projectID.String()), zap.String("path", path), zap.Error(err))
	}
}

func (m *Mirror) Remove(ctx context.Context, projectID uuid.UUID, path string) {
	if err := m.store.Delete(ctx, projectID, path); err != nil {
		m.log.Warn("mirror delete failed", zap.String("project_id", projectID.String()), zap.String("path", path), zap.Error(err))
	}
}

func (m *Mirror) RemoveProject(ctx context.Context, projectID uuid.UUID) {
	if err := m.store.DeleteProject(ctx, projectID); err != nil {
		m.log.Warn("mirror project delete failed", zap.String("project_id", projectID.String()), zap.Error(err))
	}
}

func objectKey(projectID uuid.UUID, path string) (string, error) {
	clean := utils.CleanRelPath(path)
	if clean == "" {
		return "", ErrInvalidPath
	}
	return projectID.String() + "/" + clean, nil
}

type NopStore struct{}

func (NopStore) Put(context.Context, uuid.UUID, string, []byte) error { return nil }
func (NopStore) Delete(context.Context, uuid.UUID, string) error      { return nil }
func (NopStore) DeleteProject(context.Context, uuid.UUID) error       { return nil }
