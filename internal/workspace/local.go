package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps files under a root directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) resolve(projectID uuid.UUID, path string) (string, error) {
	key, err := objectKey(projectID, path)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

func (s *LocalStore) Put(_ context.Context, projectID uuid.UUID, path string, content []byte) error {
	full, err := s.resolve(projectID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

func (s *LocalStore) Delete(_ context.Context, projectID uuid.UUID, path string) error {
	full, err := s.resolve(projectID, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) DeleteProject(_ context.Context, projectID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(s.root, projectID.String()))
}
