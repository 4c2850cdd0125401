package workspace

import (
	"context"
	"fmt"

	"github.com/lumnicode/engine/pkg/config"
)

// Open builds the Store selected by WORKSPACE_BACKEND.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.WorkspaceBackend {
	case "", "local":
		return NewLocalStore(cfg.WorkingDir)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown workspace backend %q", cfg.WorkspaceBackend)
	}
}
