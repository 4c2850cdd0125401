// Package app wires the pieces shared by the API server and the worker.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lumnicode/engine/internal/llm"
	"github.com/lumnicode/engine/internal/realtime"
	"github.com/lumnicode/engine/internal/repository"
	"github.com/lumnicode/engine/internal/services"
	"github.com/lumnicode/engine/internal/workspace"
	"github.com/lumnicode/engine/pkg/config"
	"github.com/lumnicode/engine/pkg/crypto"
	"github.com/lumnicode/engine/pkg/database"
	"github.com/lumnicode/engine/pkg/logger"
)

type Repositories struct {
	Users     repository.UserRepository
	Projects  repository.ProjectRepository
	Files     repository.FileRepository
	Snapshots repository.SnapshotRepository
	Sessions  repository.SessionRepository
	APIKeys   repository.APIKeyRepository
	Usage     repository.UsageRepository
}

// Core holds long-lived connections and the services built on them.
type Core struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Repos  Repositories
	Sealer *crypto.Sealer
	LLM    *llm.Router
	Broker *realtime.RedisBroker
	Mirror *workspace.Mirror

	Users    services.UserService
	Projects services.ProjectService
	Files    services.FileService
	APIKeys  services.APIKeyService
	Assist   services.AssistService
}

func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	log := logger.Named("app")

	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.PostgresOptions{Verbose: cfg.LogLevel == "debug"})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	rdb, err := database.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("open redis: %w", err)
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(cfg.EncryptionKeyID, map[string][]byte{cfg.EncryptionKeyID: key})
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	store, err := workspace.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	log.Info("workspace mirror ready", zap.String("backend", cfg.WorkspaceBackend))
	mirror := workspace.NewMirror(store)

	repos := Repositories{
		Users:     repository.NewUserRepository(db),
		Projects:  repository.NewProjectRepository(db),
		Files:     repository.NewFileRepository(db),
		Snapshots: repository.NewSnapshotRepository(db),
		Sessions:  repository.NewSessionRepository(db),
		APIKeys:   repository.NewAPIKeyRepository(db),
		Usage:     repository.NewUsageRepository(db),
	}
	router := llm.NewRouter(repos.APIKeys, repos.Usage, sealer, llm.RouterConfig{
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
	})

	return &Core{
		DB:     db,
		Redis:  rdb,
		Repos:  repos,
		Sealer: sealer,
		LLM:    router,
		Broker: realtime.NewRedisBroker(rdb),
		Mirror: mirror,

		Users:    services.NewUserService(repos.Users),
		Projects: services.NewProjectService(repos.Projects, repos.Files, repos.Snapshots, mirror),
		Files:    services.NewFileService(repos.Projects, repos.Files, mirror),
		APIKeys:  services.NewAPIKeyService(repos.APIKeys, repos.Usage, llm.NewValidator(cfg.ProviderTimeout), sealer),
		Assist:   services.NewAssistService(router),
	}, nil
}

// PingPostgres and PingRedis back the readiness probe.
func (c *Core) PingPostgres(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Core) PingRedis(ctx context.Context) error {
	return c.Redis.Ping(ctx).Err()
}

func (c *Core) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
