package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/api"
	"github.com/lumnicode/engine/internal/api/handlers"
	mw "github.com/lumnicode/engine/internal/api/middleware"
	"github.com/lumnicode/engine/internal/app"
	"github.com/lumnicode/engine/internal/realtime"
	"github.com/lumnicode/engine/internal/services"
	"github.com/lumnicode/engine/pkg/config"
	"github.com/lumnicode/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting lumnicode api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer core.Close()

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer queue.Close()

	generation := services.NewGenerationService(core.Repos.Projects, core.Repos.Sessions, queue, core.Broker, core.LLM)

	auth, err := mw.Auth(mw.AuthConfig{
		PublicKeyPEM:    cfg.ClerkJWTPublicKey,
		Issuer:          cfg.ClerkIssuer,
		AllowUnverified: cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatal("auth setup failed", zap.Error(err))
	}
	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.Run(ctx)

	router := api.NewRouter(api.Dependencies{
		Auth:        auth,
		UserLoader:  mw.UserLoader(core.Users),
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSOrigins,

		HealthHandler: handlers.NewHealthHandler(map[string]handlers.Check{
			"postgres": core.PingPostgres,
			"redis":    core.PingRedis,
		}),
		AuthHandler:     handlers.NewAuthHandler(core.Users),
		ProjectsHandler: handlers.NewProjectsHandler(core.Projects),
		FilesHandler:    handlers.NewFilesHandler(core.Files),
		APIKeysHandler:  handlers.NewAPIKeysHandler(core.APIKeys),
		AIHandler:       handlers.NewAIHandler(generation, core.Assist),
		ProgressHub:     realtime.NewHub(core.Broker, generation, mw.RequestUserID, cfg.CORSOrigins),
	})

	// No WriteTimeout: progress WebSockets are long-lived.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}
