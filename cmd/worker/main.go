package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/app"
	"github.com/lumnicode/engine/internal/queue/tasks"
	"github.com/lumnicode/engine/internal/scheduler"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer core.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
			Logger:      logger.Named("asynq").Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
				log.Error("task failed", zap.String("type", t.Type()), zap.Error(err))
			}),
		},
	)

	handler := tasks.NewGenerateTaskHandler(
		core.Repos.Sessions,
		core.Repos.Projects,
		core.Files,
		core.LLM,
		core.Broker,
		cfg.GenerationPollInterval,
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeGenerate, handler.HandleGenerate)

	cron := scheduler.New(core.APIKeys)
	if err := cron.Register(cfg.UsageResetSchedule, cfg.KeyValidationSchedule); err != nil {
		log.Fatal("scheduler setup failed", zap.Error(err))
	}
	cron.Start()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: m, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("worker stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	cron.Stop(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	srv.Shutdown()
	log.Info("worker exited")
}
