package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/models"
	"github.com/lumnicode/engine/pkg/config"
	"github.com/lumnicode/engine/pkg/database"
	"github.com/lumnicode/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL, database.PostgresOptions{
		Verbose:      cfg.LogLevel == "debug",
		MaxOpenConns: 2,
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := models.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
