package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gorm.io/gorm/logger"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/database"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", true, "Dry run mode, only report expired uploads")
	timeout = flag.Duration("timeout", 10*time.Minute, "Maximum time for the cleanup run")
)

func main() {
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}

	log := sl.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Info("starting cleanup task", "dry_run", *dryRun)

	db, err := database.New(&cfg.Database, logger.Warn)
	if err != nil {
		log.Error("failed to connect database", sl.Err(err))
		os.Exit(1)
	}

	var store oss.Store = oss.NewMemoryStore()
	if cfg.Storage.Provider == "oss" {
		client, err := oss.NewClient(&cfg.Storage.OSS)
		if err != nil {
			log.Error("failed to init oss", sl.Err(err))
			os.Exit(1)
		}
		store = client
	}

	uploadRepo := repository.NewUploadRepository(db)
	entitlement := service.NewEntitlementService(
		repository.NewUserRepository(db),
		repository.NewTestRepository(db),
		uploadRepo,
		cfg,
	)
	uploads := service.NewUploadService(uploadRepo, entitlement, store, metrics.New(), cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	count, err := uploads.DeleteExpired(ctx, time.Now(), *dryRun)
	if err != nil {
		log.Error("cleanup failed", "deleted", count, sl.Err(err))
		os.Exit(1)
	}

	if *dryRun {
		log.Info("dry run finished, nothing deleted", "expired", count)
		log.Info("run with -dry-run=false to delete")
		return
	}
	log.Info("cleanup completed", "deleted", count)
}
