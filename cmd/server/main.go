package main

import (
	"context"
	"log"
	"net/http"

	"github.com/fitarena/formcheck/internal/ai"
	"github.com/fitarena/formcheck/internal/api"
	"github.com/fitarena/formcheck/internal/cache"
	"github.com/fitarena/formcheck/internal/classifier"
	"github.com/fitarena/formcheck/internal/config"
	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/extract"
	"github.com/fitarena/formcheck/internal/knowledge"
	"github.com/fitarena/formcheck/internal/ledger"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/pipeline"
	"github.com/fitarena/formcheck/internal/plan"
	"github.com/fitarena/formcheck/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}

	logg, err := logger.New(cfg.Mode)
	if err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer logg.Sync()

	db, err := database.NewDB(database.Config{Path: cfg.Database.Path})
	if err != nil {
		logg.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		logg.Fatal("failed to run migrations", "error", err)
	}

	store, err := storage.NewLocalStorage(cfg.Storage.UploadDir, cfg.Storage.PublicURL)
	if err != nil {
		logg.Fatal("failed to init storage", "error", err)
	}

	extractor, err := extract.NewFrameExtractor(logg)
	if err != nil {
		logg.Fatal("ffmpeg not available", "error", err)
	}

	redisCache := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logg)
	defer redisCache.Close()
	if err := redisCache.Ping(context.Background()); err != nil {
		logg.Warn("redis unreachable, plan caching disabled in effect", "error", err)
	}

	ollama := ai.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.VisionModel, cfg.Ollama.TextModel, cfg.Ollama.Timeout)
	vision := ai.NewVisionService(ollama, logg)

	planner := plan.NewGenerator(knowledge.NewBase(), ollama, redisCache, cfg.Redis.PlanTTL, logg)

	ledgerClient := ledger.NewHTTPLedger(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)

	repo := database.NewAnalysisRepository(db)
	svc := pipeline.NewService(repo, store, extractor, vision, classifier.New(), planner, ledgerClient, pipeline.Config{
		FrameCount:       cfg.Extract.FrameCount,
		FrameSize:        cfg.Extract.FrameSize,
		ExtractTimeout:   cfg.Extract.Timeout,
		InferenceTimeout: cfg.Ollama.Timeout,
		MaxInFlight:      cfg.Ollama.MaxInFlight,
		VideoFPCost:      cfg.Ledger.VideoFPCost,
	}, logg)

	review := pipeline.NewReviewService(repo, ledgerClient, cfg.Ledger.ReviewBonus, logg)
	reconciler := pipeline.NewReconciler(repo, svc, pipeline.ReconcilerConfig{
		StuckThreshold: cfg.Pipeline.StuckThreshold,
		BatchSize:      cfg.Pipeline.SweepBatchSize,
		MaxRetries:     cfg.Pipeline.MaxRetries,
	}, logg)

	app := &api.App{
		Pipeline:      svc,
		Review:        review,
		Reconciler:    reconciler,
		Repo:          repo,
		Ledger:        ledgerClient,
		VideoFPCost:   cfg.Ledger.VideoFPCost,
		MaxUploadSize: cfg.HTTP.MaxUploadSize,
		Log:           logg,
	}

	router := api.NewRouter(app, cfg.Storage.UploadDir)

	logg.Info("server starting", "port", cfg.HTTP.Port)
	if err := http.ListenAndServe(":"+cfg.HTTP.Port, router); err != nil {
		logg.Fatal("server stopped", "error", err)
	}
}
