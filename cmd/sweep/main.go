// Command sweep runs one reconciliation pass over stuck analyses and
// prints the outcome. Intended for cron or manual operation next to the
// server's /api/admin/sweep endpoint.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/fitarena/formcheck/internal/ai"
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

	reconciler := pipeline.NewReconciler(repo, svc, pipeline.ReconcilerConfig{
		StuckThreshold: cfg.Pipeline.StuckThreshold,
		BatchSize:      cfg.Pipeline.SweepBatchSize,
		MaxRetries:     cfg.Pipeline.MaxRetries,
	}, logg)

	result, err := reconciler.Sweep(context.Background())
	if err != nil {
		logg.Fatal("sweep failed", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logg.Fatal("failed to print sweep result", "error", err)
	}
}
