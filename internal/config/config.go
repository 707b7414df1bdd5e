package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds every tunable for the server and the analysis pipeline.
// Values come from environment variables (FORMCHECK_ prefix) with the
// defaults below.
type Settings struct {
	Mode string // "dev" or "prod", selects logger config

	HTTP struct {
		Port          string
		MaxUploadSize int64 // bytes
	}

	Database struct {
		Path           string // sqlite file path
		MigrationsPath string
	}

	Storage struct {
		UploadDir string
		PublicURL string // base URL prepended to stored file names
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
		PlanTTL  time.Duration // memoized corrective plans
	}

	Ollama struct {
		URL          string
		VisionModel  string
		TextModel    string
		Timeout      time.Duration // per inference call
		MaxInFlight  int64         // concurrency cap on the shared backend
	}

	Extract struct {
		FrameCount int
		FrameSize  int
		Timeout    time.Duration // ffmpeg/ffprobe subprocess budget
	}

	Pipeline struct {
		StuckThreshold time.Duration // PENDING_AI older than this is stale
		SweepBatchSize int
		MaxRetries     int // sweeps before PERMANENTLY_FAILED
	}

	Ledger struct {
		BaseURL     string
		VideoFPCost int
		ReviewBonus int
		Timeout     time.Duration
	}
}

func Load() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("FORMCHECK")
	v.AutomaticEnv()

	v.SetDefault("mode", "dev")
	v.SetDefault("port", "8080")
	v.SetDefault("max_upload_size", int64(104857600))
	v.SetDefault("db_path", "./formcheck.db")
	v.SetDefault("migrations_path", "./migrations")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("public_url", "http://localhost:8080/media")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("plan_cache_ttl", "168h")
	v.SetDefault("ollama_url", "http://localhost:11434")
	v.SetDefault("vision_model", "llama3.2-vision")
	v.SetDefault("text_model", "llama3.1:8b")
	v.SetDefault("inference_timeout", "3m")
	v.SetDefault("inference_max_in_flight", 2)
	v.SetDefault("frame_count", 6)
	v.SetDefault("frame_size", 512)
	v.SetDefault("extract_timeout", "60s")
	v.SetDefault("stuck_threshold", "5m")
	v.SetDefault("sweep_batch_size", 5)
	v.SetDefault("max_retries", 3)
	v.SetDefault("ledger_url", "http://localhost:8081")
	v.SetDefault("video_fp_cost", 25)
	v.SetDefault("review_bonus_fp", 15)
	v.SetDefault("ledger_timeout", "10s")

	s := &Settings{}
	s.Mode = v.GetString("mode")
	s.HTTP.Port = v.GetString("port")
	s.HTTP.MaxUploadSize = v.GetInt64("max_upload_size")
	s.Database.Path = v.GetString("db_path")
	s.Database.MigrationsPath = v.GetString("migrations_path")
	s.Storage.UploadDir = v.GetString("upload_dir")
	s.Storage.PublicURL = v.GetString("public_url")
	s.Redis.Addr = v.GetString("redis_addr")
	s.Redis.Password = v.GetString("redis_password")
	s.Redis.DB = v.GetInt("redis_db")
	s.Redis.PlanTTL = v.GetDuration("plan_cache_ttl")
	s.Ollama.URL = v.GetString("ollama_url")
	s.Ollama.VisionModel = v.GetString("vision_model")
	s.Ollama.TextModel = v.GetString("text_model")
	s.Ollama.Timeout = v.GetDuration("inference_timeout")
	s.Ollama.MaxInFlight = v.GetInt64("inference_max_in_flight")
	s.Extract.FrameCount = v.GetInt("frame_count")
	s.Extract.FrameSize = v.GetInt("frame_size")
	s.Extract.Timeout = v.GetDuration("extract_timeout")
	s.Pipeline.StuckThreshold = v.GetDuration("stuck_threshold")
	s.Pipeline.SweepBatchSize = v.GetInt("sweep_batch_size")
	s.Pipeline.MaxRetries = v.GetInt("max_retries")
	s.Ledger.BaseURL = v.GetString("ledger_url")
	s.Ledger.VideoFPCost = v.GetInt("video_fp_cost")
	s.Ledger.ReviewBonus = v.GetInt("review_bonus_fp")
	s.Ledger.Timeout = v.GetDuration("ledger_timeout")

	if s.Extract.FrameCount < 1 {
		return nil, fmt.Errorf("frame_count must be at least 1, got %d", s.Extract.FrameCount)
	}
	if s.Pipeline.SweepBatchSize < 1 {
		return nil, fmt.Errorf("sweep_batch_size must be at least 1, got %d", s.Pipeline.SweepBatchSize)
	}
	if s.Ollama.MaxInFlight < 1 {
		s.Ollama.MaxInFlight = 1
	}

	return s, nil
}
