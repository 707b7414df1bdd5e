// Package pipeline owns the analysis lifecycle: economy-gated
// submission, the asynchronous multi-stage AI run, stuck-job
// reconciliation and the human review gateway.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fitarena/formcheck/internal/ai"
	"github.com/fitarena/formcheck/internal/classifier"
	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/extract"
	"github.com/fitarena/formcheck/internal/ledger"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
	"github.com/fitarena/formcheck/internal/storage"
)

// Extractor produces frames from a stored video file.
type Extractor interface {
	ExtractFrames(ctx context.Context, videoPath string, count, size int) (*extract.Result, error)
}

// Vision assesses extracted frames through the model backend.
type Vision interface {
	Available(ctx context.Context) error
	AnalyzeFrames(ctx context.Context, frames []extract.Frame, pattern models.MovementPattern, focusAreas []string) (*ai.Assessment, error)
}

// Planner turns classified deviations into a corrective plan.
type Planner interface {
	Generate(ctx context.Context, deviations []models.DeviationFinding, profile models.UserProfile, pattern models.MovementPattern) (*models.CorrectivePlan, error)
}

// Config is the pipeline's tunable surface, filled from the application
// settings.
type Config struct {
	FrameCount       int
	FrameSize        int
	ExtractTimeout   time.Duration
	InferenceTimeout time.Duration
	MaxInFlight      int64
	VideoFPCost      int
}

type Service struct {
	repo       *database.AnalysisRepository
	store      storage.Storage
	extractor  Extractor
	vision     Vision
	classifier *classifier.Classifier
	planner    Planner
	ledger     ledger.Ledger
	cfg        Config
	sem        *semaphore.Weighted
	log        *logger.Logger
}

func NewService(repo *database.AnalysisRepository, store storage.Storage, extractor Extractor, vision Vision, cls *classifier.Classifier, planner Planner, lgr ledger.Ledger, cfg Config, baseLog *logger.Logger) *Service {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	return &Service{
		repo:       repo,
		store:      store,
		extractor:  extractor,
		vision:     vision,
		classifier: cls,
		planner:    planner,
		ledger:     lgr,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(cfg.MaxInFlight),
		log:        baseLog.With("component", "pipeline"),
	}
}

type SubmitRequest struct {
	UserID      string
	UserName    string
	ArenaSlug   string
	Pattern     models.MovementPattern
	Description string
	Profile     *models.UserProfile

	Video    multipart.File
	FileInfo storage.FileInfo
}

// Submit runs the paid-feature gate, stores the video, debits the
// ledger and creates the PENDING_AI record. Nothing is persisted and
// nothing is charged when the gate denies. The pipeline run itself is
// asynchronous; callers get the record back in PENDING_AI.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.AnalysisRecord, error) {
	if !models.ValidPattern(req.Pattern) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, req.Pattern)
	}

	decision, err := ledger.CheckGate(ctx, s.ledger, req.UserID, s.cfg.VideoFPCost)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &GatingDeniedError{Cost: decision.Cost, Available: decision.Available}
	}

	videoKey, err := s.store.SaveFile(req.Video, req.FileInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to store video: %w", err)
	}

	record := models.NewAnalysisRecord(req.UserID, req.UserName, req.ArenaSlug,
		req.Pattern, req.Description, videoKey, s.store.PublicURL(videoKey))
	record.Profile = req.Profile
	record.FPCost = s.cfg.VideoFPCost
	record.PaidWithSubscription = decision.WaivedBySub

	if !decision.WaivedBySub {
		if err := s.ledger.Debit(ctx, req.UserID, s.cfg.VideoFPCost, "video_analysis:"+record.ID); err != nil {
			s.removeBlob(videoKey)
			var insufficient *ledger.InsufficientFundsError
			if errors.As(err, &insufficient) {
				// Balance changed between gate and debit.
				return nil, &GatingDeniedError{Cost: insufficient.Required, Available: insufficient.Available}
			}
			return nil, fmt.Errorf("failed to debit submission cost: %w", err)
		}
	}

	if err := s.repo.Insert(ctx, record); err != nil {
		s.removeBlob(videoKey)
		if !decision.WaivedBySub {
			if cerr := s.ledger.Credit(ctx, req.UserID, s.cfg.VideoFPCost, "refund:"+record.ID); cerr != nil {
				s.log.Error("refund after failed insert did not go through",
					"analysis_id", record.ID, "user_id", req.UserID, "error", cerr)
			}
		}
		return nil, err
	}

	s.log.Info("video submitted",
		"analysis_id", record.ID, "user_id", req.UserID, "pattern", req.Pattern,
		"cost", record.FPCost, "waived", record.PaidWithSubscription)
	return record, nil
}

// ProcessAsync kicks off a pipeline run detached from the caller's
// request context.
func (s *Service) ProcessAsync(id string) {
	go func() {
		if err := s.Process(context.Background(), id); err != nil {
			s.log.Error("pipeline run failed", "analysis_id", id, "error", err)
		}
	}()
}

// Process claims a PENDING_AI record and runs the full stage sequence.
// Losing the claim race is a silent no-op so any number of workers can
// race on the same id safely.
func (s *Service) Process(ctx context.Context, id string) error {
	claimed, err := s.repo.ClaimForProcessing(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Debug("analysis not claimable, skipping", "analysis_id", id)
		return nil
	}

	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}

	payload, err := s.runStages(ctx, record)
	if err != nil {
		s.log.Warn("pipeline stage failed", "analysis_id", id, "error", err)
		if serr := s.repo.SetError(ctx, id, err.Error()); serr != nil && !errors.Is(serr, database.ErrNotFound) {
			return serr
		}
		return nil
	}

	if err := s.repo.SetAnalyzed(ctx, id, payload, payload.Confidence); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Deleted (or otherwise moved on) while we were working.
			s.log.Warn("analysis vanished mid-run, dropping result", "analysis_id", id)
			return nil
		}
		return err
	}

	s.log.Info("analysis complete",
		"analysis_id", id, "score", payload.OverallScore,
		"confidence", payload.Confidence, "risk", payload.RiskLevel)
	return nil
}

// runStages executes extraction, inference, classification and plan
// generation in order. Any failure aborts the sequence; the caller
// persists it as an ERROR.
func (s *Service) runStages(ctx context.Context, record *models.AnalysisRecord) (*models.AIAnalysis, error) {
	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
	defer cancel()

	result, err := s.extractor.ExtractFrames(extractCtx, s.store.FilePath(record.VideoPath), s.cfg.FrameCount, s.cfg.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("frame extraction: %w", err)
	}

	if len(result.Thumbnail) > 0 {
		thumbKey, terr := s.store.SaveBytes(result.Thumbnail, ".jpg")
		if terr != nil {
			s.log.Warn("thumbnail save failed", "analysis_id", record.ID, "error", terr)
		} else if merr := s.repo.SetVideoMeta(ctx, record.ID, thumbKey, result.Duration.Seconds()); merr != nil {
			s.log.Warn("video metadata update failed", "analysis_id", record.ID, "error", merr)
		}
	}

	if err := s.vision.Available(ctx); err != nil {
		return nil, fmt.Errorf("vision backend: %w", err)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for inference slot: %w", err)
	}
	inferCtx, cancelInfer := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	assessment, err := s.vision.AnalyzeFrames(inferCtx, result.Frames, record.MovementPattern, focusAreas(record.MovementPattern))
	cancelInfer()
	s.sem.Release(1)
	if err != nil {
		return nil, fmt.Errorf("vision inference: %w", err)
	}

	classification := s.classifier.Classify(assessment.Frames, record.MovementPattern)

	profile := models.UserProfile{}
	if record.Profile != nil {
		profile = *record.Profile
	}
	plan, err := s.planner.Generate(ctx, classification.Deviations, profile, record.MovementPattern)
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	return &models.AIAnalysis{
		GeneratedAt:     time.Now().UTC(),
		Frames:          assessment.Frames,
		Deviations:      classification.Deviations,
		RiskLevel:       classification.RiskLevel,
		OverallScore:    assessment.OverallScore,
		Confidence:      assessment.Confidence,
		Asymmetry:       classification.Asymmetry,
		Summary:         assessment.Summary,
		Recommendations: assessment.Recommendations,
		CorrectivePlan:  plan,
	}, nil
}

// Resubmit re-enters a REVISION_REQUESTED record into the queue. Only
// the submitter may do this.
func (s *Service) Resubmit(ctx context.Context, id, userID string) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record.UserID != userID {
		return ErrNotOwner
	}
	if err := s.repo.Resubmit(ctx, id); err != nil {
		return err
	}
	s.ProcessAsync(id)
	return nil
}

// Remove deletes an analysis and its stored media. Blobs go first so a
// partial failure leaves the record visible rather than orphaned files.
func (s *Service) Remove(ctx context.Context, id, userID string, admin bool) error {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !admin && record.UserID != userID {
		return ErrNotOwner
	}

	s.removeBlob(record.VideoPath)
	if record.ThumbnailPath != "" {
		s.removeBlob(record.ThumbnailPath)
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) removeBlob(key string) {
	if key == "" {
		return
	}
	if err := s.store.DeleteFile(key); err != nil {
		s.log.Warn("blob removal failed", "key", key, "error", err)
	}
}

// focusAreas biases the vision prompt toward the joints that matter for
// the movement.
func focusAreas(pattern models.MovementPattern) []string {
	switch pattern {
	case models.PatternSquat:
		return []string{"knee tracking", "hip depth", "trunk angle", "heel contact"}
	case models.PatternDeadlift:
		return []string{"lumbar position", "bar path", "hip hinge", "neck position"}
	case models.PatternBenchPress:
		return []string{"elbow path", "scapular position", "bar path", "wrist stacking"}
	case models.PatternPull:
		return []string{"scapular control", "elbow path", "trunk stability"}
	case models.PatternHipThrust:
		return []string{"lumbar position", "hip extension", "knee alignment"}
	default:
		return nil
	}
}
