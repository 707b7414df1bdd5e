package pipeline

import (
	"context"
	"time"

	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/logger"
)

// ReconcilerConfig bounds one sweep.
type ReconcilerConfig struct {
	StuckThreshold time.Duration
	BatchSize      int
	MaxRetries     int
}

// Reconciler recovers analyses stranded in ERROR or stale PENDING_AI.
// It never touches PROCESSING records, so a sweep racing a live worker
// is harmless, and repeating a sweep over an already-clean table is a
// no-op.
type Reconciler struct {
	repo *database.AnalysisRepository
	svc  *Service
	cfg  ReconcilerConfig
	log  *logger.Logger
}

func NewReconciler(repo *database.AnalysisRepository, svc *Service, cfg ReconcilerConfig, baseLog *logger.Logger) *Reconciler {
	return &Reconciler{
		repo: repo,
		svc:  svc,
		cfg:  cfg,
		log:  baseLog.With("component", "reconciler"),
	}
}

// RecordOutcome is one stuck record's fate during a sweep.
type RecordOutcome struct {
	ID         string `json:"id"`
	Action     string `json:"action"` // "requeued", "retired", "skipped"
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error,omitempty"`
}

type SweepResult struct {
	Scanned  int             `json:"scanned"`
	Requeued int             `json:"requeued"`
	Retired  int             `json:"retired"`
	Records  []RecordOutcome `json:"records,omitempty"`
}

// Sweep selects stuck records oldest first and either retires those
// that exhausted their retry budget or requeues and re-runs the rest.
// Re-runs are synchronous so a caller (the sweep binary, the admin
// endpoint) sees finished work, not scheduled work.
func (rc *Reconciler) Sweep(ctx context.Context) (*SweepResult, error) {
	stuck, err := rc.repo.SelectStuck(ctx, rc.cfg.StuckThreshold, rc.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(stuck)}
	for _, rec := range stuck {
		outcome := RecordOutcome{ID: rec.ID, RetryCount: rec.RetryCount}

		if rec.RetryCount >= rc.cfg.MaxRetries {
			if err := rc.repo.MarkPermanentlyFailed(ctx, rec.ID); err != nil {
				outcome.Action = "skipped"
				outcome.Error = err.Error()
			} else {
				outcome.Action = "retired"
				result.Retired++
				rc.log.Warn("analysis retired after exhausting retries",
					"analysis_id", rec.ID, "retry_count", rec.RetryCount)
			}
			result.Records = append(result.Records, outcome)
			continue
		}

		requeued, err := rc.repo.Requeue(ctx, rec.ID)
		if err != nil {
			outcome.Action = "skipped"
			outcome.Error = err.Error()
			result.Records = append(result.Records, outcome)
			continue
		}
		if !requeued {
			// Someone claimed or finished it between select and requeue.
			outcome.Action = "skipped"
			result.Records = append(result.Records, outcome)
			continue
		}

		outcome.Action = "requeued"
		outcome.RetryCount = rec.RetryCount + 1
		result.Requeued++

		if err := rc.svc.Process(ctx, rec.ID); err != nil {
			outcome.Error = err.Error()
		}
		result.Records = append(result.Records, outcome)
	}

	rc.log.Info("sweep finished",
		"scanned", result.Scanned, "requeued", result.Requeued, "retired", result.Retired)
	return result, nil
}
