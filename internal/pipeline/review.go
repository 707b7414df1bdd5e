package pipeline

import (
	"context"
	"strings"

	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/ledger"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
)

// ReviewService is the human gateway over machine-analyzed records.
// Every transition is a single guarded update in the repository, so two
// reviewers racing on the same record cannot both win.
type ReviewService struct {
	repo   *database.AnalysisRepository
	ledger ledger.Ledger
	bonus  int
	log    *logger.Logger
}

func NewReviewService(repo *database.AnalysisRepository, lgr ledger.Ledger, bonus int, baseLog *logger.Logger) *ReviewService {
	return &ReviewService{
		repo:   repo,
		ledger: lgr,
		bonus:  bonus,
		log:    baseLog.With("component", "review"),
	}
}

// Claim marks an ANALYZED record as UNDER_REVIEW by this reviewer.
func (s *ReviewService) Claim(ctx context.Context, id, reviewerID string) error {
	return s.repo.ClaimForReview(ctx, id, reviewerID)
}

// Approve publishes the reviewer-curated analysis and credits the
// submitter's review bonus. The credit is best-effort: the approval
// stands even if the ledger call fails.
func (s *ReviewService) Approve(ctx context.Context, id, reviewerID string, published *models.AIAnalysis, notes string) error {
	if emptyAnalysis(published) {
		return ErrEmptyPublished
	}

	if err := s.repo.Approve(ctx, id, reviewerID, published, notes); err != nil {
		return err
	}

	if s.bonus > 0 {
		// Read the submitter after the guarded update so the bonus
		// always goes to the record that actually got approved.
		record, err := s.repo.GetByID(ctx, id)
		if err != nil {
			s.log.Error("review bonus skipped, approved record unreadable",
				"analysis_id", id, "error", err)
		} else if err := s.ledger.Credit(ctx, record.UserID, s.bonus, "review_bonus:"+id); err != nil {
			s.log.Error("review bonus credit failed",
				"analysis_id", id, "user_id", record.UserID, "error", err)
		}
	}

	s.log.Info("analysis approved", "analysis_id", id, "reviewer_id", reviewerID)
	return nil
}

// emptyAnalysis reports whether a published payload carries no content
// worth approving: no frames, no deviations, no summary and no score.
func emptyAnalysis(a *models.AIAnalysis) bool {
	if a == nil {
		return true
	}
	return len(a.Frames) == 0 &&
		len(a.Deviations) == 0 &&
		strings.TrimSpace(a.Summary) == "" &&
		a.OverallScore == 0
}

// Reject declines the analysis with a reason. No bonus is paid.
func (s *ReviewService) Reject(ctx context.Context, id, reviewerID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}
	if err := s.repo.Reject(ctx, id, reviewerID, reason); err != nil {
		return err
	}
	s.log.Info("analysis rejected", "analysis_id", id, "reviewer_id", reviewerID, "reason", reason)
	return nil
}

// RequestRevision sends the record back to the submitter with notes on
// what to fix before re-filming.
func (s *ReviewService) RequestRevision(ctx context.Context, id, reviewerID, notes string) error {
	if strings.TrimSpace(notes) == "" {
		return ErrEmptyNotes
	}
	if err := s.repo.RequestRevision(ctx, id, reviewerID, notes); err != nil {
		return err
	}
	s.log.Info("revision requested", "analysis_id", id, "reviewer_id", reviewerID)
	return nil
}
