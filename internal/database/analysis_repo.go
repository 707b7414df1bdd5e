package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fitarena/formcheck/internal/models"
)

var (
	ErrNotFound = errors.New("analysis not found")

	// ErrWrongStatus is returned by guarded updates when the record is
	// not in the state the transition requires.
	ErrWrongStatus = errors.New("analysis not in required status")

	ErrSelfVote = errors.New("cannot vote on own analysis")
)

// maxPayloadUnwrap bounds the defensive decoding of historically
// double-encoded ai_analysis payloads. New writes are always canonical
// structured JSON; the unwrap exists only so old rows keep reading.
const maxPayloadUnwrap = 3

type AnalysisRepository struct {
	db *DB
}

func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

const analysisColumns = `id, user_id, user_name, arena_slug, movement_pattern, user_description,
	video_path, video_url, thumbnail_path, duration_seconds, status, ai_analysis, confidence,
	retry_count, reviewer_id, reviewer_notes, published_analysis, rejection_reason,
	view_count, helpful_votes, not_helpful_votes, fp_cost, paid_with_subscription,
	user_profile, created_at, ai_analyzed_at, reviewed_at, updated_at`

func (r *AnalysisRepository) Insert(ctx context.Context, a *models.AnalysisRecord) error {
	aiJSON, err := encodePayload(a.AIAnalysis)
	if err != nil {
		return fmt.Errorf("failed to encode ai analysis: %w", err)
	}
	pubJSON, err := encodePayload(a.PublishedAnalysis)
	if err != nil {
		return fmt.Errorf("failed to encode published analysis: %w", err)
	}

	profJSON, err := encodeProfile(a.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}

	query := `INSERT INTO analyses (` + analysisColumns + `) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.conn.ExecContext(ctx, query,
		a.ID, a.UserID, a.UserName, a.ArenaSlug, string(a.MovementPattern), a.UserDescription,
		a.VideoPath, a.VideoURL, a.ThumbnailPath, a.DurationSeconds, string(a.Status), aiJSON, a.Confidence,
		a.RetryCount, a.ReviewerID, a.ReviewerNotes, pubJSON, a.RejectionReason,
		a.ViewCount, a.HelpfulVotes, a.NotHelpfulVotes, a.FPCost, a.PaidWithSubscription,
		profJSON, a.CreatedAt, nullTime(a.AIAnalyzedAt), nullTime(a.ReviewedAt), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

type ListOptions struct {
	ArenaSlug string
	Statuses  []models.Status
	Pattern   models.MovementPattern
	UserID    string
	Limit     int
	Offset    int
	// IncludeErrors exposes ERROR and PERMANENTLY_FAILED records, which
	// are hidden from normal listings.
	IncludeErrors bool
}

func (r *AnalysisRepository) List(ctx context.Context, opts ListOptions) ([]*models.AnalysisRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	var conds []string
	var args []interface{}

	if opts.ArenaSlug != "" {
		conds = append(conds, "arena_slug = ?")
		args = append(args, opts.ArenaSlug)
	}
	if opts.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.Pattern != "" {
		conds = append(conds, "movement_pattern = ?")
		args = append(args, string(opts.Pattern))
	}
	statuses := opts.Statuses
	if !opts.IncludeErrors {
		// Failure states stay invisible even when asked for by name.
		statuses = nil
		for _, s := range opts.Statuses {
			if s != models.StatusError && s != models.StatusPermanentlyFailed {
				statuses = append(statuses, s)
			}
		}
		if len(opts.Statuses) > 0 && len(statuses) == 0 {
			return nil, nil
		}
	}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	} else if !opts.IncludeErrors {
		conds = append(conds, "status NOT IN (?, ?)")
		args = append(args, string(models.StatusError), string(models.StatusPermanentlyFailed))
	}

	query := `SELECT ` + analysisColumns + ` FROM analyses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var out []*models.AnalysisRecord
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClaimForProcessing performs the atomic PENDING_AI -> PROCESSING
// compare-and-set. Exactly one of any number of concurrent callers
// observes claimed=true; the rest see a no-op.
func (r *AnalysisRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.StatusProcessing), time.Now().UTC(), id, string(models.StatusPendingAI))
	if err != nil {
		return false, fmt.Errorf("failed to claim analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAnalyzed writes the full AI payload, confidence and ANALYZED status
// in a single statement. Only valid while the record is PROCESSING; a
// record deleted mid-run surfaces as ErrNotFound.
func (r *AnalysisRepository) SetAnalyzed(ctx context.Context, id string, payload *models.AIAnalysis, confidence float64) error {
	aiJSON, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("failed to encode ai analysis: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, ai_analysis = ?, confidence = ?, ai_analyzed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(models.StatusAnalyzed), aiJSON, confidence, now, now, id, string(models.StatusProcessing))
	if err != nil {
		return fmt.Errorf("failed to mark analyzed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVideoMeta records the extracted thumbnail and probed duration.
func (r *AnalysisRepository) SetVideoMeta(ctx context.Context, id, thumbnailPath string, durationSeconds float64) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET thumbnail_path = ?, duration_seconds = ?, updated_at = ? WHERE id = ?`,
		thumbnailPath, durationSeconds, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set video metadata: %w", err)
	}
	return nil
}

// SetError moves a PROCESSING record to ERROR with the failure reason
// embedded in the payload. The record is kept for the reconciler.
func (r *AnalysisRepository) SetError(ctx context.Context, id, reason string) error {
	payload := &models.AIAnalysis{GeneratedAt: time.Now().UTC(), Error: reason}
	aiJSON, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("failed to encode error payload: %w", err)
	}
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, ai_analysis = ?, updated_at = ? WHERE id = ?`,
		string(models.StatusError), aiJSON, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark error: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SelectStuck returns records eligible for reconciliation: anything in
// ERROR, plus PENDING_AI records older than the threshold. Oldest first,
// capped at limit. PROCESSING records are never selected.
func (r *AnalysisRepository) SelectStuck(ctx context.Context, threshold time.Duration, limit int) ([]*models.AnalysisRecord, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses
		 WHERE status = ? OR (status = ? AND updated_at < ?)
		 ORDER BY created_at ASC LIMIT ?`,
		string(models.StatusError), string(models.StatusPendingAI), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select stuck analyses: %w", err)
	}
	defer rows.Close()

	var out []*models.AnalysisRecord
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Requeue resets a stuck record for another pipeline run: partial AI
// output is discarded, the retry counter bumped and status returned to
// PENDING_AI. Guarded so a record concurrently picked up (PROCESSING) or
// finished is left alone.
func (r *AnalysisRepository) Requeue(ctx context.Context, id string) (bool, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, ai_analysis = NULL, confidence = 0,
		 retry_count = retry_count + 1, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusPendingAI), time.Now().UTC(), id,
		string(models.StatusError), string(models.StatusPendingAI))
	if err != nil {
		return false, fmt.Errorf("failed to requeue analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkPermanentlyFailed retires a record that exhausted its retry budget.
func (r *AnalysisRepository) MarkPermanentlyFailed(ctx context.Context, id string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusPermanentlyFailed), time.Now().UTC(), id,
		string(models.StatusError), string(models.StatusPendingAI))
	if err != nil {
		return fmt.Errorf("failed to mark permanently failed: %w", err)
	}
	return nil
}

// Approve transitions ANALYZED (or claimed UNDER_REVIEW) -> APPROVED with
// the human-published payload, atomically. ErrWrongStatus when the record
// is in any other state.
func (r *AnalysisRepository) Approve(ctx context.Context, id, reviewerID string, published *models.AIAnalysis, notes string) error {
	pubJSON, err := encodePayload(published)
	if err != nil {
		return fmt.Errorf("failed to encode published analysis: %w", err)
	}
	now := time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, reviewer_id = ?, reviewer_notes = ?, published_analysis = ?,
		 reviewed_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusApproved), reviewerID, notes, pubJSON, now, now, id,
		string(models.StatusAnalyzed), string(models.StatusUnderReview))
	if err != nil {
		return fmt.Errorf("failed to approve analysis: %w", err)
	}
	return r.reviewResult(ctx, id, res)
}

func (r *AnalysisRepository) Reject(ctx context.Context, id, reviewerID, reason string) error {
	now := time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, reviewer_id = ?, rejection_reason = ?,
		 reviewed_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusRejected), reviewerID, reason, now, now, id,
		string(models.StatusAnalyzed), string(models.StatusUnderReview))
	if err != nil {
		return fmt.Errorf("failed to reject analysis: %w", err)
	}
	return r.reviewResult(ctx, id, res)
}

func (r *AnalysisRepository) RequestRevision(ctx context.Context, id, reviewerID, notes string) error {
	now := time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, reviewer_id = ?, reviewer_notes = ?,
		 reviewed_at = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.StatusRevisionRequested), reviewerID, notes, now, now, id,
		string(models.StatusAnalyzed), string(models.StatusUnderReview))
	if err != nil {
		return fmt.Errorf("failed to request revision: %w", err)
	}
	return r.reviewResult(ctx, id, res)
}

// ClaimForReview optionally marks an ANALYZED record as UNDER_REVIEW so
// other reviewers see it is taken.
func (r *AnalysisRepository) ClaimForReview(ctx context.Context, id, reviewerID string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, reviewer_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(models.StatusUnderReview), reviewerID, time.Now().UTC(), id, string(models.StatusAnalyzed))
	if err != nil {
		return fmt.Errorf("failed to claim for review: %w", err)
	}
	return r.reviewResult(ctx, id, res)
}

// Resubmit re-enters a REVISION_REQUESTED record into the queue,
// clearing prior AI state so partial results never mix.
func (r *AnalysisRepository) Resubmit(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE analyses SET status = ?, ai_analysis = NULL, confidence = 0,
		 reviewer_notes = '', updated_at = ? WHERE id = ? AND status = ?`,
		string(models.StatusPendingAI), time.Now().UTC(), id, string(models.StatusRevisionRequested))
	if err != nil {
		return fmt.Errorf("failed to resubmit analysis: %w", err)
	}
	return r.reviewResult(ctx, id, res)
}

func (r *AnalysisRepository) reviewResult(ctx context.Context, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := r.db.conn.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM analyses WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrWrongStatus
}

func (r *AnalysisRepository) IncrementViewCount(ctx context.Context, id string) error {
	_, err := r.db.conn.ExecContext(ctx,
		"UPDATE analyses SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return nil
}

// Vote upserts one vote per (analysis, user) and refreshes the tallies.
// The record owner cannot vote on their own analysis.
func (r *AnalysisRepository) Vote(ctx context.Context, analysisID, userID string, vote models.VoteType) error {
	record, err := r.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}
	if record.UserID == userID {
		return ErrSelfVote
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin vote transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_votes (analysis_id, user_id, vote_type, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(analysis_id, user_id) DO UPDATE SET vote_type = excluded.vote_type`,
		analysisID, userID, string(vote), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE analyses SET
		   helpful_votes = (SELECT COUNT(1) FROM analysis_votes WHERE analysis_id = ? AND vote_type = ?),
		   not_helpful_votes = (SELECT COUNT(1) FROM analysis_votes WHERE analysis_id = ? AND vote_type = ?)
		 WHERE id = ?`,
		analysisID, string(models.VoteHelpful), analysisID, string(models.VoteNotHelpful), analysisID); err != nil {
		return fmt.Errorf("failed to refresh vote tallies: %w", err)
	}

	return tx.Commit()
}

func (r *AnalysisRepository) GetUserVote(ctx context.Context, analysisID, userID string) (models.VoteType, error) {
	var vote string
	err := r.db.conn.QueryRowContext(ctx,
		"SELECT vote_type FROM analysis_votes WHERE analysis_id = ? AND user_id = ?",
		analysisID, userID).Scan(&vote)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get vote: %w", err)
	}
	return models.VoteType(vote), nil
}

func (r *AnalysisRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM analysis_votes WHERE analysis_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete votes: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(s scanner) (*models.AnalysisRecord, error) {
	var a models.AnalysisRecord
	var pattern, status string
	var aiJSON, pubJSON, profJSON sql.NullString
	var analyzedAt, reviewedAt sql.NullTime

	err := s.Scan(
		&a.ID, &a.UserID, &a.UserName, &a.ArenaSlug, &pattern, &a.UserDescription,
		&a.VideoPath, &a.VideoURL, &a.ThumbnailPath, &a.DurationSeconds, &status, &aiJSON, &a.Confidence,
		&a.RetryCount, &a.ReviewerID, &a.ReviewerNotes, &pubJSON, &a.RejectionReason,
		&a.ViewCount, &a.HelpfulVotes, &a.NotHelpfulVotes, &a.FPCost, &a.PaidWithSubscription,
		&profJSON, &a.CreatedAt, &analyzedAt, &reviewedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	a.MovementPattern = models.MovementPattern(pattern)
	a.Status = models.Status(status)
	if analyzedAt.Valid {
		t := analyzedAt.Time
		a.AIAnalyzedAt = &t
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}

	if aiJSON.Valid && aiJSON.String != "" {
		payload, err := decodePayload(aiJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ai analysis for %s: %w", a.ID, err)
		}
		a.AIAnalysis = payload
	}
	if pubJSON.Valid && pubJSON.String != "" {
		payload, err := decodePayload(pubJSON.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode published analysis for %s: %w", a.ID, err)
		}
		a.PublishedAnalysis = payload
	}
	if profJSON.Valid && profJSON.String != "" {
		var profile models.UserProfile
		if err := json.Unmarshal([]byte(profJSON.String), &profile); err != nil {
			return nil, fmt.Errorf("failed to decode user profile for %s: %w", a.ID, err)
		}
		a.Profile = &profile
	}

	return &a, nil
}

func encodePayload(p *models.AIAnalysis) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func encodeProfile(p *models.UserProfile) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodePayload parses an ai_analysis column value. Legacy rows were
// sometimes persisted as a JSON-encoded string of JSON (occasionally
// nested twice); unwrap those up to maxPayloadUnwrap levels before
// decoding the structured form.
func decodePayload(raw string) (*models.AIAnalysis, error) {
	data := []byte(raw)
	for i := 0; i < maxPayloadUnwrap; i++ {
		trimmed := strings.TrimSpace(string(data))
		if len(trimmed) == 0 {
			return nil, nil
		}
		if trimmed[0] != '"' {
			break
		}
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, fmt.Errorf("malformed string-encoded payload: %w", err)
		}
		data = []byte(inner)
	}

	var payload models.AIAnalysis
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// nullTime converts a *time.Time to a driver-friendly value.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
