package api

import (
	"time"

	"github.com/fitarena/formcheck/internal/models"
	"github.com/fitarena/formcheck/internal/storage"
)

func storageInfo(filename, contentType string, size int64) storage.FileInfo {
	return storage.FileInfo{
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	}
}

// analysisResponse is the wire shape of a record. The raw machine
// payload is only included on detail fetches; listings stay light.
type analysisResponse struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"user_id"`
	UserName        string                 `json:"user_name,omitempty"`
	ArenaSlug       string                 `json:"arena_slug,omitempty"`
	MovementPattern models.MovementPattern `json:"movement_pattern"`
	Description     string                 `json:"description,omitempty"`
	VideoURL        string                 `json:"video_url"`
	ThumbnailPath   string                 `json:"thumbnail_path,omitempty"`
	DurationSeconds float64                `json:"duration_seconds,omitempty"`
	Status          models.Status          `json:"status"`
	Confidence      float64                `json:"confidence,omitempty"`
	RetryCount      int                    `json:"retry_count,omitempty"`
	AIAnalysis      *models.AIAnalysis     `json:"ai_analysis,omitempty"`
	Published       *models.AIAnalysis     `json:"published_analysis,omitempty"`
	ReviewerNotes   string                 `json:"reviewer_notes,omitempty"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	ViewCount       int                    `json:"view_count"`
	HelpfulVotes    int                    `json:"helpful_votes"`
	NotHelpfulVotes int                    `json:"not_helpful_votes"`
	FPCost          int                    `json:"fp_cost"`
	CreatedAt       time.Time              `json:"created_at"`
	ReviewedAt      *time.Time             `json:"reviewed_at,omitempty"`
}

func toAnalysisResponse(rec *models.AnalysisRecord, detail bool) *analysisResponse {
	resp := &analysisResponse{
		ID:              rec.ID,
		UserID:          rec.UserID,
		UserName:        rec.UserName,
		ArenaSlug:       rec.ArenaSlug,
		MovementPattern: rec.MovementPattern,
		Description:     rec.UserDescription,
		VideoURL:        rec.VideoURL,
		ThumbnailPath:   rec.ThumbnailPath,
		DurationSeconds: rec.DurationSeconds,
		Status:          rec.Status,
		Confidence:      rec.Confidence,
		RetryCount:      rec.RetryCount,
		ReviewerNotes:   rec.ReviewerNotes,
		RejectionReason: rec.RejectionReason,
		ViewCount:       rec.ViewCount,
		HelpfulVotes:    rec.HelpfulVotes,
		NotHelpfulVotes: rec.NotHelpfulVotes,
		FPCost:          rec.FPCost,
		CreatedAt:       rec.CreatedAt,
		ReviewedAt:      rec.ReviewedAt,
	}
	if detail {
		resp.AIAnalysis = rec.AIAnalysis
		resp.Published = rec.PublishedAnalysis
	}
	return resp
}
