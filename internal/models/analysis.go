package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an AnalysisRecord. Transitions are
// owned by the pipeline state machine and the review gateway.
type Status string

const (
	StatusPendingAI         Status = "PENDING_AI"
	StatusProcessing        Status = "PROCESSING"
	StatusAnalyzed          Status = "ANALYZED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusRevisionRequested Status = "REVISION_REQUESTED"
	StatusError             Status = "ERROR"
	StatusPermanentlyFailed Status = "PERMANENTLY_FAILED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusPermanentlyFailed
}

// MovementPattern is the canonical exercise category driving which base
// corrective protocols apply.
type MovementPattern string

const (
	PatternSquat      MovementPattern = "squat"
	PatternDeadlift   MovementPattern = "deadlift"
	PatternBenchPress MovementPattern = "bench_press"
	PatternPull       MovementPattern = "pull"
	PatternHipThrust  MovementPattern = "hip_thrust"
)

var knownPatterns = map[MovementPattern]bool{
	PatternSquat:      true,
	PatternDeadlift:   true,
	PatternBenchPress: true,
	PatternPull:       true,
	PatternHipThrust:  true,
}

func ValidPattern(p MovementPattern) bool {
	return knownPatterns[p]
}

// UpperBody reports whether the pattern loads primarily the upper body.
// Lower-body-only deviations are filtered out for these patterns.
func (p MovementPattern) UpperBody() bool {
	return p == PatternBenchPress || p == PatternPull
}

// AnalysisRecord is the aggregate root of the video analysis pipeline.
type AnalysisRecord struct {
	ID              string
	UserID          string
	UserName        string
	ArenaSlug       string
	MovementPattern MovementPattern
	UserDescription string

	VideoPath       string
	VideoURL        string
	ThumbnailPath   string
	DurationSeconds float64

	Status     Status
	AIAnalysis *AIAnalysis
	Confidence float64
	RetryCount int

	// Profile is the personalization input captured at submission so
	// plan generation stays consistent across retries.
	Profile *UserProfile

	ReviewerID        string
	ReviewerNotes     string
	PublishedAnalysis *AIAnalysis
	RejectionReason   string

	ViewCount       int
	HelpfulVotes    int
	NotHelpfulVotes int

	FPCost               int
	PaidWithSubscription bool

	CreatedAt    time.Time
	AIAnalyzedAt *time.Time
	ReviewedAt   *time.Time
	UpdatedAt    time.Time
}

func NewAnalysisRecord(userID, userName, arenaSlug string, pattern MovementPattern, description, videoPath, videoURL string) *AnalysisRecord {
	now := time.Now().UTC()
	return &AnalysisRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		UserName:        userName,
		ArenaSlug:       arenaSlug,
		MovementPattern: pattern,
		UserDescription: description,
		VideoPath:       videoPath,
		VideoURL:        videoURL,
		Status:          StatusPendingAI,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AIAnalysis is the full machine-generated payload attached to a record
// once the pipeline completes, or the failure reason when it does not.
type AIAnalysis struct {
	GeneratedAt     time.Time        `json:"generated_at"`
	Frames          []FrameResult    `json:"frames,omitempty"`
	Deviations      []DeviationFinding `json:"deviations,omitempty"`
	RiskLevel       RiskLevel        `json:"risk_level,omitempty"`
	OverallScore    float64          `json:"overall_score"`
	Confidence      float64          `json:"confidence"`
	Asymmetry       float64          `json:"asymmetry,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	CorrectivePlan  *CorrectivePlan  `json:"corrective_plan,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// FrameResult is one frame's assessment as returned by the vision model.
type FrameResult struct {
	Index       int      `json:"index"`
	TimestampMS int64    `json:"timestamp_ms"`
	Analysis    string   `json:"analysis"`
	Score       float64  `json:"score"`
	Issues      []string `json:"issues,omitempty"`
}

// Severity of a detected deviation, ordered mild < moderate < severe.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Rank returns the ordering value of the severity; unknown values rank
// below mild.
func (s Severity) Rank() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return 0
	}
}

// RiskLevel summarizes the worst severity found in an analysis.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
)

// DeviationFinding is a canonical biomechanical abnormality detected in
// the video, with the frame range over which it was observed.
type DeviationFinding struct {
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Joint      string   `json:"joint"`
	FrameStart int      `json:"frame_start"`
	FrameEnd   int      `json:"frame_end"`
}

// CorrectivePlan is an ordered multi-week remediation plan. Generation is
// deterministic for identical (deviations, profile) inputs; only the
// free-text rationale may vary when a text model is available.
type CorrectivePlan struct {
	ID                 string     `json:"id"`
	GeneratedAt        time.Time  `json:"generated_at"`
	Weeks              []WeekPlan `json:"weeks"`
	RetestGoal         string     `json:"retest_goal"`
	Notes              string     `json:"notes,omitempty"`
	PersonalizationLog []string   `json:"personalization_log,omitempty"`
}

type WeekPlan struct {
	Week         int               `json:"week"`
	Focus        string            `json:"focus"`
	TrainingDays int               `json:"training_days"`
	Goal         string            `json:"goal"`
	Exercises    []PlannedExercise `json:"exercises"`
}

type PlannedExercise struct {
	Name            string   `json:"name"`
	Purpose         string   `json:"purpose"`
	Sets            string   `json:"sets"`
	Frequency       string   `json:"frequency"`
	Steps           []string `json:"steps,omitempty"`
	Progression     string   `json:"progression"`
	TargetDeviation string   `json:"target_deviation"`
	Contraindicated bool     `json:"contraindicated,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
}

// TrainingAge buckets users by experience for volume scaling.
type TrainingAge string

const (
	TrainingAgeBeginner     TrainingAge = "beginner"
	TrainingAgeIntermediate TrainingAge = "intermediate"
	TrainingAgeAdvanced     TrainingAge = "advanced"
)

// UserProfile is the personalization input to plan generation.
type UserProfile struct {
	TrainingAge     TrainingAge `json:"training_age"`
	Injuries        []string    `json:"injuries,omitempty"`
	Equipment       []string    `json:"equipment,omitempty"`
	CurrentSymptoms []string    `json:"current_symptoms,omitempty"`
	WeeklyFrequency int         `json:"weekly_frequency"`
}

// VoteType for analysis helpfulness votes, one per (user, analysis).
type VoteType string

const (
	VoteHelpful    VoteType = "helpful"
	VoteNotHelpful VoteType = "not_helpful"
)
