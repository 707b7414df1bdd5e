package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/ledger"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
	"github.com/fitarena/formcheck/internal/pipeline"
)

// Identity headers are injected by the platform gateway; this service
// trusts them.
const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
	headerRole     = "X-User-Role" // "member", "reviewer", "admin"
)

type App struct {
	Pipeline      *pipeline.Service
	Review        *pipeline.ReviewService
	Reconciler    *pipeline.Reconciler
	Repo          *database.AnalysisRepository
	Ledger        ledger.Ledger
	VideoFPCost   int
	MaxUploadSize int64
	Log           *logger.Logger
}

func (app *App) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		app.Log.Error("failed to write response", "error", err)
	}
}

func (app *App) respondError(w http.ResponseWriter, status int, msg string) {
	app.respondJSON(w, status, map[string]string{"error": msg})
}

// handleDomainError maps service errors onto HTTP statuses.
func (app *App) handleDomainError(w http.ResponseWriter, err error) {
	var gating *pipeline.GatingDeniedError
	switch {
	case errors.Is(err, database.ErrNotFound):
		app.respondError(w, http.StatusNotFound, "analysis not found")
	case errors.Is(err, database.ErrWrongStatus):
		app.respondError(w, http.StatusConflict, "analysis is not in a state that allows this operation")
	case errors.Is(err, database.ErrSelfVote):
		app.respondError(w, http.StatusForbidden, "cannot vote on your own analysis")
	case errors.Is(err, pipeline.ErrNotOwner):
		app.respondError(w, http.StatusForbidden, "analysis belongs to another user")
	case errors.Is(err, pipeline.ErrUnknownPattern):
		app.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrEmptyPublished),
		errors.Is(err, pipeline.ErrEmptyReason),
		errors.Is(err, pipeline.ErrEmptyNotes):
		app.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gating):
		app.respondJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     "insufficient fitness points",
			"cost":      gating.Cost,
			"available": gating.Available,
			"shortfall": gating.Shortfall(),
		})
	default:
		app.Log.Error("request failed", "error", err)
		app.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func identity(r *http.Request) (userID, userName, role string) {
	return r.Header.Get(headerUserID), r.Header.Get(headerUserName), r.Header.Get(headerRole)
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// SubmitHandler accepts a multipart video upload plus metadata and
// enters it into the analysis queue.
func (app *App) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, userName, _ := identity(r)
	if userID == "" {
		app.respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)
	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		app.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		app.respondError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") && contentType != "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".mp4" && ext != ".mov" && ext != ".webm" {
			app.respondError(w, http.StatusBadRequest, "unsupported video format")
			return
		}
	}

	var profile *models.UserProfile
	if raw := r.FormValue("profile"); raw != "" {
		profile = &models.UserProfile{}
		if err := json.Unmarshal([]byte(raw), profile); err != nil {
			app.respondError(w, http.StatusBadRequest, "malformed profile")
			return
		}
	}

	record, err := app.Pipeline.Submit(r.Context(), pipeline.SubmitRequest{
		UserID:      userID,
		UserName:    userName,
		ArenaSlug:   r.FormValue("arena"),
		Pattern:     models.MovementPattern(r.FormValue("pattern")),
		Description: r.FormValue("description"),
		Profile:     profile,
		Video:       file,
		FileInfo:    storageInfo(header.Filename, contentType, header.Size),
	})
	if err != nil {
		app.handleDomainError(w, err)
		return
	}

	app.Pipeline.ProcessAsync(record.ID)
	app.respondJSON(w, http.StatusAccepted, toAnalysisResponse(record, false))
}

// ListHandler returns analyses filtered by arena, status and pattern.
// ERROR and PERMANENTLY_FAILED are hidden unless an admin asks.
func (app *App) ListHandler(w http.ResponseWriter, r *http.Request) {
	_, _, role := identity(r)
	q := r.URL.Query()

	opts := database.ListOptions{
		ArenaSlug: q.Get("arena"),
		Pattern:   models.MovementPattern(q.Get("pattern")),
		UserID:    q.Get("user"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset >= 0 {
		opts.Offset = offset
	}
	for _, s := range q["status"] {
		opts.Statuses = append(opts.Statuses, models.Status(s))
	}
	if q.Get("includeErrors") == "true" && role == "admin" {
		opts.IncludeErrors = true
	}

	records, err := app.Repo.List(r.Context(), opts)
	if err != nil {
		app.handleDomainError(w, err)
		return
	}

	out := make([]*analysisResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toAnalysisResponse(rec, false))
	}
	app.respondJSON(w, http.StatusOK, map[string]interface{}{"analyses": out})
}

// GetHandler fetches one analysis and bumps its view counter.
func (app *App) GetHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := app.Repo.GetByID(r.Context(), id)
	if err != nil {
		app.handleDomainError(w, err)
		return
	}

	if err := app.Repo.IncrementViewCount(r.Context(), id); err != nil {
		app.Log.Warn("view count bump failed", "analysis_id", id, "error", err)
	} else {
		record.ViewCount++
	}

	app.respondJSON(w, http.StatusOK, toAnalysisResponse(record, true))
}

func (app *App) VoteHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := identity(r)
	if userID == "" {
		app.respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	id := chi.URLParam(r, "id")

	var body struct {
		Vote string `json:"vote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		app.respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	vote := models.VoteType(body.Vote)
	if vote != models.VoteHelpful && vote != models.VoteNotHelpful {
		app.respondError(w, http.StatusBadRequest, "vote must be helpful or not_helpful")
		return
	}

	if err := app.Repo.Vote(r.Context(), id, userID, vote); err != nil {
		app.handleDomainError(w, err)
		return
	}

	record, err := app.Repo.GetByID(r.Context(), id)
	if err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, map[string]int{
		"helpful_votes":     record.HelpfulVotes,
		"not_helpful_votes": record.NotHelpfulVotes,
	})
}

func (app *App) ResubmitHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := identity(r)
	if userID == "" {
		app.respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	id := chi.URLParam(r, "id")

	if err := app.Pipeline.Resubmit(r.Context(), id, userID); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusAccepted, map[string]string{"status": string(models.StatusPendingAI)})
}

func (app *App) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, role := identity(r)
	if userID == "" {
		app.respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	id := chi.URLParam(r, "id")

	if err := app.Pipeline.Remove(r.Context(), id, userID, role == "admin"); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusNoContent, nil)
}

// GatingHandler is the pre-submission affordability check.
func (app *App) GatingHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := identity(r)
	if userID == "" {
		app.respondError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	decision, err := ledger.CheckGate(r.Context(), app.Ledger, userID, app.VideoFPCost)
	if err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, decision)
}

func (app *App) reviewerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, _, role := identity(r)
	if userID == "" || (role != "reviewer" && role != "admin") {
		app.respondError(w, http.StatusForbidden, "reviewer role required")
		return "", false
	}
	return userID, true
}

func (app *App) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := app.reviewerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var body struct {
		Published *models.AIAnalysis `json:"published"`
		Notes     string             `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		app.respondError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if err := app.Review.Approve(r.Context(), id, reviewer, body.Published, body.Notes); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusApproved)})
}

func (app *App) RejectHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := app.reviewerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		app.respondError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if err := app.Review.Reject(r.Context(), id, reviewer, body.Reason); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRejected)})
}

func (app *App) ReviseHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := app.reviewerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		app.respondError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if err := app.Review.RequestRevision(r.Context(), id, reviewer, body.Notes); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRevisionRequested)})
}

func (app *App) ClaimReviewHandler(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := app.reviewerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := app.Review.Claim(r.Context(), id, reviewer); err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusUnderReview)})
}

// SweepHandler triggers a reconciliation pass and reports per-record
// outcomes.
func (app *App) SweepHandler(w http.ResponseWriter, r *http.Request) {
	_, _, role := identity(r)
	if role != "admin" {
		app.respondError(w, http.StatusForbidden, "admin role required")
		return
	}

	result, err := app.Reconciler.Sweep(r.Context())
	if err != nil {
		app.handleDomainError(w, err)
		return
	}
	app.respondJSON(w, http.StatusOK, result)
}
