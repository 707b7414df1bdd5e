package ai

import (
	"errors"
	"fmt"

	"github.com/fitarena/formcheck/internal/models"
)

// ErrModelUnavailable is returned by the capability probe when the
// configured vision model is not loaded on the inference backend.
// Callers short-circuit instead of attempting a call that would time out.
var ErrModelUnavailable = errors.New("vision model unavailable")

// ParseError signals that the model answered but its output did not
// match the expected schema. Treated as a stage failure like any other.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse inference response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// frameResponse is the strict schema the vision model is instructed to
// return for each frame. Anything else is a ParseError.
type frameResponse struct {
	Analysis string   `json:"analysis"`
	Score    float64  `json:"score"`
	Issues   []string `json:"issues"`
}

// Assessment is the vision service's aggregate output for one video.
type Assessment struct {
	Frames          []models.FrameResult
	OverallScore    float64
	Confidence      float64
	Summary         string
	Recommendations []string
}
