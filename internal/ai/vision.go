package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/fitarena/formcheck/internal/extract"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
)

// VisionClient is what the vision service needs from the model backend.
type VisionClient interface {
	Available(ctx context.Context) error
	AnalyzeImage(ctx context.Context, imageData []byte, prompt string) (string, error)
}

// Confidence weighting: coverage is the fraction of requested frames
// that produced a usable assessment, agreement is how tightly per-frame
// scores cluster. The blend must stay monotonic in both.
const (
	agreementWeight = 0.6
	coverageWeight  = 0.4
)

type VisionService struct {
	client VisionClient
	log    *logger.Logger
}

func NewVisionService(client VisionClient, baseLog *logger.Logger) *VisionService {
	return &VisionService{
		client: client,
		log:    baseLog.With("component", "VisionService"),
	}
}

// Available exposes the backend capability probe to callers.
func (s *VisionService) Available(ctx context.Context) error {
	return s.client.Available(ctx)
}

// AnalyzeFrames runs the vision model over every frame and aggregates
// per-frame scores into an overall assessment. Frames whose responses
// cannot be parsed are skipped; if no frame parses, the whole call fails
// with a ParseError.
func (s *VisionService) AnalyzeFrames(ctx context.Context, frames []extract.Frame, pattern models.MovementPattern, focusAreas []string) (*Assessment, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to analyze")
	}

	prompt := buildFramePrompt(pattern, focusAreas)

	assessment := &Assessment{}
	var lastParseErr error

	for i, frame := range frames {
		raw, err := s.client.AnalyzeImage(ctx, frame.Data, prompt)
		if err != nil {
			return nil, fmt.Errorf("inference failed on frame %d: %w", i, err)
		}

		parsed, err := parseFrameResponse(raw)
		if err != nil {
			s.log.Warn("unparseable frame response", "frame", i, "error", err)
			lastParseErr = err
			continue
		}

		assessment.Frames = append(assessment.Frames, models.FrameResult{
			Index:       i,
			TimestampMS: frame.Timestamp.Milliseconds(),
			Analysis:    parsed.Analysis,
			Score:       clampScore(parsed.Score),
			Issues:      parsed.Issues,
		})
	}

	if len(assessment.Frames) == 0 {
		if lastParseErr != nil {
			return nil, lastParseErr
		}
		return nil, fmt.Errorf("no frame produced a usable assessment")
	}

	assessment.OverallScore = meanScore(assessment.Frames)
	assessment.Confidence = deriveConfidence(assessment.Frames, len(frames))
	assessment.Summary = summarize(assessment.Frames)
	assessment.Recommendations = collectRecommendations(assessment.Frames)

	s.log.Debug("frames analyzed",
		"frames", len(assessment.Frames),
		"overall_score", assessment.OverallScore,
		"confidence", assessment.Confidence)

	return assessment, nil
}

func buildFramePrompt(pattern models.MovementPattern, focusAreas []string) string {
	focus := strings.Join(focusAreas, ", ")
	if focus == "" {
		focus = "technique, posture, range of motion"
	}

	return fmt.Sprintf(`You are an expert strength coach reviewing a still frame from a %s exercise video.
Assess the lifter's form in this frame, focusing on: %s.

Respond with ONLY a JSON object, no text before or after, in exactly this shape:
{
  "analysis": "two or three sentences describing what you see in the lifter's form",
  "score": 7.5,
  "issues": ["short issue description", "..."]
}

Rules:
- "score" is 0-10 where 10 is flawless form for this frame.
- "issues" lists observable form faults only (e.g. "knees caving inward", "lower back rounding"); empty list if none.`,
		strings.ReplaceAll(string(pattern), "_", " "), focus)
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseFrameResponse enforces the strict schema on loosely structured
// model output: locate the JSON object, decode it, validate the score.
func parseFrameResponse(raw string) (*frameResponse, error) {
	match := jsonObjectRe.FindString(raw)
	if match == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("no JSON object in response")}
	}

	var parsed frameResponse
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	if parsed.Analysis == "" {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("missing analysis text")}
	}
	if parsed.Score < 0 || parsed.Score > 10 {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("score %.2f out of range", parsed.Score)}
	}

	return &parsed, nil
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(10, score))
}

func meanScore(frames []models.FrameResult) float64 {
	sum := 0.0
	for _, f := range frames {
		sum += f.Score
	}
	return clampScore(sum / float64(len(frames)))
}

// deriveConfidence blends frame coverage with cross-frame agreement.
// Agreement is 1 minus the normalized score standard deviation; both
// terms rise monotonically with better input.
func deriveConfidence(frames []models.FrameResult, requested int) float64 {
	if requested <= 0 {
		return 0
	}

	coverage := float64(len(frames)) / float64(requested)
	if coverage > 1 {
		coverage = 1
	}

	mean := 0.0
	for _, f := range frames {
		mean += f.Score
	}
	mean /= float64(len(frames))

	variance := 0.0
	for _, f := range frames {
		d := f.Score - mean
		variance += d * d
	}
	variance /= float64(len(frames))
	stddev := math.Sqrt(variance)

	// Scores live on [0,10]; a 5-point spread already means the frames
	// disagree completely.
	agreement := 1 - math.Min(stddev/5.0, 1.0)

	confidence := agreementWeight*agreement + coverageWeight*coverage
	return math.Max(0, math.Min(1, confidence))
}

func summarize(frames []models.FrameResult) string {
	issueCount := 0
	for _, f := range frames {
		issueCount += len(f.Issues)
	}
	if issueCount == 0 {
		return fmt.Sprintf("No form faults observed across %d analyzed frames.", len(frames))
	}
	return fmt.Sprintf("%d potential form faults observed across %d analyzed frames.", issueCount, len(frames))
}

func collectRecommendations(frames []models.FrameResult) []string {
	seen := make(map[string]bool)
	var recs []string
	for _, f := range frames {
		for _, issue := range f.Issues {
			key := strings.ToLower(strings.TrimSpace(issue))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			recs = append(recs, "Address: "+issue)
		}
	}
	return recs
}
