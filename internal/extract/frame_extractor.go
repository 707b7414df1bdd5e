package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fitarena/formcheck/internal/logger"
)

// DecodeError means the video itself is unreadable: the duration probe
// failed or the decoder rejected the input.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode video %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExtractionError means the video decoded but frame capture produced
// fewer than the minimum viable count.
type ExtractionError struct {
	Path     string
	Captured int
	Wanted   int
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracted %d/%d frames from %s", e.Captured, e.Wanted, e.Path)
}

// Frame is one still image with its offset into the video.
type Frame struct {
	Data      []byte
	Timestamp time.Duration
}

// Result is the ordered output of one extraction run.
type Result struct {
	Frames    []Frame
	Thumbnail []byte // midpoint frame, for listing previews
	Duration  time.Duration
}

type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
	log         *logger.Logger
}

func NewFrameExtractor(baseLog *logger.Logger) (*FrameExtractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	// ffprobe is optional; duration falls back to parsing ffmpeg output.
	ffprobePath, _ := exec.LookPath("ffprobe")

	return &FrameExtractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         baseLog.With("component", "FrameExtractor"),
	}, nil
}

// ExtractFrames probes the video duration and captures count frames at
// evenly spaced timestamps, plus one midpoint frame for the thumbnail.
// All temporary files live in a per-call directory removed on every exit
// path.
func (fe *FrameExtractor) ExtractFrames(ctx context.Context, videoPath string, count, size int) (*Result, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, &DecodeError{Path: videoPath, Err: err}
	}

	duration, err := fe.probeDuration(ctx, videoPath)
	if err != nil {
		return nil, &DecodeError{Path: videoPath, Err: err}
	}
	if duration <= 0 {
		return nil, &DecodeError{Path: videoPath, Err: fmt.Errorf("invalid duration %.2fs", duration)}
	}

	workDir, err := os.MkdirTemp("", "formcheck-frames-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	result := &Result{Duration: time.Duration(duration * float64(time.Second))}

	interval := duration / float64(count+1)
	for i := 1; i <= count; i++ {
		timestamp := interval * float64(i)

		data, err := fe.captureFrame(ctx, videoPath, workDir, timestamp, size)
		if err != nil {
			fe.log.Warn("frame capture failed", "index", i, "timestamp", timestamp, "error", err)
			continue
		}
		result.Frames = append(result.Frames, Frame{
			Data:      data,
			Timestamp: time.Duration(timestamp * float64(time.Second)),
		})
	}

	if len(result.Frames) == 0 {
		return nil, &ExtractionError{Path: videoPath, Captured: 0, Wanted: count}
	}

	thumb, err := fe.captureFrame(ctx, videoPath, workDir, duration/2, size)
	if err != nil {
		fe.log.Warn("thumbnail capture failed", "error", err)
		// Fall back to the first captured frame rather than failing the run.
		thumb = result.Frames[0].Data
	}
	result.Thumbnail = thumb

	fe.log.Debug("extraction complete", "frames", len(result.Frames), "duration_s", duration)
	return result, nil
}

func (fe *FrameExtractor) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	if fe.ffprobePath != "" {
		cmd := exec.CommandContext(ctx, fe.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Run(); err == nil {
			durationStr := strings.TrimSpace(stdout.String())
			if duration, err := strconv.ParseFloat(durationStr, 64); err == nil && duration > 0 {
				return duration, nil
			}
		}
	}

	// Fallback: parse "Duration: HH:MM:SS.ss," from ffmpeg stderr.
	cmd := exec.CommandContext(ctx, fe.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	return parseFFmpegDuration(stderr.String())
}

func parseFFmpegDuration(output string) (float64, error) {
	const prefix = "Duration: "
	start := strings.Index(output, prefix)
	if start == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	start += len(prefix)

	end := strings.Index(output[start:], ",")
	if end == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	parts := strings.Split(output[start:start+end], ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", output[start:start+end])
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}

	return hours*3600 + minutes*60 + seconds, nil
}

func (fe *FrameExtractor) captureFrame(ctx context.Context, videoPath, workDir string, timestamp float64, size int) ([]byte, error) {
	outFile := filepath.Join(workDir, fmt.Sprintf("frame_%.3f.jpg", timestamp))

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease", size, size),
		"-q:v", "2",
		"-f", "mjpeg",
		"-y",
		outFile,
	}

	cmd := exec.CommandContext(ctx, fe.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed at %.2fs: %w (%s)", timestamp, err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted frame: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty frame at %.2fs", timestamp)
	}

	return data, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
