package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fitarena/formcheck/internal/ai"
	"github.com/fitarena/formcheck/internal/classifier"
	"github.com/fitarena/formcheck/internal/database"
	"github.com/fitarena/formcheck/internal/extract"
	"github.com/fitarena/formcheck/internal/knowledge"
	"github.com/fitarena/formcheck/internal/ledger"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
	"github.com/fitarena/formcheck/internal/plan"
	"github.com/fitarena/formcheck/internal/storage"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// memFile adapts a byte slice to multipart.File.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func newMemFile(data []byte) memFile {
	return memFile{bytes.NewReader(data)}
}

// fakeStorage is an in-memory blob store.
type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: map[string][]byte{}}
}

func (s *fakeStorage) SaveFile(file multipart.File, info storage.FileInfo) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	key := uuid.New().String() + filepath.Ext(info.Filename)
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return key, nil
}

func (s *fakeStorage) SaveBytes(data []byte, ext string) (string, error) {
	key := uuid.New().String() + ext
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return key, nil
}

func (s *fakeStorage) OpenFile(key string) (io.ReadSeekCloser, error) {
	s.mu.Lock()
	data, ok := s.blobs[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such blob: %s", key)
	}
	return newMemFile(data), nil
}

func (s *fakeStorage) DeleteFile(key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

func (s *fakeStorage) FilePath(key string) string  { return key }
func (s *fakeStorage) PublicURL(key string) string { return "http://test/media/" + key }

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// fakeLedger tracks movements in memory.
type fakeLedger struct {
	mu           sync.Mutex
	balance      int
	subscription string
	debits       []int
	credits      []int
}

func (l *fakeLedger) GetBalance(ctx context.Context, userID string) (ledger.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ledger.Balance{UserID: userID, Available: l.balance, Subscription: l.subscription}, nil
}

func (l *fakeLedger) Debit(ctx context.Context, userID string, amount int, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance < amount {
		return &ledger.InsufficientFundsError{Required: amount, Available: l.balance}
	}
	l.balance -= amount
	l.debits = append(l.debits, amount)
	return nil
}

func (l *fakeLedger) Credit(ctx context.Context, userID string, amount int, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	l.credits = append(l.credits, amount)
	return nil
}

// fakeExtractor returns synthetic frames without touching ffmpeg.
type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) ExtractFrames(ctx context.Context, videoPath string, count, size int) (*extract.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	frames := make([]extract.Frame, count)
	for i := range frames {
		frames[i] = extract.Frame{Data: []byte{0xFF}, Timestamp: time.Duration(i) * time.Second}
	}
	return &extract.Result{Frames: frames, Thumbnail: []byte{0xFF}, Duration: 30 * time.Second}, nil
}

// fakeVision returns canned frame results.
type fakeVision struct {
	frames   []models.FrameResult
	err      error
	availErr error
}

func (v *fakeVision) Available(ctx context.Context) error { return v.availErr }

func (v *fakeVision) AnalyzeFrames(ctx context.Context, frames []extract.Frame, pattern models.MovementPattern, focusAreas []string) (*ai.Assessment, error) {
	if v.err != nil {
		return nil, v.err
	}
	score := 0.0
	if len(v.frames) > 0 {
		sum := 0.0
		for _, f := range v.frames {
			sum += f.Score
		}
		score = sum / float64(len(v.frames))
	}
	return &ai.Assessment{
		Frames:       v.frames,
		OverallScore: score,
		Confidence:   0.8,
		Summary:      "test assessment",
	}, nil
}

// kneeValgusFrames shows knee caving in 2 of 6 frames: a moderate
// finding once classified.
func kneeValgusFrames() []models.FrameResult {
	return []models.FrameResult{
		{Index: 0, Score: 7.5},
		{Index: 1, Score: 5.5, Issues: []string{"knees caving inward"}},
		{Index: 2, Score: 7.0},
		{Index: 3, Score: 5.0, Issues: []string{"knee valgus on ascent"}},
		{Index: 4, Score: 7.5},
		{Index: 5, Score: 8.0},
	}
}

type testEnv struct {
	db     *database.DB
	repo   *database.AnalysisRepository
	store  *fakeStorage
	ledger *fakeLedger
	vision *fakeVision
	svc    *Service
}

func setupEnv(t *testing.T, lgr *fakeLedger, vision *fakeVision) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	repo := database.NewAnalysisRepository(db)
	store := newFakeStorage()
	planner := plan.NewGenerator(knowledge.NewBase(), nil, nil, time.Hour, logger.NewNop())

	svc := NewService(repo, store, &fakeExtractor{}, vision, classifier.New(), planner, lgr, Config{
		FrameCount:       6,
		FrameSize:        512,
		ExtractTimeout:   time.Minute,
		InferenceTimeout: time.Minute,
		MaxInFlight:      2,
		VideoFPCost:      25,
	}, logger.NewNop())

	return &testEnv{db: db, repo: repo, store: store, ledger: lgr, vision: vision, svc: svc}
}

func submitRequest(userID string) SubmitRequest {
	return SubmitRequest{
		UserID:      userID,
		UserName:    "Test User",
		ArenaSlug:   "iron-temple",
		Pattern:     models.PatternSquat,
		Description: "top set",
		Profile: &models.UserProfile{
			TrainingAge:     models.TrainingAgeIntermediate,
			Equipment:       []string{"dumbbell", "resistance_band", "box"},
			WeeklyFrequency: 3,
		},
		Video:    newMemFile([]byte("fake video bytes")),
		FileInfo: storage.FileInfo{Filename: "squat.mp4", ContentType: "video/mp4", Size: 16},
	}
}
