package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
)

func newReconciler(env *testEnv, maxRetries int) *Reconciler {
	return NewReconciler(env.repo, env.svc, ReconcilerConfig{
		StuckThreshold: 5 * time.Minute,
		BatchSize:      5,
		MaxRetries:     maxRetries,
	}, logger.NewNop())
}

func backdate(t *testing.T, env *testEnv, id string, age time.Duration) {
	t.Helper()
	_, err := env.db.Conn().Exec("UPDATE analyses SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Add(-age), id)
	require.NoError(t, err)
}

func TestSweep_RequeuesStalePending(t *testing.T) {
	env := setupEnv(t, &fakeLedger{balance: 100}, &fakeVision{frames: kneeValgusFrames()})
	rc := newReconciler(env, 3)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, submitRequest("user-1"))
	require.NoError(t, err)

	// Six minutes without pickup against a five minute threshold.
	backdate(t, env, rec.ID, 6*time.Minute)

	result, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Requeued)
	assert.Zero(t, result.Retired)

	// The sweep re-ran the pipeline, so the record went stale PENDING_AI
	// -> PENDING_AI (retry 1) -> PROCESSING -> ANALYZED.
	got, err := env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestSweep_RecoversErrorRecords(t *testing.T) {
	vision := &fakeVision{err: fmt.Errorf("transient backend failure")}
	env := setupEnv(t, &fakeLedger{balance: 100}, vision)
	rc := newReconciler(env, 3)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, submitRequest("user-1"))
	require.NoError(t, err)
	require.NoError(t, env.svc.Process(ctx, rec.ID))

	got, _ := env.repo.GetByID(ctx, rec.ID)
	require.Equal(t, models.StatusError, got.Status)

	// Backend recovered before the sweep.
	vision.err = nil

	result, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)

	got, err = env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.AIAnalysis.Error, "stale failure reason must not survive a successful retry")
}

func TestSweep_Idempotent(t *testing.T) {
	env := setupEnv(t, &fakeLedger{balance: 200}, &fakeVision{frames: kneeValgusFrames()})
	rc := newReconciler(env, 3)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, submitRequest("user-1"))
	require.NoError(t, err)
	backdate(t, env, rec.ID, 6*time.Minute)

	first, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Requeued)

	// Nothing is stuck anymore; sweeping again finds a clean table.
	second, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Scanned)
	assert.Zero(t, second.Requeued)
	assert.Zero(t, second.Retired)
}

func TestSweep_NeverTouchesProcessing(t *testing.T) {
	env := setupEnv(t, &fakeLedger{balance: 100}, &fakeVision{frames: kneeValgusFrames()})
	rc := newReconciler(env, 3)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, submitRequest("user-1"))
	require.NoError(t, err)

	claimed, err := env.repo.ClaimForProcessing(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	backdate(t, env, rec.ID, time.Hour)

	result, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Scanned, "in-flight work is not the sweep's business")

	got, _ := env.repo.GetByID(ctx, rec.ID)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Zero(t, got.RetryCount)
}

func TestSweep_RetiresAfterRetryBudget(t *testing.T) {
	vision := &fakeVision{err: fmt.Errorf("permanently broken")}
	env := setupEnv(t, &fakeLedger{balance: 100}, vision)
	rc := newReconciler(env, 2)
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, submitRequest("user-1"))
	require.NoError(t, err)
	require.NoError(t, env.svc.Process(ctx, rec.ID))

	// Each sweep retries once and fails again; the third finds the
	// budget exhausted.
	for i := 0; i < 2; i++ {
		result, err := rc.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, result.Requeued)
	}

	result, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retired)
	assert.Zero(t, result.Requeued)

	got, err := env.repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPermanentlyFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	// Terminal records stay terminal on later sweeps.
	final, err := rc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, final.Scanned)
}
