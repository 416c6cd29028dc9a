package debounce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelgate/credential-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okResult() *models.OperationResult {
	return &models.OperationResult{Result: models.ResultSuccess}
}

func TestTriggerBurstCollapsesToOneRun(t *testing.T) {
	d := NewWithQuietPeriod(30 * time.Millisecond)

	var calls atomic.Int32
	var lastKey atomic.Value

	run := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		calls.Add(1)
		lastKey.Store(values["api_key"].(string))
		return okResult(), nil
	}
	before := func(values map[string]any) bool {
		return values["api_key"] != ""
	}

	for _, key := range []string{"sk-1", "sk-12", "sk-123"} {
		d.Trigger(context.Background(), map[string]any{"api_key": key}, before, run)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return !d.Validating()
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), calls.Load(), "only the last call in the burst should survive")
	assert.Equal(t, "sk-123", lastKey.Load(), "the surviving run should see the latest values")
	assert.Equal(t, models.ValidatedStatusSuccess, d.Status().Status)
}

func TestRetriggerDuringInFlightRunStillCollapses(t *testing.T) {
	d := NewWithQuietPeriod(40 * time.Millisecond)

	var mu sync.Mutex
	var keys []string
	record := func(values map[string]any) {
		mu.Lock()
		keys = append(keys, values["api_key"].(string))
		mu.Unlock()
	}

	started := make(chan struct{})
	release := make(chan struct{})
	slowRun := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		close(started)
		<-release
		record(values)
		return okResult(), nil
	}
	fastRun := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		record(values)
		return okResult(), nil
	}

	d.Trigger(context.Background(), map[string]any{"api_key": "sk-a"}, nil, slowRun)
	<-started

	// A new edit lands while the first run is still resolving, then the old
	// run resolves with the new quiet period still open.
	d.Trigger(context.Background(), map[string]any{"api_key": "sk-b"}, nil, fastRun)
	close(release)
	time.Sleep(10 * time.Millisecond)

	// An edit inside the open window must replace the pending one, not
	// coexist with it.
	d.Trigger(context.Background(), map[string]any{"api_key": "sk-c"}, nil, fastRun)

	require.Eventually(t, func() bool {
		return !d.Validating()
	}, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"sk-a", "sk-c"}, keys,
		"one burst dispatches one run even when an older run resolves mid-window")
}

func TestBeforeGateClearsStateWithoutRunning(t *testing.T) {
	d := NewWithQuietPeriod(10 * time.Millisecond)

	var calls atomic.Int32
	run := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		calls.Add(1)
		return okResult(), nil
	}
	before := func(values map[string]any) bool {
		return values["api_key"] != ""
	}

	d.Trigger(context.Background(), map[string]any{"api_key": ""}, before, run)

	time.Sleep(50 * time.Millisecond)
	assert.False(t, d.Validating())
	assert.True(t, d.Status().Empty())
	assert.Equal(t, int32(0), calls.Load(), "run must never execute when before fails")
}

func TestBeforeGateCancelsPendingRun(t *testing.T) {
	d := NewWithQuietPeriod(30 * time.Millisecond)

	var calls atomic.Int32
	run := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		calls.Add(1)
		return okResult(), nil
	}
	before := func(values map[string]any) bool {
		return values["api_key"] != ""
	}

	// Field filled then cleared before the quiet period elapses.
	d.Trigger(context.Background(), map[string]any{"api_key": "sk-1"}, before, run)
	d.Trigger(context.Background(), map[string]any{"api_key": ""}, before, run)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, d.Validating())
}

func TestNilRunLeavesValidating(t *testing.T) {
	d := NewWithQuietPeriod(10 * time.Millisecond)

	before := func(values map[string]any) bool { return true }
	d.Trigger(context.Background(), map[string]any{"api_key": "sk-1"}, before, nil)

	time.Sleep(50 * time.Millisecond)
	assert.True(t, d.Validating(), "waiting on a sibling control keeps validating set")
	assert.True(t, d.Status().Empty())
}

func TestErrorResultTranslation(t *testing.T) {
	d := NewWithQuietPeriod(10 * time.Millisecond)

	run := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		return &models.OperationResult{Result: "error", Error: "invalid api key"}, nil
	}

	d.Trigger(context.Background(), map[string]any{"api_key": "sk-bad"}, nil, run)

	require.Eventually(t, func() bool {
		return !d.Validating()
	}, time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, models.ValidatedStatusError, status.Status)
	assert.Equal(t, "invalid api key", status.Message)
}

func TestValidatingSetDuringRun(t *testing.T) {
	d := NewWithQuietPeriod(10 * time.Millisecond)

	release := make(chan struct{})
	run := func(ctx context.Context, values map[string]any) (*models.OperationResult, error) {
		<-release
		return okResult(), nil
	}

	d.Trigger(context.Background(), map[string]any{"api_key": "sk-1"}, nil, run)
	assert.True(t, d.Validating())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, d.Validating(), "validating stays set while run is in flight")

	close(release)
	require.Eventually(t, func() bool {
		return !d.Validating()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.ValidatedStatusSuccess, d.Status().Status)
}
