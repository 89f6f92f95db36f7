package pool

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestAcquireRelease(t *testing.T) {
	p := New("api_calls", 2, time.Second, setupTestLogger())

	lease, err := p.Acquire(context.Background(), "task-1")
	require.NoError(t, err)

	m := p.Metrics()
	assert.Equal(t, 1, m.Active)
	assert.Equal(t, 1, m.Available)
	assert.Equal(t, 1, m.MaxObserved)

	lease.Release()
	m = p.Metrics()
	assert.Equal(t, 0, m.Active)
	assert.Equal(t, 2, m.Available)
	// Historical max survives release
	assert.Equal(t, 1, m.MaxObserved)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := New("api_calls", 1, time.Second, setupTestLogger())

	lease, err := p.Acquire(context.Background(), "task-1")
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	lease.Release()

	assert.Equal(t, 0, p.Metrics().Active)
	assert.Equal(t, 1, p.Metrics().Available)
}

// TestFourthAcquireTimesOut exercises the spec's canonical example: a pool of
// three, four concurrent acquirers with a one second timeout. Three succeed
// immediately, the fourth times out after roughly a second.
func TestFourthAcquireTimesOut(t *testing.T) {
	p := New("processing_slots", 3, time.Second, setupTestLogger())
	ctx := context.Background()

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx, "holder")
		require.NoError(t, err)
		leases = append(leases, lease)
	}

	start := time.Now()
	_, err := p.Acquire(ctx, "task-4")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Contains(t, err.Error(), "processing_slots")
	assert.Contains(t, err.Error(), "task-4")
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)

	// Timeout never granted the slot
	m := p.Metrics()
	assert.Equal(t, 3, m.Active)
	assert.Equal(t, uint64(1), m.Timeouts)

	for _, l := range leases {
		l.Release()
	}
	assert.Equal(t, 0, p.Metrics().Active)
}

func TestActiveNeverExceedsMaxSize(t *testing.T) {
	const maxSize = 4
	p := New("db_connections", maxSize, 50*time.Millisecond, setupTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(context.Background(), "worker")
			if err != nil {
				return
			}
			assert.LessOrEqual(t, p.Metrics().Active, maxSize)
			time.Sleep(5 * time.Millisecond)
			lease.Release()
		}()
	}
	wg.Wait()

	m := p.Metrics()
	assert.Equal(t, 0, m.Active)
	assert.LessOrEqual(t, m.MaxObserved, maxSize)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	p := New("llm_connections", 1, 10*time.Second, setupTestLogger())

	lease, err := p.Acquire(context.Background(), "holder")
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx, "waiter")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealthCheckDegradedOnUtilization(t *testing.T) {
	p := New("api_calls", 2, time.Second, setupTestLogger())

	assert.Equal(t, StatusHealthy, p.HealthCheck().Status)

	l1, err := p.Acquire(context.Background(), "a")
	require.NoError(t, err)
	l2, err := p.Acquire(context.Background(), "b")
	require.NoError(t, err)

	health := p.HealthCheck()
	assert.Equal(t, StatusDegraded, health.Status)
	assert.InDelta(t, 1.0, health.Utilization, 0.001)

	l1.Release()
	l2.Release()
}

func TestHealthCheckDegradedOnTimeoutRate(t *testing.T) {
	p := New("api_calls", 1, 10*time.Millisecond, setupTestLogger())

	lease, err := p.Acquire(context.Background(), "holder")
	require.NoError(t, err)

	// One timeout out of two attempts is a 50% timeout rate.
	_, err = p.Acquire(context.Background(), "waiter")
	require.ErrorIs(t, err, ErrAcquireTimeout)

	lease.Release()
	health := p.HealthCheck()
	assert.Equal(t, StatusDegraded, health.Status)
	assert.GreaterOrEqual(t, health.TimeoutRate, 0.05)
}

func TestCleanupResetsTracking(t *testing.T) {
	p := New("api_calls", 2, 10*time.Millisecond, setupTestLogger())

	lease, err := p.Acquire(context.Background(), "holder")
	require.NoError(t, err)

	p.Cleanup()

	m := p.Metrics()
	assert.Equal(t, 0, m.Active)
	assert.Equal(t, 2, m.Available)
	assert.Equal(t, uint64(0), m.Acquires)
	assert.Equal(t, uint64(0), m.Timeouts)

	// A lease released after cleanup is a no-op, not a corruption
	lease.Release()
	assert.Equal(t, 0, p.Metrics().Active)
}
