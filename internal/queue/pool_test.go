package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms-alerts/internal/common/logger"
)

func TestPool_ProcessesEveryTaskOnce(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 20
	for i := 1; i <= n; i++ {
		require.NoError(t, q.Enqueue(ctx, Task{MessageID: int64(i)}))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	handler := HandlerFunc(func(ctx context.Context, task Task) error {
		mu.Lock()
		seen[task.MessageID]++
		mu.Unlock()
		return nil
	})

	pool := NewPool(q, handler, PoolConfig{Workers: 4, PollInterval: 5 * time.Millisecond}, logger.NewTestLogger(t))
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for id, count := range seen {
		assert.Equal(t, 1, count, "message %d", id)
	}
	assert.Zero(t, pool.Active())
}

func TestPool_HandlerErrorRequeuesWithDelay(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	require.NoError(t, q.Enqueue(ctx, Task{MessageID: 5}))

	calls := 0
	handler := HandlerFunc(func(ctx context.Context, task Task) error {
		calls++
		return errors.New("database is down")
	})
	pool := NewPool(q, handler, PoolConfig{RetryDelay: 3 * time.Second}, logger.NewNoOpLogger())

	assert.True(t, pool.ProcessOne(ctx, logger.NewNoOpLogger()))
	assert.Equal(t, 1, calls)

	// not ready until the retry delay passes
	assert.False(t, pool.ProcessOne(ctx, logger.NewNoOpLogger()))

	now = now.Add(3 * time.Second)
	assert.True(t, pool.ProcessOne(ctx, logger.NewNoOpLogger()))
	assert.Equal(t, 2, calls)
}

func TestPool_LeaseHeldWhileHandling(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Task{MessageID: 8}))

	var leased bool
	handler := HandlerFunc(func(ctx context.Context, task Task) error {
		var err error
		leased, err = q.InFlight(ctx, task.MessageID)
		return err
	})
	pool := NewPool(q, handler, PoolConfig{}, logger.NewNoOpLogger())

	assert.True(t, pool.ProcessOne(ctx, logger.NewNoOpLogger()))
	assert.True(t, leased)

	inFlight, err := q.InFlight(ctx, 8)
	require.NoError(t, err)
	assert.False(t, inFlight)
}

func TestPool_EmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	pool := NewPool(q, HandlerFunc(func(context.Context, Task) error {
		t.Fatal("handler must not run")
		return nil
	}), PoolConfig{}, logger.NewNoOpLogger())

	assert.False(t, pool.ProcessOne(context.Background(), logger.NewNoOpLogger()))
}
