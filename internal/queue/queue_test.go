package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolDrainsQueueOnClose(t *testing.T) {
	q := NewJobQueue(16)
	pool := NewWorkerPool(q, 3)

	var mu sync.Mutex
	seen := make(map[string]int)
	pool.Start(func(job *UsageJob) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.InstanceID]++
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(NewUsageJob("inst-1", "u1", time.Now())))
	}
	q.Close()
	pool.Wait()

	assert.Equal(t, 10, seen["inst-1"])
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	q := NewJobQueue(1)
	q.Close()
	q.Close()

	err := q.Enqueue(NewUsageJob("inst-1", "u1", time.Now()))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestEnqueueFullBufferDoesNotBlock(t *testing.T) {
	q := NewJobQueue(1)
	require.NoError(t, q.Enqueue(NewUsageJob("a", "u1", time.Now())))

	err := q.Enqueue(NewUsageJob("b", "u1", time.Now()))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestHandlerErrorsDoNotStopWorkers(t *testing.T) {
	q := NewJobQueue(4)
	pool := NewWorkerPool(q, 1)

	var calls int32
	pool.Start(func(job *UsageJob) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("counter update failed")
	})

	require.NoError(t, q.Enqueue(NewUsageJob("a", "u1", time.Now())))
	require.NoError(t, q.Enqueue(NewUsageJob("b", "u1", time.Now())))
	q.Close()
	pool.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestNewUsageJobAssignsID(t *testing.T) {
	a := NewUsageJob("i", "u", time.Now())
	b := NewUsageJob("i", "u", time.Now())
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
