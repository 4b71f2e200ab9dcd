// Package queue runs cloud bridge usage-counter increments off the request
// path on a small pool of workers.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imyashkale/mcpbridge/internal/logger"
)

// UsageJob records one successful tool call against a cloud bridge instance
type UsageJob struct {
	ID         string
	InstanceID string
	UserID     string
	At         time.Time
}

// NewUsageJob creates a job stamped with a fresh id
func NewUsageJob(instanceID, userID string, at time.Time) *UsageJob {
	return &UsageJob{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		UserID:     userID,
		At:         at,
	}
}

// JobQueue is a bounded channel of usage jobs
type JobQueue struct {
	jobs   chan *UsageJob
	mu     sync.RWMutex
	closed bool
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(bufferSize int) *JobQueue {
	return &JobQueue{
		jobs: make(chan *UsageJob, bufferSize),
	}
}

// Enqueue adds a job without blocking. A full buffer drops the job with ErrQueueFull.
func (jq *JobQueue) Enqueue(job *UsageJob) error {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	if jq.closed {
		logger.WithFields(map[string]interface{}{
			"job_id":      job.ID,
			"instance_id": job.InstanceID,
		}).Warn("Failed to enqueue usage job: queue is closed")
		return ErrQueueClosed
	}

	select {
	case jq.jobs <- job:
		logger.WithFields(map[string]interface{}{
			"job_id":      job.ID,
			"instance_id": job.InstanceID,
			"user_id":     job.UserID,
		}).Debug("Usage job enqueued")
		return nil
	default:
		logger.WithFields(map[string]interface{}{
			"job_id":      job.ID,
			"instance_id": job.InstanceID,
		}).Warn("Failed to enqueue usage job: queue is full")
		return ErrQueueFull
	}
}

// Len returns the number of buffered jobs
func (jq *JobQueue) Len() int {
	return len(jq.jobs)
}

// Close stops accepting jobs. Buffered jobs are still handed to workers.
func (jq *JobQueue) Close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.closed {
		return
	}
	jq.closed = true
	close(jq.jobs)
}

// WorkerPool drains a JobQueue with a fixed number of workers
type WorkerPool struct {
	queue   *JobQueue
	workers int
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *JobQueue, numWorkers int) *WorkerPool {
	return &WorkerPool{
		queue:   queue,
		workers: numWorkers,
	}
}

// Start starts all workers
func (wp *WorkerPool) Start(handler func(*UsageJob) error) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i, handler)
	}
}

func (wp *WorkerPool) worker(id int, handler func(*UsageJob) error) {
	defer wp.wg.Done()

	for job := range wp.queue.jobs {
		if job == nil {
			continue
		}
		if err := handler(job); err != nil {
			logger.WithFields(map[string]interface{}{
				"worker":      id,
				"job_id":      job.ID,
				"instance_id": job.InstanceID,
				"error":       err.Error(),
			}).Error("Worker failed to process usage job")
			continue
		}
		logger.WithFields(map[string]interface{}{
			"worker":      id,
			"job_id":      job.ID,
			"instance_id": job.InstanceID,
		}).Debug("Worker processed usage job")
	}
	logger.WithField("worker", id).Debug("Worker exiting: jobs channel closed")
}

// Wait blocks until every worker has exited. Call it after closing the queue.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}
