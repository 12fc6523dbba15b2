package engine

import (
	"context"
	"sync"

	"vigil/pkg/logger"
)

// EngineQueue bounds how many scans execute at once with a simple semaphore.
type EngineQueue struct {
	semaphore chan struct{}
	running   int
	queued    int
	mu        sync.Mutex
	logger    *logger.Logger
}

func NewEngineQueue(maxConcurrent int, log *logger.Logger) *EngineQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if log == nil {
		log = logger.Default()
	}
	q := &EngineQueue{
		semaphore: make(chan struct{}, maxConcurrent),
		logger:    log,
	}
	q.logger.WithFields(logger.Fields{"max_concurrent": maxConcurrent}).Info("Scan queue initialized")
	return q
}

// ExecuteWithQueue blocks until a slot is available, then runs fn. It gives
// up with ctx's error if ctx ends while waiting.
func (q *EngineQueue) ExecuteWithQueue(ctx context.Context, fn func() error) error {
	q.mu.Lock()
	q.queued++
	currentQueued := q.queued
	currentRunning := q.running
	q.mu.Unlock()

	q.logger.WithFields(logger.Fields{
		"queued":  currentQueued,
		"running": currentRunning,
		"slots":   cap(q.semaphore),
	}).Debug("Scan added to queue")

	select {
	case q.semaphore <- struct{}{}:
	case <-ctx.Done():
		q.mu.Lock()
		q.queued--
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.queued--
	q.running++
	q.mu.Unlock()

	defer func() {
		<-q.semaphore
		q.mu.Lock()
		q.running--
		remainingRunning := q.running
		remainingQueued := q.queued
		q.mu.Unlock()

		q.logger.WithFields(logger.Fields{
			"running": remainingRunning,
			"queued":  remainingQueued,
		}).Debug("Scan slot released")
	}()

	return fn()
}

// GetStatus returns current queue status
func (q *EngineQueue) GetStatus() (running, queued, maxConcurrent int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running, q.queued, cap(q.semaphore)
}
