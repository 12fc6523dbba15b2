package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/pkg/logger"
)

func TestEngineQueue_BoundsConcurrency(t *testing.T) {
	q := NewEngineQueue(1, logger.Discard())

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.ExecuteWithQueue(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ran := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.ExecuteWithQueue(context.Background(), func() error {
			close(ran)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		_, queued, _ := q.GetStatus()
		return queued == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case <-ran:
		t.Fatal("second scan ran while the only slot was taken")
	default:
	}

	running, queued, max := q.GetStatus()
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, max)

	close(release)
	wg.Wait()

	running, queued, _ = q.GetStatus()
	assert.Zero(t, running)
	assert.Zero(t, queued)
}

func TestEngineQueue_ContextCancelledWhileWaiting(t *testing.T) {
	q := NewEngineQueue(1, logger.Discard())
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.ExecuteWithQueue(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.ExecuteWithQueue(ctx, func() error {
		t.Fatal("should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, queued, _ := q.GetStatus()
	assert.Zero(t, queued)
}

func TestEngineQueue_PropagatesError(t *testing.T) {
	q := NewEngineQueue(0, logger.Discard())
	err := q.ExecuteWithQueue(context.Background(), func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	_, _, max := q.GetStatus()
	assert.Equal(t, 1, max)
}
