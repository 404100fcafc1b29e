package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make([]string, 0)
	done := make(chan struct{}, 3)
	queue := NewQueue("archive", func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})

	require.Error(t, queue.Enqueue(Job{ID: "early"}))

	queue.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Enqueue(Job{ID: id}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	queue.Stop()

	assert.ElementsMatch(t, []string{"a", "b", "c"}, seen)
	assert.Error(t, queue.Enqueue(Job{ID: "late"}))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	queue := NewQueue("archive", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("disk busy")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()
	require.NoError(t, queue.Enqueue(Job{ID: "retry"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	release := make(chan struct{})
	var processed int32
	queue := NewQueue("archive", func(_ context.Context, job Job) error {
		<-release
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})

	queue.Start(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Enqueue(Job{ID: id}))
	}
	close(release)
	queue.Stop()

	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	queue := NewQueue("archive", func(context.Context, Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	queue.Start(context.Background())
	defer func() {
		close(block)
		queue.Stop()
	}()

	var full error
	for i := 0; i < 5 && full == nil; i++ {
		full = queue.Enqueue(Job{ID: "x"})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
	assert.Equal(t, 1, queue.Len())
}
