package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 3)

	queue := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 4})

	queue.Start(context.Background())
	defer queue.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, queue.Enqueue(Job{ID: id, Kind: "noop"}))
	}
	for i := 0; i < 3; i++ {
		waitFor(t, done, "job was not processed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	succeeded := make(chan Job, 1)

	queue := NewQueue("test", func(_ context.Context, job Job) error {
		if job.Attempt == 0 {
			return errors.New("transient")
		}
		succeeded <- job
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "flaky"}))

	select {
	case job := <-succeeded:
		assert.Equal(t, "flaky", job.ID)
		assert.Equal(t, 1, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job never retried to success")
	}
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handled := make(chan struct{}, 8)

	queue := NewQueue("test", func(_ context.Context, _ Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		handled <- struct{}{}
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "doomed"}))

	// initial attempt plus two retries
	for i := 0; i < 3; i++ {
		waitFor(t, handled, "expected handler invocation")
	}
	// give a would-be fourth attempt time to show up
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestQueueEnqueueRequiresStart(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := queue.Enqueue(Job{ID: "early"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestQueueEnqueueAfterStopFails(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1})
	queue.Start(context.Background())
	queue.Stop()

	err := queue.Enqueue(Job{ID: "late"})
	require.Error(t, err)
}

func TestQueueDepthCountsBufferedJobs(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 4)

	queue := NewQueue("test", func(_ context.Context, _ Job) error {
		entered <- struct{}{}
		<-gate
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})

	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(Job{ID: "running"}))
	waitFor(t, entered, "worker never picked up the job")
	require.NoError(t, queue.Enqueue(Job{ID: "waiting-1"}))
	require.NoError(t, queue.Enqueue(Job{ID: "waiting-2"}))

	assert.Equal(t, 2, queue.Depth())
	close(gate)
}

func TestQueueStartTwiceIsNoOp(t *testing.T) {
	queue := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1})
	queue.Start(context.Background())
	queue.Start(context.Background())
	queue.Stop()
}
