package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, q *TaskQueue, id uuid.UUID, want TaskState) TaskResult {
	t.Helper()
	var got TaskResult
	require.Eventually(t, func() bool {
		r, ok := q.Result(id)
		got = r
		return ok && r.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestTaskQueueRecordsResults(t *testing.T) {
	failing := uuid.New()
	q := NewTaskQueue(HandlerFunc(func(_ context.Context, id uuid.UUID) Outcome {
		if id == failing {
			return Outcome{Message: "OCR failed"}
		}
		return Outcome{Success: true, Message: "done"}
	}), nil)
	defer q.Shutdown(context.Background())

	ok := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), ok))
	require.NoError(t, q.Enqueue(context.Background(), failing))

	assert.Equal(t, "done", waitFor(t, q, ok, StateSuccess).Message)
	assert.Equal(t, "OCR failed", waitFor(t, q, failing, StateError).Message)

	_, found := q.Result(uuid.New())
	assert.False(t, found)
}

func TestTaskQueueRejectsDuplicates(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewTaskQueue(HandlerFunc(func(_ context.Context, _ uuid.UUID) Outcome {
		started <- struct{}{}
		<-release
		return Outcome{Success: true}
	}), nil)
	defer q.Shutdown(context.Background())

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id))
	<-started
	assert.ErrorIs(t, q.Enqueue(context.Background(), id), ErrAlreadyQueued)

	close(release)
	waitFor(t, q, id, StateSuccess)
	// finished tasks may be submitted again
	require.NoError(t, q.Enqueue(context.Background(), id))
	waitFor(t, q, id, StateSuccess)
}

func TestTaskQueueRecoversPanics(t *testing.T) {
	q := NewTaskQueue(HandlerFunc(func(_ context.Context, _ uuid.UUID) Outcome {
		panic("boom")
	}), nil)
	defer q.Shutdown(context.Background())

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id))
	res := waitFor(t, q, id, StateError)
	assert.Contains(t, res.Message, "boom")
}

func TestTaskQueueAppliesTimeout(t *testing.T) {
	q := NewTaskQueue(HandlerFunc(func(ctx context.Context, _ uuid.UUID) Outcome {
		<-ctx.Done()
		return Outcome{Message: ctx.Err().Error()}
	}), nil, WithTaskTimeout(20*time.Millisecond))
	defer q.Shutdown(context.Background())

	id := uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), id))
	res := waitFor(t, q, id, StateError)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Message)
}

func TestTaskTimeoutIsCapped(t *testing.T) {
	q := NewTaskQueue(HandlerFunc(func(context.Context, uuid.UUID) Outcome { return Outcome{} }), nil,
		WithTaskTimeout(5*time.Hour))
	defer q.Shutdown(context.Background())
	assert.Equal(t, MaxTaskTimeout, q.timeout)
}

func TestTaskQueueShutdownDrains(t *testing.T) {
	var mu sync.Mutex
	var seen []uuid.UUID
	q := NewTaskQueue(HandlerFunc(func(_ context.Context, id uuid.UUID) Outcome {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		return Outcome{Success: true}
	}), nil, WithWorkers(2), WithQueueSize(8))

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), uuid.New()))
	}
	q.Shutdown(context.Background())

	mu.Lock()
	assert.Len(t, seen, 5)
	mu.Unlock()
	assert.ErrorIs(t, q.Enqueue(context.Background(), uuid.New()), ErrQueueClosed)
}

func TestEnqueueHonoursContextWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewTaskQueue(HandlerFunc(func(context.Context, uuid.UUID) Outcome {
		<-release
		return Outcome{Success: true}
	}), nil, WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	first, second := uuid.New(), uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), first))
	waitFor(t, q, first, StateRunning)
	require.NoError(t, q.Enqueue(context.Background(), second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	third := uuid.New()
	assert.ErrorIs(t, q.Enqueue(ctx, third), context.DeadlineExceeded)
	_, found := q.Result(third)
	assert.False(t, found)
}
