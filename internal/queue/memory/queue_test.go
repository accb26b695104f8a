package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan scrape.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	job := scrape.QueueItem{JobID: "job-1", Type: scrape.SourceQuotes}
	require.NoError(t, q.Enqueue(context.Background(), job))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "job-1", got.JobID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueuePriorityBias(t *testing.T) {
	t.Parallel()

	q := New(8)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, scrape.QueueItem{JobID: "low", Params: scrape.JobParameters{Priority: 0}}))
	require.NoError(t, q.Enqueue(ctx, scrape.QueueItem{JobID: "normal", Params: scrape.JobParameters{Priority: 5}}))
	require.NoError(t, q.Enqueue(ctx, scrape.QueueItem{JobID: "high", Params: scrape.JobParameters{Priority: 9}}))

	// With backlog in every band, higher bands drain first.
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "high", first.JobID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "normal", second.JobID)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "low", third.JobID)
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, scrape.QueueItem{JobID: "first"}))

	blocked, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(blocked, scrape.QueueItem{JobID: "second"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseUnblocksDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	select {
	case err := <-errCh:
		require.ErrorContains(t, err, "queue closed")
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after close")
	}
}
