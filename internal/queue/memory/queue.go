// Package memory provides the in-memory job queue used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Priority band thresholds. Priority biases dequeue order; it does not
// guarantee strict ordering under concurrent submission.
const (
	highPriorityMin   = 8
	normalPriorityMin = 4
)

// Queue is a bounded in-memory queue with three priority bands and
// context-aware operations.
type Queue struct {
	high    chan scrape.QueueItem
	normal  chan scrape.QueueItem
	low     chan scrape.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue; capacity applies per band.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		high:   make(chan scrape.QueueItem, capacity),
		normal: make(chan scrape.QueueItem, capacity),
		low:    make(chan scrape.QueueItem, capacity),
	}
}

// Enqueue pushes a job into its priority band or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item scrape.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.band(item.Params.Priority) <- item:
		return nil
	}
}

// Dequeue pops the next job, preferring higher bands when they have backlog,
// and respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (scrape.QueueItem, error) {
	// Drain preference: high, then normal, then low.
	select {
	case item, ok := <-q.high:
		return checked(item, ok)
	default:
	}
	select {
	case item, ok := <-q.high:
		return checked(item, ok)
	case item, ok := <-q.normal:
		return checked(item, ok)
	default:
	}

	select {
	case <-ctx.Done():
		return scrape.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.high:
		return checked(item, ok)
	case item, ok := <-q.normal:
		return checked(item, ok)
	case item, ok := <-q.low:
		return checked(item, ok)
	}
}

// Close closes the underlying channels for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.high)
	close(q.normal)
	close(q.low)
	q.closed = true
}

func (q *Queue) band(priority int) chan scrape.QueueItem {
	switch {
	case priority >= highPriorityMin:
		return q.high
	case priority >= normalPriorityMin:
		return q.normal
	default:
		return q.low
	}
}

func checked(item scrape.QueueItem, ok bool) (scrape.QueueItem, error) {
	if !ok {
		return scrape.QueueItem{}, errors.New("queue closed")
	}
	return item, nil
}
