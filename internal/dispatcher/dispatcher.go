// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/worker"
)

// Dispatcher runs a fixed pool of workers over a shared queue. The pool size
// is set at construction and never grows with the backlog.
type Dispatcher struct {
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher over an already-constructed worker pool.
func New(workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{workers: workers, logger: logger}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned, so in-flight jobs drain before shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting worker pool", zap.Int("workers", len(d.workers)))
	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func(id int, wk *worker.Worker) {
			defer wg.Done()
			if err := wk.Run(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("worker exited", zap.Int("worker", id), zap.Error(err))
			}
		}(i, w)
	}
	<-ctx.Done()
	wg.Wait()
	d.logger.Info("worker pool stopped")
}
