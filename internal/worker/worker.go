// Package worker implements the scrape job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/metrics"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Router resolves a job type to the strategy that handles it.
type Router interface {
	Lookup(jobType string) (scrape.Strategy, error)
}

// Exporter writes a post-run artifact for a finished job. Export failures
// never fail the job.
type Exporter interface {
	Export(ctx context.Context, jobID string, records []scrape.Record) (string, error)
}

// Worker consumes queue items and runs each job end to end: session open,
// extraction, persistence, summary, status transition.
type Worker struct {
	queue    scrape.Queue
	store    scrape.ContentStore
	sessions scrape.SessionFactory
	router   Router
	sink     scrape.ProgressSink
	clock    scrape.Clock
	exporter Exporter
	logger   *zap.Logger
}

// New constructs a Worker. exporter may be nil.
func New(
	queue scrape.Queue,
	store scrape.ContentStore,
	sessions scrape.SessionFactory,
	router Router,
	sink scrape.ProgressSink,
	clock scrape.Clock,
	exporter Exporter,
	logger *zap.Logger,
) *Worker {
	if sink == nil {
		sink = progressNop{}
	}
	return &Worker{
		queue:    queue,
		store:    store,
		sessions: sessions,
		router:   router,
		sink:     sink,
		clock:    clock,
		exporter: exporter,
		logger:   logger,
	}
}

type progressNop struct{}

func (progressNop) Report(string, int)                                     {}
func (progressNop) Terminal(string, scrape.JobStatus, *scrape.ResultSummary) {}

// dequeueErrBackoff paces retries after a non-context dequeue failure, so a
// closed or broken queue does not spin the loop.
const dequeueErrBackoff = time.Second

// Run consumes jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dequeueErrBackoff):
			}
			continue
		}
		ok := w.processJob(ctx, item)
		if item.Done != nil {
			item.Done(ok)
		}
	}
}

// processJob runs one job to a terminal state and reports whether it
// completed. The result settles the queue delivery: brokers redeliver
// anything that did not complete.
func (w *Worker) processJob(ctx context.Context, item scrape.QueueItem) (completed bool) {
	log := w.logger.With(zap.String("job_id", item.JobID), zap.String("job_type", item.Type))

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r))
			w.failJob(ctx, item.JobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	strat, err := w.router.Lookup(item.Type)
	if err != nil {
		log.Warn("unknown job type", zap.Error(err))
		w.failJob(ctx, item.JobID, err.Error())
		return
	}

	if err := w.setStatus(ctx, item.JobID, scrape.JobStatusActive); err != nil {
		log.Error("cannot mark job active", zap.Error(err))
		return
	}
	w.sink.Report(item.JobID, 10)

	sess, err := w.sessions.NewSession(ctx)
	if err != nil {
		log.Error("session open failed", zap.Error(err))
		w.failJob(ctx, item.JobID, fmt.Sprintf("browser session: %v", err))
		return
	}
	defer sess.Close()

	w.sink.Report(item.JobID, 30)
	extraction, err := strat.Extract(ctx, sess, item.Params, func(percent int) {
		w.sink.Report(item.JobID, percent)
	})
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		w.failJob(ctx, item.JobID, err.Error())
		return
	}

	stored, byType, top := w.persist(ctx, log, extraction)
	if len(extraction.Records) > 0 && stored == 0 {
		w.failJob(ctx, item.JobID, "all record writes failed")
		return
	}
	w.sink.Report(item.JobID, 95)

	if extraction.Top != "" {
		top = extraction.Top
	}
	summary := &scrape.ResultSummary{Count: stored, ByType: byType, Top: top}
	if err := w.complete(ctx, item.JobID, summary); err != nil {
		log.Error("cannot mark job completed", zap.Error(err))
		return
	}
	completed = true
	w.sink.Report(item.JobID, 100)
	w.sink.Terminal(item.JobID, scrape.JobStatusCompleted, summary)
	log.Info("job completed", zap.Int("records", stored))

	if w.exporter != nil && stored > 0 {
		if path, err := w.exporter.Export(ctx, item.JobID, extraction.Records); err != nil {
			log.Warn("export failed", zap.Error(err))
		} else {
			log.Info("exported job artifact", zap.String("path", path))
		}
	}
	return completed
}

// persist writes records one at a time. A failed write skips the record and
// keeps the job going; the summary only counts rows that actually landed.
func (w *Worker) persist(ctx context.Context, log *zap.Logger, ex scrape.Extraction) (int, map[string]int, string) {
	stored := 0
	byType := map[string]int{}
	top := ""
	for _, rec := range ex.Records {
		if _, err := w.store.SaveRecord(ctx, rec); err != nil {
			metrics.ObserveRecordSaveFailure(rec.Source)
			log.Warn("record save failed",
				zap.String("source", rec.Source),
				zap.String("title", rec.Title),
				zap.Error(err))
			continue
		}
		metrics.ObserveRecordSaved(rec.Source)
		stored++
		if ut := rec.Metadata[scrape.MetadataUnitType]; ut != "" {
			byType[ut]++
		}
		if top == "" {
			top = rec.Title
		}
	}
	if stored == 0 {
		return 0, nil, ""
	}
	return stored, byType, top
}

func (w *Worker) setStatus(ctx context.Context, jobID string, status scrape.JobStatus) error {
	return w.store.UpdateJob(ctx, jobID, scrape.JobUpdate{Status: &status})
}

func (w *Worker) complete(ctx context.Context, jobID string, summary *scrape.ResultSummary) error {
	status := scrape.JobStatusCompleted
	now := w.clock.Now()
	return w.store.UpdateJob(ctx, jobID, scrape.JobUpdate{
		Status:      &status,
		CompletedAt: &now,
		Summary:     summary,
	})
}

func (w *Worker) failJob(ctx context.Context, jobID, msg string) {
	status := scrape.JobStatusFailed
	now := w.clock.Now()
	err := w.store.UpdateJob(ctx, jobID, scrape.JobUpdate{
		Status:       &status,
		CompletedAt:  &now,
		ErrorMessage: &msg,
	})
	if err != nil {
		w.logger.Error("cannot mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	w.sink.Terminal(jobID, scrape.JobStatusFailed, nil)
}
