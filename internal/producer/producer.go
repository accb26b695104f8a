// Package producer accepts job submissions: it validates the job type,
// registers the job as pending, and pushes it onto the queue.
package producer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// TypeChecker reports whether a job type has a registered strategy.
// strategy.Registry satisfies it.
type TypeChecker interface {
	Lookup(jobType string) (scrape.Strategy, error)
}

// Defaults fill unset job parameters at submission time.
type Defaults struct {
	MaxItems int
	MaxPages int
}

// Producer validates and enqueues scrape jobs.
type Producer struct {
	store    scrape.ContentStore
	queue    scrape.Queue
	types    TypeChecker
	clock    scrape.Clock
	ids      scrape.IDGenerator
	defaults Defaults
	logger   *zap.Logger
}

// New constructs a Producer.
func New(
	store scrape.ContentStore,
	queue scrape.Queue,
	types TypeChecker,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	defaults Defaults,
	logger *zap.Logger,
) *Producer {
	return &Producer{
		store:    store,
		queue:    queue,
		types:    types,
		clock:    clock,
		ids:      ids,
		defaults: defaults,
		logger:   logger,
	}
}

// Submit registers a job and enqueues it. Unknown job types are rejected
// here, before anything is persisted or a browser session is considered.
// Submitting an existing job ID returns the stored job without re-enqueueing.
func (p *Producer) Submit(ctx context.Context, jobID, jobType string, params scrape.JobParameters) (scrape.Job, error) {
	if _, err := p.types.Lookup(jobType); err != nil {
		return scrape.Job{}, err
	}

	if jobID == "" {
		id, err := p.ids.NewID()
		if err != nil {
			return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
		}
		jobID = id
	}

	if params.MaxItems <= 0 {
		params.MaxItems = p.defaults.MaxItems
	}
	if params.MaxPages <= 0 {
		params.MaxPages = p.defaults.MaxPages
	}

	job := scrape.Job{
		ID:         jobID,
		Type:       jobType,
		Parameters: params,
		Status:     scrape.JobStatusPending,
		StartedAt:  p.clock.Now(),
	}
	stored, created, err := p.store.CreateJob(ctx, job)
	if err != nil {
		return scrape.Job{}, fmt.Errorf("create job: %w", err)
	}
	if !created {
		// Resubmission of an existing ID. Hand back the stored row as-is.
		p.logger.Info("job already exists, skipping enqueue", zap.String("job_id", jobID))
		return stored, nil
	}

	item := scrape.QueueItem{
		JobID:     stored.ID,
		Type:      stored.Type,
		Params:    stored.Parameters,
		Submitted: stored.StartedAt.Unix(),
	}
	if err := p.queue.Enqueue(ctx, item); err != nil {
		return scrape.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	p.logger.Info("job enqueued",
		zap.String("job_id", stored.ID),
		zap.String("job_type", stored.Type),
		zap.Int("priority", params.Priority))
	return stored, nil
}
