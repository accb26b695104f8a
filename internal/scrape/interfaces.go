package scrape

import (
	"context"
	"time"
)

// ContentStore persists job lifecycle rows and extracted records.
type ContentStore interface {
	// CreateJob is idempotent: creating an existing job ID returns the
	// stored row without error or duplication. The bool reports whether a
	// new row was written; callers must not infer creation from field
	// comparison, since backends may round timestamps on the way in.
	CreateJob(ctx context.Context, job Job) (Job, bool, error)
	// UpdateJob applies only the fields set on the update.
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	CountJobsByStatus(ctx context.Context) (map[JobStatus]int64, error)

	// SaveRecord appends a normalized record and returns its row ID.
	SaveRecord(ctx context.Context, record Record) (int64, error)
	ListRecords(ctx context.Context, query RecordQuery) ([]Record, error)
}

// Queue provides enqueue/dequeue semantics for extraction jobs. Priority
// biases dequeue order but strict global ordering is not guaranteed.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Session is a live browser (or browser-equivalent) page the strategies
// drive. Exactly one session is opened per job and closed on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close()
}

// SessionFactory opens sessions; implementations own the shared browser
// allocator for the process lifetime.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Strategy encapsulates source-specific navigation and parsing. Extract
// produces a best-effort set of normalized records, tolerating partial
// markup mismatches; report receives coarse progress percentages.
type Strategy interface {
	Source() string
	Extract(ctx context.Context, sess Session, params JobParameters, report func(percent int)) (Extraction, error)
}

// ProgressSink receives milestone updates from the orchestrator. Calls are
// synchronous; implementations must not block for long.
type ProgressSink interface {
	Report(jobID string, percent int)
	Terminal(jobID string, status JobStatus, summary *ResultSummary)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
