// Package scrape defines core types shared across subsystems.
package scrape

import (
	"time"
)

// JobStatus represents the lifecycle state of an extraction job.
type JobStatus string

// Job status values persisted in the content store. Transitions are strictly
// pending -> active -> {completed, failed}; a job never re-enters pending.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobParameters captures per-job knobs requested by the client.
type JobParameters struct {
	URL      string `json:"url,omitempty"`
	MaxItems int    `json:"max_items"`
	MaxPages int    `json:"max_pages"`
	Priority int    `json:"priority"`
}

// ResultSummary is attached to a completed job. Count reflects records that
// were actually persisted, never the number the strategy produced.
type ResultSummary struct {
	Count  int            `json:"count"`
	ByType map[string]int `json:"by_type,omitempty"`
	Top    string         `json:"top,omitempty"`
}

// Job represents the metadata persisted for each submitted extraction request.
type Job struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Parameters   JobParameters  `json:"parameters"`
	Status       JobStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Summary      *ResultSummary `json:"result_summary,omitempty"`
}

// JobUpdate applies only the fields that are set; nil fields are left
// untouched by the store.
type JobUpdate struct {
	Status       *JobStatus
	CompletedAt  *time.Time
	ErrorMessage *string
	Summary      *ResultSummary
}

// Record is the normalized, source-tagged shape persisted for every
// extracted unit. Records are immutable after creation and carry no
// back-reference to the job that produced them.
type Record struct {
	ID         int64             `json:"id"`
	Source     string            `json:"source"`
	SourceURL  string            `json:"source_url"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body_content"`
	RawPayload string            `json:"raw_payload"`
	ScrapedAt  time.Time         `json:"scraped_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RecordQuery filters record reads. Zero values mean "no filter".
type RecordQuery struct {
	Source string
	Search string
	Since  time.Time
	Limit  int
	Offset int
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string        `json:"job_id"`
	Type      string        `json:"type"`
	Params    JobParameters `json:"params"`
	Attempt   int           `json:"attempt"`
	Submitted int64         `json:"submitted"`

	// Done, when non-nil, is called exactly once after the job reaches a
	// terminal state. Brokers that redeliver use it to ack (completed) or
	// nack (failed or abandoned); in-memory queues leave it nil.
	Done func(ok bool) `json:"-"`
}

// Extraction is what a strategy hands back to the orchestrator: normalized
// records plus a representative top item. The orchestrator owns the
// persisted counts.
type Extraction struct {
	Records []Record
	Top     string
}
