// Package progress provides sinks for the orchestrator's milestone updates.
// The orchestrator calls sinks synchronously at coarse milestones, so
// implementations must return quickly.
package progress

import (
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/metrics"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Nop discards all updates.
type Nop struct{}

// Report implements scrape.ProgressSink.
func (Nop) Report(string, int) {}

// Terminal implements scrape.ProgressSink.
func (Nop) Terminal(string, scrape.JobStatus, *scrape.ResultSummary) {}

// Log emits structured logs for each milestone.
type Log struct {
	logger *zap.Logger
}

// NewLog wires a zap logger to the sink interface.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Report logs a progress percentage.
func (s *Log) Report(jobID string, percent int) {
	s.logger.Debug("job progress", zap.String("job_id", jobID), zap.Int("percent", percent))
}

// Terminal logs the final status and summary.
func (s *Log) Terminal(jobID string, status scrape.JobStatus, summary *scrape.ResultSummary) {
	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
	}
	if summary != nil {
		fields = append(fields, zap.Int("records", summary.Count))
	}
	s.logger.Info("job finished", fields...)
}

// Prometheus publishes milestone counters and gauges.
type Prometheus struct{}

// NewPrometheus returns a sink backed by the package-level collectors.
func NewPrometheus() *Prometheus {
	return &Prometheus{}
}

// Report updates the per-job progress gauge.
func (s *Prometheus) Report(jobID string, percent int) {
	metrics.ObserveProgress(jobID, percent)
}

// Terminal counts the finished job and clears its gauge.
func (s *Prometheus) Terminal(jobID string, status scrape.JobStatus, _ *scrape.ResultSummary) {
	metrics.ObserveJobDone(jobID, string(status))
}

// Multi fans a milestone out to several sinks in order.
type Multi struct {
	sinks []scrape.ProgressSink
}

// NewMulti composes sinks; nil entries are skipped.
func NewMulti(sinks ...scrape.ProgressSink) *Multi {
	out := make([]scrape.ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

// Report implements scrape.ProgressSink.
func (m *Multi) Report(jobID string, percent int) {
	for _, s := range m.sinks {
		s.Report(jobID, percent)
	}
}

// Terminal implements scrape.ProgressSink.
func (m *Multi) Terminal(jobID string, status scrape.JobStatus, summary *scrape.ResultSummary) {
	for _, s := range m.sinks {
		s.Terminal(jobID, status, summary)
	}
}
