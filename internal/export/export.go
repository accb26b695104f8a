// Package export renders a finished job's records into a flat text artifact
// and hands it to a blob store.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// BlobStore is the artifact sink. Satisfied by storage/local and storage/gcs.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Exporter writes one text artifact per completed job.
type Exporter struct {
	store  BlobStore
	logger *zap.Logger
}

// New constructs an Exporter.
func New(store BlobStore, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{store: store, logger: logger}
}

// Export renders records as text and uploads them under <source>/<jobID>.txt.
// It returns the URI of the stored artifact.
func (e *Exporter) Export(ctx context.Context, jobID string, records []scrape.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("no records to export")
	}
	key := fmt.Sprintf("%s/%s.txt", records[0].Source, jobID)
	body := Render(records)
	uri, err := e.store.PutObject(ctx, key, "text/plain; charset=utf-8", strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	e.logger.Debug("artifact stored",
		zap.String("job_id", jobID),
		zap.String("uri", uri),
		zap.Int("records", len(records)))
	return uri, nil
}

// Render formats records as blank-line separated blocks. Quote records are
// already self-contained in the body; other sources get a title line first.
func Render(records []scrape.Record) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if rec.Source != scrape.SourceQuotes && rec.Title != "" {
			b.WriteString(rec.Title)
			b.WriteString("\n")
		}
		b.WriteString(rec.Body)
	}
	b.WriteString("\n")
	return b.String()
}
