package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

const jobColumns = "id, type, parameters, status, started_at, completed_at, error_message, result_summary"

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestCreateJobInsertsAndReturnsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	job := scrape.Job{
		ID:         "job-1",
		Type:       scrape.SourceQuotes,
		Parameters: scrape.JobParameters{MaxItems: 10, MaxPages: 2},
		Status:     scrape.JobStatusPending,
		StartedAt:  started,
	}
	params, err := json.Marshal(job.Parameters)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.Type, params, job.Status, job.StartedAt, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT "+jobColumns).
		WithArgs(job.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "parameters", "status",
			"started_at", "completed_at", "error_message", "result_summary",
		}).AddRow(job.ID, job.Type, params, job.Status, started, nil, "", nil))

	got, created, err := store.CreateJob(context.Background(), job)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, scrape.JobStatusPending, got.Status)
	require.Equal(t, 10, got.Parameters.MaxItems)
	require.Nil(t, got.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobExistingIDReportsNotCreated(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 123456789, time.UTC)
	job := scrape.Job{
		ID:        "job-1",
		Type:      scrape.SourceQuotes,
		Status:    scrape.JobStatusPending,
		StartedAt: started,
	}
	params, err := json.Marshal(job.Parameters)
	require.NoError(t, err)

	// ON CONFLICT DO NOTHING reports zero rows; the stored row carries the
	// microsecond-truncated timestamp of the earlier insert.
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.Type, params, job.Status, job.StartedAt, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT "+jobColumns).
		WithArgs(job.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "parameters", "status",
			"started_at", "completed_at", "error_message", "result_summary",
		}).AddRow(job.ID, job.Type, params, job.Status, started.Truncate(time.Microsecond), nil, "", nil))

	got, created, err := store.CreateJob(context.Background(), job)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, job.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobUnmarshalsSummary(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)
	summary, err := json.Marshal(scrape.ResultSummary{Count: 3, ByType: map[string]int{"quote": 3}})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT "+jobColumns).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "parameters", "status",
			"started_at", "completed_at", "error_message", "result_summary",
		}).AddRow("job-1", scrape.SourceQuotes, []byte(`{}`), scrape.JobStatusCompleted, started, &done, "", summary))

	got, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Summary)
	require.Equal(t, 3, got.Summary.Count)
	require.Equal(t, map[string]int{"quote": 3}, got.Summary.ByType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT " + jobColumns).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobBuildsPartialSet(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	failed := scrape.JobStatusFailed
	msg := "navigation exhausted"
	mock.ExpectExec(`UPDATE jobs SET status = \$1, error_message = \$2 WHERE id = \$3`).
		WithArgs(failed, msg, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJob(context.Background(), "job-1", scrape.JobUpdate{
		Status:       &failed,
		ErrorMessage: &msg,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobNoFieldsIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	require.NoError(t, store.UpdateJob(context.Background(), "job-1", scrape.JobUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	active := scrape.JobStatusActive
	mock.ExpectExec(`UPDATE jobs SET status = \$1 WHERE id = \$2`).
		WithArgs(active, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJob(context.Background(), "missing", scrape.JobUpdate{Status: &active})
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsFiltersByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := scrape.JobStatusCompleted
	mock.ExpectQuery("SELECT "+jobColumns).
		WithArgs(&completed, 25, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "parameters", "status",
			"started_at", "completed_at", "error_message", "result_summary",
		}).
			AddRow("job-2", scrape.SourceReddit, []byte(`{}`), completed, started.Add(time.Hour), nil, "", nil).
			AddRow("job-1", scrape.SourceQuotes, []byte(`{}`), completed, started, nil, "", nil))

	jobs, err := store.ListJobs(context.Background(), &completed, 25, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-2", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountJobsByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM jobs`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow(scrape.JobStatusCompleted, int64(5)).
			AddRow(scrape.JobStatusFailed, int64(1)))

	counts, err := store.CountJobsByStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), counts[scrape.JobStatusCompleted])
	require.Equal(t, int64(1), counts[scrape.JobStatusFailed])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecordReturnsRowID(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	scraped := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := scrape.Record{
		Source:     scrape.SourceQuotes,
		SourceURL:  "http://quotes.local",
		Title:      "Einstein",
		Body:       "Imagination matters",
		RawPayload: `{"text":"Imagination matters"}`,
		ScrapedAt:  scraped,
		Metadata:   map[string]string{scrape.MetadataUnitType: "quote"},
	}
	metadata, err := json.Marshal(rec.Metadata)
	require.NoError(t, err)

	mock.ExpectQuery("INSERT INTO records").
		WithArgs(rec.Source, rec.SourceURL, rec.Title, rec.Body, rec.RawPayload, rec.ScrapedAt, metadata).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.SaveRecord(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsAppliesFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	scraped := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	source := scrape.SourceQuotes
	pattern := "%imagination%"
	metadata := []byte(`{"unit_type":"quote"}`)

	mock.ExpectQuery("SELECT id, source, source_url").
		WithArgs(&source, (*time.Time)(nil), &pattern, 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "source_url", "title",
			"body_content", "raw_payload", "scraped_at", "metadata",
		}).AddRow(int64(1), source, "http://quotes.local", "Einstein",
			"Imagination matters", `{}`, scraped, metadata))

	records, err := store.ListRecords(context.Background(), scrape.RecordQuery{
		Source: source,
		Search: "imagination",
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Einstein", records[0].Title)
	require.Equal(t, "quote", records[0].Metadata[scrape.MetadataUnitType])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
