package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

type fakeQueue struct {
	items chan scrape.QueueItem
}

func newFakeQueue(items ...scrape.QueueItem) *fakeQueue {
	q := &fakeQueue{items: make(chan scrape.QueueItem, len(items)+1)}
	for _, it := range items {
		q.items <- it
	}
	return q
}

func (q *fakeQueue) Enqueue(_ context.Context, item scrape.QueueItem) error {
	q.items <- item
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (scrape.QueueItem, error) {
	select {
	case it := <-q.items:
		return it, nil
	case <-ctx.Done():
		return scrape.QueueItem{}, ctx.Err()
	}
}

type fakeStore struct {
	mu         sync.Mutex
	jobs       map[string]scrape.Job
	saved      []scrape.Record
	failTitles map[string]bool
}

func newFakeStore(jobs ...scrape.Job) *fakeStore {
	s := &fakeStore{jobs: map[string]scrape.Job{}, failTitles: map[string]bool{}}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeStore) CreateJob(_ context.Context, job scrape.Job) (scrape.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.ID]; ok {
		return existing, false, nil
	}
	s.jobs[job.ID] = job
	return job, true, nil
}

func (s *fakeStore) UpdateJob(_ context.Context, id string, upd scrape.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.ErrNotFound
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.CompletedAt != nil {
		job.CompletedAt = upd.CompletedAt
	}
	if upd.ErrorMessage != nil {
		job.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Summary != nil {
		job.Summary = upd.Summary
	}
	s.jobs[id] = job
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (scrape.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return job, nil
}

func (s *fakeStore) ListJobs(context.Context, *scrape.JobStatus, int, int) ([]scrape.Job, error) {
	return nil, nil
}

func (s *fakeStore) CountJobsByStatus(context.Context) (map[scrape.JobStatus]int64, error) {
	return nil, nil
}

func (s *fakeStore) SaveRecord(_ context.Context, rec scrape.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTitles[rec.Title] {
		return 0, errors.New("write rejected")
	}
	s.saved = append(s.saved, rec)
	return int64(len(s.saved)), nil
}

func (s *fakeStore) ListRecords(context.Context, scrape.RecordQuery) ([]scrape.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scrape.Record(nil), s.saved...), nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *fakeStore) job(t *testing.T, id string) scrape.Job {
	t.Helper()
	job, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

type fakeSession struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) Navigate(context.Context, string) error { return nil }
func (s *fakeSession) HTML(context.Context) (string, error)   { return "<html></html>", nil }
func (s *fakeSession) Title(context.Context) (string, error)  { return "", nil }

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFactory struct {
	mu    sync.Mutex
	sess  *fakeSession
	opens int
	err   error
}

func (f *fakeFactory) NewSession(context.Context) (scrape.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	f.sess = &fakeSession{}
	return f.sess, nil
}

type fakeStrategy struct {
	source     string
	extraction scrape.Extraction
	err        error
}

func (s *fakeStrategy) Source() string { return s.source }

func (s *fakeStrategy) Extract(_ context.Context, _ scrape.Session, _ scrape.JobParameters, report func(int)) (scrape.Extraction, error) {
	report(50)
	report(75)
	return s.extraction, s.err
}

type fakeRouter struct {
	strategies map[string]scrape.Strategy
}

func (r *fakeRouter) Lookup(jobType string) (scrape.Strategy, error) {
	strat, ok := r.strategies[jobType]
	if !ok {
		return nil, &scrape.UnknownJobTypeError{Type: jobType}
	}
	return strat, nil
}

type recordingSink struct {
	mu        sync.Mutex
	reports   map[string][]int
	terminals map[string]scrape.JobStatus
}

func newRecordingSink() *recordingSink {
	return &recordingSink{reports: map[string][]int{}, terminals: map[string]scrape.JobStatus{}}
}

func (s *recordingSink) Report(jobID string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[jobID] = append(s.reports[jobID], percent)
}

func (s *recordingSink) Terminal(jobID string, status scrape.JobStatus, _ *scrape.ResultSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals[jobID] = status
}

func (s *recordingSink) percents(jobID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.reports[jobID]...)
}

func (s *recordingSink) terminal(jobID string) scrape.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminals[jobID]
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func quoteRecord(title, body string) scrape.Record {
	return scrape.Record{
		Source:    scrape.SourceQuotes,
		SourceURL: "https://quotes.toscrape.com/",
		Title:     title,
		Body:      body,
		ScrapedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  map[string]string{scrape.MetadataUnitType: "quote"},
	}
}

func pendingJob(id, jobType string) scrape.Job {
	return scrape.Job{
		ID:        id,
		Type:      jobType,
		Status:    scrape.JobStatusPending,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testWorker(store *fakeStore, factory *fakeFactory, router Router, sink scrape.ProgressSink) *Worker {
	clock := fixedClock{at: time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)}
	return New(newFakeQueue(), store, factory, router, sink, clock, nil, zap.NewNop())
}

func routerFor(strategies ...*fakeStrategy) *fakeRouter {
	r := &fakeRouter{strategies: map[string]scrape.Strategy{}}
	for _, s := range strategies {
		r.strategies[s.source] = s
	}
	return r
}

func TestWorkerCompletesJob(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-1", scrape.SourceQuotes))
	factory := &fakeFactory{}
	sink := newRecordingSink()
	strat := &fakeStrategy{
		source: scrape.SourceQuotes,
		extraction: scrape.Extraction{
			Records: []scrape.Record{
				quoteRecord("Ada Lovelace", "The engine weaves algebraic patterns."),
				quoteRecord("Grace Hopper", "A ship in port is safe."),
			},
			Top: "The engine weaves algebraic patterns.",
		},
	}
	w := testWorker(store, factory, routerFor(strat), sink)

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-1", Type: scrape.SourceQuotes})

	job := store.job(t, "job-1")
	require.Equal(t, scrape.JobStatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Summary)
	require.Equal(t, 2, job.Summary.Count)
	require.Equal(t, map[string]int{"quote": 2}, job.Summary.ByType)
	require.Equal(t, "The engine weaves algebraic patterns.", job.Summary.Top)
	require.Equal(t, 2, store.savedCount())

	require.True(t, factory.sess.isClosed())
	require.Equal(t, []int{10, 30, 50, 75, 95, 100}, sink.percents("job-1"))
	require.Equal(t, scrape.JobStatusCompleted, sink.terminal("job-1"))
}

func TestWorkerUnknownJobTypeFailsWithoutSession(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-2", "podcasts"))
	factory := &fakeFactory{}
	sink := newRecordingSink()
	w := testWorker(store, factory, routerFor(), sink)

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-2", Type: "podcasts"})

	job := store.job(t, "job-2")
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "podcasts")
	require.Zero(t, factory.opens)
	require.Equal(t, scrape.JobStatusFailed, sink.terminal("job-2"))
}

func TestWorkerPartialPersistenceCountsOnlyStoredRecords(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-3", scrape.SourceQuotes))
	store.failTitles["Grace Hopper"] = true
	factory := &fakeFactory{}
	strat := &fakeStrategy{
		source: scrape.SourceQuotes,
		extraction: scrape.Extraction{
			Records: []scrape.Record{
				quoteRecord("Ada Lovelace", "one"),
				quoteRecord("Grace Hopper", "two"),
				quoteRecord("Alan Turing", "three"),
			},
		},
	}
	w := testWorker(store, factory, routerFor(strat), newRecordingSink())

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-3", Type: scrape.SourceQuotes})

	job := store.job(t, "job-3")
	require.Equal(t, scrape.JobStatusCompleted, job.Status)
	require.Equal(t, 2, job.Summary.Count)
	require.Equal(t, map[string]int{"quote": 2}, job.Summary.ByType)
	require.Equal(t, 2, store.savedCount())
}

func TestWorkerFailsWhenEveryWriteFails(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-4", scrape.SourceQuotes))
	store.failTitles["Ada Lovelace"] = true
	factory := &fakeFactory{}
	strat := &fakeStrategy{
		source:     scrape.SourceQuotes,
		extraction: scrape.Extraction{Records: []scrape.Record{quoteRecord("Ada Lovelace", "one")}},
	}
	w := testWorker(store, factory, routerFor(strat), newRecordingSink())

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-4", Type: scrape.SourceQuotes})

	job := store.job(t, "job-4")
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "all record writes failed")
	require.True(t, factory.sess.isClosed())
}

func TestWorkerExtractionFailureClosesSession(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-5", scrape.SourceReddit))
	factory := &fakeFactory{}
	strat := &fakeStrategy{
		source: scrape.SourceReddit,
		err:    &scrape.BatchExtractionError{Source: scrape.SourceReddit, Err: errors.New("no containers matched")},
	}
	w := testWorker(store, factory, routerFor(strat), newRecordingSink())

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-5", Type: scrape.SourceReddit})

	job := store.job(t, "job-5")
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "no containers matched")
	require.True(t, factory.sess.isClosed())
	require.Zero(t, store.savedCount())
}

func TestWorkerSessionOpenFailureFailsJob(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-6", scrape.SourceQuotes))
	factory := &fakeFactory{err: errors.New("chrome did not start")}
	strat := &fakeStrategy{source: scrape.SourceQuotes}
	w := testWorker(store, factory, routerFor(strat), newRecordingSink())

	w.processJob(context.Background(), scrape.QueueItem{JobID: "job-6", Type: scrape.SourceQuotes})

	job := store.job(t, "job-6")
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "chrome did not start")
}

func TestWorkerRunDrainsQueueUntilCancel(t *testing.T) {
	t.Parallel()

	store := newFakeStore(pendingJob("job-7", scrape.SourceQuotes))
	factory := &fakeFactory{}
	strat := &fakeStrategy{
		source:     scrape.SourceQuotes,
		extraction: scrape.Extraction{Records: []scrape.Record{quoteRecord("Ada Lovelace", "one")}},
	}
	queue := newFakeQueue(scrape.QueueItem{JobID: "job-7", Type: scrape.SourceQuotes})
	w := New(queue, store, factory, routerFor(strat), newRecordingSink(), fixedClock{at: time.Now()}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.job(t, "job-7").Status == scrape.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerRunSettlesDeliveryByOutcome(t *testing.T) {
	t.Parallel()

	store := newFakeStore(
		pendingJob("job-8", scrape.SourceQuotes),
		pendingJob("job-9", "podcasts"),
	)
	factory := &fakeFactory{}
	strat := &fakeStrategy{
		source:     scrape.SourceQuotes,
		extraction: scrape.Extraction{Records: []scrape.Record{quoteRecord("Ada Lovelace", "one")}},
	}

	var mu sync.Mutex
	outcomes := map[string]bool{}
	settle := func(id string) func(bool) {
		return func(ok bool) {
			mu.Lock()
			defer mu.Unlock()
			outcomes[id] = ok
		}
	}
	queue := newFakeQueue(
		scrape.QueueItem{JobID: "job-8", Type: scrape.SourceQuotes, Done: settle("job-8")},
		scrape.QueueItem{JobID: "job-9", Type: "podcasts", Done: settle("job-9")},
	)
	w := New(queue, store, factory, routerFor(strat), newRecordingSink(), fixedClock{at: time.Now()}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx) //nolint:errcheck // returns on cancel

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, outcomes["job-8"])
	require.False(t, outcomes["job-9"])
}

func TestWorkerRunBacksOffAfterDequeueFailure(t *testing.T) {
	t.Parallel()

	queue := &brokenQueue{}
	w := New(queue, newFakeStore(), &fakeFactory{}, routerFor(), newRecordingSink(), fixedClock{at: time.Now()}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Long enough for a hot loop to rack up thousands of attempts, short
	// enough to stay inside the first backoff window.
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	require.LessOrEqual(t, queue.calls.Load(), int32(2))
}

type brokenQueue struct {
	calls atomic.Int32
}

func (q *brokenQueue) Enqueue(context.Context, scrape.QueueItem) error {
	return errors.New("queue closed")
}

func (q *brokenQueue) Dequeue(context.Context) (scrape.QueueItem, error) {
	q.calls.Add(1)
	return scrape.QueueItem{}, errors.New("queue closed")
}
