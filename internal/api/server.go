package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/metrics"
	"github.com/JezreelBuenconsejo/web-scraper/internal/producer"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
)

// Config holds the server's request handling knobs.
type Config struct {
	RequestTimeout time.Duration
	APIKey         string
	DefaultLimit   int
	MaxLimit       int
}

// Server wires HTTP handlers to the producer and the content store.
type Server struct {
	router   chi.Router
	store    scrape.ContentStore
	producer *producer.Producer
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store scrape.ContentStore, prod *producer.Producer, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 500
	}
	s := &Server{
		store:    store,
		producer: prod,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/", s.listJobs)
			r.Get("/{job_id}", s.getJob)
		})
		r.Get("/records", s.listRecords)
		r.Get("/stats", s.stats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A failing store read means we cannot serve job traffic.
	if _, err := s.store.CountJobsByStatus(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitJobRequest struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Parameters struct {
		URL      string `json:"url"`
		MaxItems int    `json:"max_items"`
		MaxPages int    `json:"max_pages"`
		Priority int    `json:"priority"`
	} `json:"parameters"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Type == "" {
		s.writeError(w, http.StatusBadRequest, "job type is required")
		return
	}
	params := scrape.JobParameters{
		URL:      req.Parameters.URL,
		MaxItems: req.Parameters.MaxItems,
		MaxPages: req.Parameters.MaxPages,
		Priority: req.Parameters.Priority,
	}
	job, err := s.producer.Submit(r.Context(), req.ID, req.Type, params)
	if err != nil {
		var unknown *scrape.UnknownJobTypeError
		switch {
		case errors.As(err, &unknown):
			s.writeError(w, http.StatusBadRequest, unknown.Error())
		case errors.Is(err, context.DeadlineExceeded):
			s.writeError(w, http.StatusRequestTimeout, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var status *scrape.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := scrape.JobStatus(raw)
		switch st {
		case scrape.JobStatusPending, scrape.JobStatusActive, scrape.JobStatusCompleted, scrape.JobStatusFailed:
			status = &st
		default:
			s.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}
	limit, offset := s.pagination(r)
	jobs, err := s.store.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []scrape.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset := s.pagination(r)
	query := scrape.RecordQuery{
		Source: r.URL.Query().Get("source"),
		Search: r.URL.Query().Get("q"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		query.Since = since
	}
	records, err := s.store.ListRecords(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []scrape.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountJobsByStatus(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}
	byStatus := map[string]int64{}
	var total int64
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs_total":     total,
		"jobs_by_status": byStatus,
	})
}

func (s *Server) pagination(r *http.Request) (limit, offset int) {
	limit = s.cfg.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

// requestIDFrom returns the request ID set by requestIDMiddleware, or ""
// when the middleware did not run.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
