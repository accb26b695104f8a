// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs for job submission, GET /v1/jobs and /v1/jobs/{job_id}
//     for status polling.
//   - GET /v1/records for querying extracted content, GET /v1/stats for
//     aggregate job counts.
package api
