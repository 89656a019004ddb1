// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl to run a crawl cycle for an entity.
//   - GET /v1/entities/... for entity lookup and gap reports.
//   - POST /v1/consolidation/... for merges, dedup sweeps, and validation.
//   - GET /v1/learning/... for learned source reliability stats.
package api
