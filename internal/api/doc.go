// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sites and /v1/sites/{site_id}/urls to inspect collections, and
//     POST /v1/urls/invalidate to drop every cached collection.
//   - POST /v1/sites/{site_id}/warm to start a background warming run, whose
//     report is served by GET /v1/runs/{run_id}.
//   - POST /v1/warm and GET /v1/presence for single URLs of configured sites.
package api
