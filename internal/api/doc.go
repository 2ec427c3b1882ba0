// Package api hosts the optional status server of a crawl. Routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live run snapshot, POST /v1/run/stop to request a
//     stop after the current article.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger, when configured.
package api
