// Package api hosts the operator HTTP server that runs alongside an ingest.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live counters of the current run.
package api
