// Package api hosts the operator HTTP server that runs alongside a harvest.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /status and /status/{run_id} for the live view of runs in this process.
//   - GET /runs and /runs/{run_id} for persisted run history via store.RunRepository.
package api
