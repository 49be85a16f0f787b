// Package api hosts the HTTP control surface. Routes:
//   - GET /health probes the renderer and the store.
//   - GET /status reports run state, stored recipe count and schedule.
//   - POST /trigger?limit=N starts a run in the background.
//   - GET /result returns the last run's stats.
//   - GET /metrics for Prometheus scraping.
package api
