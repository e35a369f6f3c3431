// Package api serves the bridge's local HTTP surface.
//
// Endpoints:
//   - GET /health: stream and dependency health (503 when degraded)
//   - GET /metrics: Prometheus exposition
//   - GET /api/v1/system: runtime and controller summary
//   - GET /api/v1/subsystems[/{name}]: session state and tracked status
//
// The API is read-only; the controller is never driven from it.
package api
