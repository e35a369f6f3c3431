// Package metrics exposes controller activity as Prometheus metrics.
//
// Metrics:
//   - unifi_events_total{subsystem,event}
//   - unifi_reconnects_total
//   - unifi_logins_total
//   - unifi_session_errors_total{subsystem}
//   - unifi_session_open{subsystem}
package metrics
