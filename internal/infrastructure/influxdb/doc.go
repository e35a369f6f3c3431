// Package influxdb records bridge lifecycle telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks. Only connection lifecycle points
// (connect, close, error, reconnect) are written; controller event payloads
// are never stored.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb
