// Package telemetry records controller lifecycle events as InfluxDB points
// in the unifi_lifecycle measurement, tagged by subsystem and event.
package telemetry
