package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. Dropped silently when disconnected.
//
// Tags should be low cardinality (subsystem and event names, never
// payload values).
//
// Example:
//
//	client.WritePoint("unifi_lifecycle",
//	    map[string]string{"subsystem": "network", "event": "connect"},
//	    map[string]any{"count": 1},
//	    time.Now())
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
