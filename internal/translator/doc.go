// Package translator renders controller events as MQTT messages.
//
// Each event is published to {prefix}/{subsystem}/{event} as a JSON
// envelope:
//
//	{"id":"…","subsystem":"network","event":"EVT_WU_Connected",
//	 "timestamp":"2026-10-15T12:00:00Z","payload":{…}}
//
// Error payloads are rendered as {"error":"message"}.
package translator
