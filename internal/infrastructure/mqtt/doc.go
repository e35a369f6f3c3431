// Package mqtt publishes classified controller events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - A retained status topic plus Last Will for offline detection
//   - Topic construction under a configurable prefix
//
// Topic layout:
//
//	{prefix}/status                 retained online/offline status
//	{prefix}/{subsystem}/{event}    one message per emitted event
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().Event("network", "EVT_WU_Connected")
//	client.PublishDefault(topic, payload)
package mqtt
