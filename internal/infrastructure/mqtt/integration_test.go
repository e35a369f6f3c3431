//go:build integration

package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/unifi-mqtt/internal/infrastructure/config"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "unifi-int",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// subscribeRaw subscribes with a bare paho client, since the bridge client
// only publishes.
func subscribeRaw(t *testing.T, topic string) <-chan pahomqtt.Message {
	t.Helper()

	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID(fmt.Sprintf("unifi-int-sub-%d", time.Now().UnixNano()))
	raw := pahomqtt.NewClient(opts)
	if token := raw.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("raw connect failed: %v", token.Error())
	}
	t.Cleanup(func() { raw.Disconnect(100) })

	received := make(chan pahomqtt.Message, 8)
	token := raw.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("raw subscribe failed: %v", token.Error())
	}
	return received
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	client, err := Connect(integrationConfig("unifi-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := integrationConfig("unifi-int-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_EventRoundtrip(t *testing.T) {
	client, err := Connect(integrationConfig("unifi-int-pub"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topic := client.Topics().Event("network", "EVT_WU_Connected")
	received := subscribeRaw(t, topic)

	if err := client.PublishDefault(topic, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("PublishDefault() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload()) != `{"ok":true}` {
			t.Errorf("payload = %q", msg.Payload())
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	client, err := Connect(integrationConfig("unifi-int-status"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	// Give the async connect handler time to publish.
	time.Sleep(200 * time.Millisecond)

	received := subscribeRaw(t, client.Topics().Status())
	select {
	case msg := <-received:
		if !msg.Retained() {
			t.Error("status message not retained")
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained status")
	}
}

func TestIntegration_LoggerSet(t *testing.T) {
	client, err := Connect(integrationConfig("unifi-int-logger"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.SetLogger(&mockLogger{})
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}

type mockLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *mockLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
