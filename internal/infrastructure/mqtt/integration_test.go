//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/solarlog/internal/infrastructure/config"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func connectOrFail(t *testing.T, clientID string) *Client {
	t.Helper()

	client, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_ConnectAndHealth(t *testing.T) {
	client := connectOrFail(t, "solarlog-int-health")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}

	client.Close() //nolint:errcheck // Checked via HealthCheck
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestIntegration_ReadingRoundtrip(t *testing.T) {
	client := connectOrFail(t, "solarlog-int-roundtrip")

	received := make(chan string, 4)
	err := client.Subscribe(Topics{}.AllReadings(), 1, func(topic string, _ []byte) error {
		received <- InstrumentFromTopic(topic)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllReadings()) || client.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	if err := client.PublishRetained(Topics{}.Reading("int-inverter"), []byte(`{"values":[1,2]}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case instrument := <-received:
			if instrument == "int-inverter" {
				return
			}
		case <-deadline:
			t.Fatal("reading not received")
		}
	}
}

func TestIntegration_SystemStatusOnline(t *testing.T) {
	connectOrFail(t, "solarlog-int-status")
	observer := connectOrFail(t, "solarlog-int-status-observer")

	statuses := make(chan StatusPayload, 8)
	err := observer.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		var p StatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		statuses <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case p := <-statuses:
		if p.Status == "" {
			t.Errorf("status payload = %+v", p)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no retained system status received")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := integrationConfig("solarlog-int-refused")
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
