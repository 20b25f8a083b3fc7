package mqtt

import (
	"errors"
	"testing"
	"time"

	"sensor-collector/internal/logging"
)

func TestClientOptions(t *testing.T) {
	c := New(Config{
		Broker:   "tcp://broker.local:1883",
		ClientID: "collector-1",
		Username: "dev",
		Password: "secret",
	}, logging.NewNop())

	opts := c.options()
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.local:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "collector-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60 seconds", opts.KeepAlive)
	}
	if opts.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v", opts.ConnectTimeout)
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("expected auto reconnect and connect retry")
	}
	if opts.Username != "dev" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
}

func TestClientRequiresConnection(t *testing.T) {
	c := New(Config{Broker: "tcp://localhost:1883"}, logging.NewNop())

	if err := c.Subscribe("sensors/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe before Connect: %v", err)
	}
	if err := c.Publish("sensors/a", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish before Connect: %v", err)
	}
	c.Disconnect()
}
