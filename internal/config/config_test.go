package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"TRANSPORT", "MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC", "MQTT_QOS", "MQTT_KEEPALIVE",
	"MQTT_CONNECT_TIMEOUT", "MQTT_USERNAME", "MQTT_PASSWORD", "KAFKA_BROKER", "KAFKA_TOPIC",
	"KAFKA_GROUP_ID", "DB_DRIVER", "DB_DSN", "SQLITE_PATH", "API_PORT", "API_BASE_PATH",
	"INGEST_QUEUE_SIZE", "INGEST_WORKERS", "NOTIFY_QUEUE_SIZE", "NOTIFY_WORKERS",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_RATE_LIMIT", "LOG_DIR", "LOG_LEVEL",
	"THRESHOLDS_FILE", "SMTP_SERVER", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "ALERT_EMAIL_TO",
	"THRESHOLDS_TEMPERATURE", "THRESHOLDS_HUMIDITY", "THRESHOLDS_VOLTAGE", "THRESHOLDS_CURRENT", "THRESHOLDS_PRESSURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Transport != "mqtt" {
		t.Errorf("Transport = %q", cfg.Transport)
	}
	if cfg.MQTT.Topic != "sensors/+" {
		t.Errorf("MQTT.Topic = %q", cfg.MQTT.Topic)
	}
	if cfg.MQTT.KeepAlive != 60*time.Second {
		t.Errorf("MQTT.KeepAlive = %v", cfg.MQTT.KeepAlive)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath != "sensor_data.db" {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.API.Port != ":8080" || cfg.API.BasePath != "/api/v0" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Ingest.QueueSize != 500 || cfg.Ingest.Workers != 1 {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
	if !strings.HasPrefix(cfg.MQTT.ClientID, "sensor-collector-") {
		t.Errorf("MQTT.ClientID = %q", cfg.MQTT.ClientID)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "kafka")
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("KAFKA_TOPIC", "telemetry")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost/sensors")
	t.Setenv("INGEST_QUEUE_SIZE", "64")
	t.Setenv("MQTT_KEEPALIVE", "30")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transport != "kafka" || cfg.Kafka.Topic != "telemetry" {
		t.Errorf("kafka settings not applied: %+v", cfg.Kafka)
	}
	if cfg.DB.Driver != "postgres" {
		t.Errorf("DB.Driver = %q", cfg.DB.Driver)
	}
	if cfg.Ingest.QueueSize != 64 {
		t.Errorf("Ingest.QueueSize = %d", cfg.Ingest.QueueSize)
	}
	if cfg.MQTT.KeepAlive != 30*time.Second {
		t.Errorf("MQTT.KeepAlive = %v", cfg.MQTT.KeepAlive)
	}
	if cfg.Telegram.ChatID != -100123 {
		t.Errorf("Telegram.ChatID = %d", cfg.Telegram.ChatID)
	}
}

func TestLoadEmail(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "collector@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("ALERT_EMAIL_TO", "ops@example.com, , oncall@example.com")
	t.Setenv("MQTT_QOS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Email.SMTPPort != 587 {
		t.Errorf("Email.SMTPPort = %d, want default 587", cfg.Email.SMTPPort)
	}
	if len(cfg.Email.To) != 2 || cfg.Email.To[0] != "ops@example.com" || cfg.Email.To[1] != "oncall@example.com" {
		t.Errorf("Email.To = %q", cfg.Email.To)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT.QoS = %d", cfg.MQTT.QoS)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"kafka without broker", map[string]string{"TRANSPORT": "kafka"}, "KAFKA_BROKER"},
		{"postgres without dsn", map[string]string{"DB_DRIVER": "postgres"}, "DB_DSN"},
		{"unknown transport", map[string]string{"TRANSPORT": "amqp"}, "unsupported TRANSPORT"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "unsupported DB_DRIVER"},
		{"bad integer", map[string]string{"INGEST_QUEUE_SIZE": "lots"}, "INGEST_QUEUE_SIZE"},
		{"bad qos", map[string]string{"MQTT_QOS": "3"}, "MQTT_QOS"},
		{"qos wraps past a byte", map[string]string{"MQTT_QOS": "256"}, "MQTT_QOS"},
		{"negative qos", map[string]string{"MQTT_QOS": "-1"}, "MQTT_QOS"},
		{"email without smtp server", map[string]string{"ALERT_EMAIL_TO": "ops@example.com", "SMTP_USERNAME": "u", "SMTP_PASSWORD": "p"}, "SMTP_SERVER"},
		{"email without credentials", map[string]string{"ALERT_EMAIL_TO": "ops@example.com", "SMTP_SERVER": "smtp.example.com"}, "SMTP_USERNAME"},
		{"smtp port out of range", map[string]string{"SMTP_SERVER": "smtp.example.com", "SMTP_PORT": "70000"}, "SMTP_PORT"},
		{"telegram without chat", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}, "TELEGRAM_CHAT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadCatalogDefaults(t *testing.T) {
	clearEnv(t)

	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := c.Threshold("pressure"); got != 1100.0 {
		t.Errorf("pressure = %v", got)
	}
	if c.Len() != 5 {
		t.Errorf("expected 5 entries, got %d", c.Len())
	}
}

func TestLoadCatalogFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := "thresholds:\n  temperature: 25\n  humidity: 70.5\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("THRESHOLDS_HUMIDITY", "65")

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := c.Threshold("temperature"); got != 25 {
		t.Errorf("temperature = %v, want file value 25", got)
	}
	if got, _ := c.Threshold("humidity"); got != 65 {
		t.Errorf("humidity = %v, want env value 65", got)
	}
	if got, _ := c.Threshold("voltage"); got != 240 {
		t.Errorf("voltage = %v, want default 240", got)
	}
}

func TestLoadCatalogRejectsUnknownMetric(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  rpm: 9000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCatalog(path); err == nil || !strings.Contains(err.Error(), "rpm") {
		t.Fatalf("expected unknown metric error, got %v", err)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
