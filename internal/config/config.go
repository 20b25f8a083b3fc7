package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Transport string
	MQTT      struct {
		Broker         string
		ClientID       string
		Topic          string
		QoS            byte
		KeepAlive      time.Duration
		ConnectTimeout time.Duration
		Username       string
		Password       string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		Driver     string
		DSN        string
		SQLitePath string
	}
	API struct {
		Port     string
		BasePath string
	}
	Ingest struct {
		QueueSize int
		Workers   int
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		To         []string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Thresholds struct {
		File string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	var badInts []string
	atoi := func(key string) int {
		raw := os.Getenv(key)
		if raw == "" {
			return 0
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			badInts = append(badInts, key)
		}
		return n
	}

	cfg.Transport = os.Getenv("TRANSPORT")

	// MQTT settings
	cfg.MQTT.Broker = os.Getenv("MQTT_BROKER")
	cfg.MQTT.ClientID = os.Getenv("MQTT_CLIENT_ID")
	cfg.MQTT.Topic = os.Getenv("MQTT_TOPIC")
	qos := atoi("MQTT_QOS")
	cfg.MQTT.KeepAlive = time.Duration(atoi("MQTT_KEEPALIVE")) * time.Second
	cfg.MQTT.ConnectTimeout = time.Duration(atoi("MQTT_CONNECT_TIMEOUT")) * time.Second
	cfg.MQTT.Username = os.Getenv("MQTT_USERNAME")
	cfg.MQTT.Password = os.Getenv("MQTT_PASSWORD")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Database
	cfg.DB.Driver = os.Getenv("DB_DRIVER")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.SQLitePath = os.Getenv("SQLITE_PATH")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Worker settings
	cfg.Ingest.QueueSize = atoi("INGEST_QUEUE_SIZE")
	cfg.Ingest.Workers = atoi("INGEST_WORKERS")
	cfg.Notification.QueueSize = atoi("NOTIFY_QUEUE_SIZE")
	cfg.Notification.MaxWorkers = atoi("NOTIFY_WORKERS")

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badInts = append(badInts, "TELEGRAM_CHAT_ID")
		}
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RateLimit = atoi("TELEGRAM_RATE_LIMIT")

	// Email
	cfg.Email.SMTPServer = os.Getenv("SMTP_SERVER")
	cfg.Email.SMTPPort = atoi("SMTP_PORT")
	cfg.Email.Username = os.Getenv("SMTP_USERNAME")
	cfg.Email.Password = os.Getenv("SMTP_PASSWORD")
	for _, addr := range strings.Split(os.Getenv("ALERT_EMAIL_TO"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cfg.Email.To = append(cfg.Email.To, addr)
		}
	}

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	cfg.Thresholds.File = os.Getenv("THRESHOLDS_FILE")

	if len(badInts) > 0 {
		return Config{}, fmt.Errorf("invalid integer configurations: %v", badInts)
	}
	if qos < 0 || qos > 2 {
		return Config{}, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", qos)
	}
	cfg.MQTT.QoS = byte(qos)

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Transport == "" {
		cfg.Transport = "mqtt"
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://test.mosquitto.org:1883"
	}
	if cfg.MQTT.ClientID == "" {
		host, _ := os.Hostname()
		cfg.MQTT.ClientID = fmt.Sprintf("sensor-collector-%s-%d", host, os.Getpid())
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "sensors/+"
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = 60 * time.Second
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = 10 * time.Second
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "sensor-collector"
	}
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = "sqlite"
	}
	if cfg.DB.SQLitePath == "" {
		cfg.DB.SQLitePath = "sensor_data.db"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 500
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 1
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 2
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 1
	}
	if cfg.Email.SMTPServer != "" && cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (cfg Config) validate() error {
	// Validate required settings
	missing := []string{}
	switch cfg.Transport {
	case "mqtt":
	case "kafka":
		if cfg.Kafka.Broker == "" {
			missing = append(missing, "KAFKA_BROKER")
		}
		if cfg.Kafka.Topic == "" {
			missing = append(missing, "KAFKA_TOPIC")
		}
	default:
		return fmt.Errorf("unsupported TRANSPORT %q (want mqtt or kafka)", cfg.Transport)
	}

	switch cfg.DB.Driver {
	case "sqlite", "memory":
	case "postgres":
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want sqlite, postgres or memory)", cfg.DB.Driver)
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(cfg.Email.To) > 0 {
		if cfg.Email.SMTPServer == "" {
			missing = append(missing, "SMTP_SERVER")
		}
		if cfg.Email.Username == "" {
			missing = append(missing, "SMTP_USERNAME")
		}
		if cfg.Email.Password == "" {
			missing = append(missing, "SMTP_PASSWORD")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}

	if cfg.Email.SMTPPort < 0 || cfg.Email.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT out of range: %d", cfg.Email.SMTPPort)
	}
	if cfg.Ingest.QueueSize < 0 || cfg.Ingest.Workers < 0 {
		return fmt.Errorf("INGEST_QUEUE_SIZE and INGEST_WORKERS must be positive")
	}
	return nil
}
