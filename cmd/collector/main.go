package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sensor-collector/internal/api"
	"sensor-collector/internal/config"
	"sensor-collector/internal/db"
	"sensor-collector/internal/ingest"
	"sensor-collector/internal/kafka"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/mqtt"
	"sensor-collector/internal/notify"
	"sensor-collector/internal/stats"
	"sensor-collector/internal/utils"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	catalog, err := config.LoadCatalog(cfg.Thresholds.File)
	if err != nil {
		logger.Fatalf("Failed to load thresholds: %v", err)
	}
	for _, e := range catalog.Entries() {
		logger.Infof("Threshold %s > %v", e.Metric, e.Threshold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	var store db.Gateway
	err = utils.Retry(ctx, logger, 5, 2*time.Second, func() error {
		var openErr error
		store, openErr = db.Open(ctx, db.Config{
			Driver:     cfg.DB.Driver,
			DSN:        cfg.DB.DSN,
			SQLitePath: cfg.DB.SQLitePath,
		}, logger)
		return openErr
	})
	if err != nil {
		logger.Fatalf("Database connection failed: %v", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Alert fan-out
	hub := notify.NewHub(logger)
	providers := []notify.Provider{hub}
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken:  cfg.Telegram.BotToken,
			ChatID:    cfg.Telegram.ChatID,
			RateLimit: cfg.Telegram.RateLimit,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to init Telegram provider: %v", err)
		}
		providers = append(providers, tg)
	}
	if len(cfg.Email.To) > 0 {
		mail, err := notify.NewEmail(notify.EmailConfig{
			SMTPServer: cfg.Email.SMTPServer,
			SMTPPort:   cfg.Email.SMTPPort,
			Username:   cfg.Email.Username,
			Password:   cfg.Email.Password,
			To:         cfg.Email.To,
		}, logger)
		if err != nil {
			logger.Fatalf("Failed to init Email provider: %v", err)
		}
		providers = append(providers, mail)
	}
	svc := notify.New(notify.Config{
		QueueSize:  cfg.Notification.QueueSize,
		MaxWorkers: cfg.Notification.MaxWorkers,
	}, logger, m, providers...)
	svc.Start()
	defer svc.Stop()

	// Transport and pipeline
	var transport ingest.Transport
	topic := cfg.MQTT.Topic
	switch cfg.Transport {
	case "kafka":
		transport = kafka.NewConsumer(kafka.Config{
			Brokers: []string{cfg.Kafka.Broker},
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, logger)
	default:
		transport = mqtt.New(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
		}, logger)
	}

	pipeline := ingest.New(ingest.Config{
		Topic:     topic,
		QueueSize: cfg.Ingest.QueueSize,
		Workers:   cfg.Ingest.Workers,
	}, transport, store, catalog, logger, m, ingest.WithAlertSink(svc))

	if err := pipeline.Start(ctx); err != nil {
		var cerr *ingest.ConnectError
		if !errors.As(err, &cerr) {
			logger.Fatalf("Failed to start pipeline: %v", err)
		}
		logger.Warnf("Initial connect failed, transport will keep retrying: %v", err)
	}
	defer pipeline.Stop()

	// Start API server
	handler := api.NewHandler(store, stats.New(store), hub, logger)
	router := api.NewRouter(cfg.API.BasePath, handler, logger, m, reg)
	server := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	pipeline.Stop()
	c := pipeline.Counters()
	logger.Infof("Pipeline totals: received=%d readings=%d alerts=%d dropped_decode=%d dropped_write=%d dropped_shutdown=%d",
		c.Received, c.ReadingsWritten, c.AlertsWritten, c.DroppedDecode, c.DroppedWrite, c.DroppedShutdown)
}
