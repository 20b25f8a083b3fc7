package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sensor-collector/internal/config"
	"sensor-collector/internal/kafka"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/mqtt"
)

// publisher is satisfied by the MQTT client and the Kafka producer.
type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type mqttPublisher struct{ c *mqtt.Client }

func (p mqttPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	return p.c.Publish(topic, payload)
}

func main() {
	devices := flag.String("devices", "device_01,device_02,device_03", "Comma separated device ids")
	interval := flag.Duration("interval", 2*time.Second, "Delay between publishing rounds")
	rounds := flag.Int("rounds", 0, "Number of rounds to publish, 0 runs until interrupted")
	prefix := flag.String("prefix", "sensors", "Topic prefix")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub publisher
	switch cfg.Transport {
	case "kafka":
		producer := kafka.NewProducer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic)
		defer producer.Close()
		pub = producer
	default:
		client := mqtt.New(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       fmt.Sprintf("sensor-simulator-%d", os.Getpid()),
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
		}, logger)
		logger.Infof("Connecting to %s...", cfg.MQTT.Broker)
		if err := client.Connect(ctx); err != nil {
			logger.Fatalf("Connect failed: %v", err)
		}
		defer client.Disconnect()
		pub = mqttPublisher{c: client}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ids := strings.Split(*devices, ",")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		for _, id := range ids {
			topic := *prefix + "/" + strings.TrimSpace(id)
			payload, err := json.Marshal(generateReading(rng))
			if err != nil {
				logger.Errorf("Marshal reading failed: %v", err)
				continue
			}
			if err := pub.Publish(ctx, topic, payload); err != nil {
				logger.Errorf("Publish to %s failed: %v", topic, err)
				continue
			}
			logger.Infof("Published to %s: %s", topic, payload)
		}

		if *rounds > 0 && round >= *rounds {
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("Simulation stopped")
			return
		case <-ticker.C:
		}
	}
}

// generateReading draws one sample; temperature spikes by 10 one time in four
// and voltage by 50 one time in five, so alerts show up regularly.
func generateReading(rng *rand.Rand) map[string]float64 {
	tempSpike := 0.0
	if rng.Intn(4) == 0 {
		tempSpike = 10
	}
	voltSpike := 0.0
	if rng.Intn(5) == 0 {
		voltSpike = 50
	}

	uniform := func(lo, hi float64) float64 {
		return lo + rng.Float64()*(hi-lo)
	}
	return map[string]float64{
		"temperature": round2(uniform(20, 30) + tempSpike),
		"humidity":    round2(uniform(40, 90)),
		"voltage":     round2(uniform(220, 240) + voltSpike),
		"current":     round2(uniform(1, 5)),
		"pressure":    round2(uniform(980, 1020)),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
