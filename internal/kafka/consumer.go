package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"sensor-collector/internal/ingest"
	"sensor-collector/internal/logging"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer is an ingest.Transport reading device telemetry from a Kafka topic.
// The message key carries the device topic (e.g. sensors/device_01). Offsets
// of delivered messages are committed when the pipeline acks them, so
// messages still queued at shutdown are read again on the next start.
type Consumer struct {
	cfg       Config
	log       *logrus.Entry
	newReader func(Config) messageReader
	backoff   time.Duration

	mu        sync.Mutex
	pattern   string
	onConnect func()
	onLost    func(error)
	onMessage func(ingest.Message)
	reader    messageReader
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ ingest.Transport = (*Consumer)(nil)

func NewConsumer(cfg Config, logger *logging.Logger) *Consumer {
	if cfg.GroupID == "" {
		cfg.GroupID = "sensor-collector"
	}
	return &Consumer{
		cfg:       cfg,
		log:       logger.WithComponent("kafka"),
		newReader: defaultReader,
		backoff:   2 * time.Second,
	}
}

func defaultReader(cfg Config) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
}

func (c *Consumer) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

func (c *Consumer) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

func (c *Consumer) OnMessage(fn func(ingest.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Connect starts the fetch loop. kafka-go dials lazily, so broker problems
// surface as connection-lost events from the loop rather than here.
func (c *Consumer) Connect(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" {
		return errors.New("kafka brokers and topic are required")
	}

	c.mu.Lock()
	if c.reader != nil {
		c.mu.Unlock()
		return errors.New("kafka consumer already connected")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.reader = c.newReader(c.cfg)
	c.cancel = cancel
	c.done = make(chan struct{})
	reader, done := c.reader, c.done
	onConnect := c.onConnect
	c.mu.Unlock()

	c.log.Infof("Kafka consumer started: topic=%s group=%s", c.cfg.Topic, c.cfg.GroupID)
	if onConnect != nil {
		onConnect()
	}
	go c.loop(runCtx, reader, done)
	return nil
}

// Subscribe sets the device topic filter applied to message keys.
func (c *Consumer) Subscribe(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pattern = pattern
	return nil
}

func (c *Consumer) Disconnect() {
	c.mu.Lock()
	reader, cancel, done := c.reader, c.cancel, c.done
	c.reader = nil
	c.mu.Unlock()
	if reader == nil {
		return
	}

	cancel()
	if err := reader.Close(); err != nil {
		c.log.Errorf("Close reader failed: %v", err)
	}
	<-done
	c.log.Info("Kafka consumer stopped")
}

func (c *Consumer) loop(ctx context.Context, reader messageReader, done chan struct{}) {
	defer close(done)
	lost := false

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Errorf("Read message failed: %v", err)
			if !lost {
				lost = true
				c.notifyLost(err)
			}
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		if lost {
			lost = false
			c.notifyConnect()
		}

		topic := messageTopic(m)
		c.mu.Lock()
		pattern, onMessage := c.pattern, c.onMessage
		c.mu.Unlock()

		if pattern != "" && ingest.MatchTopic(pattern, topic) && onMessage != nil {
			// the offset is committed once the pipeline has handled the message
			onMessage(ingest.Message{
				Topic:   topic,
				Payload: m.Value,
				Ack:     func() { c.commit(ctx, reader, m) },
			})
		} else {
			// not committed; the next acked offset covers it
			c.log.Debugf("Skipping message for %s", topic)
		}
	}
}

func (c *Consumer) commit(ctx context.Context, reader messageReader, m kafka.Message) {
	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Errorf("Commit offset %d failed: %v", m.Offset, err)
	}
}

func (c *Consumer) notifyLost(err error) {
	c.mu.Lock()
	fn := c.onLost
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Consumer) notifyConnect() {
	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// messageTopic returns the device topic from the key, or the Kafka topic name.
func messageTopic(m kafka.Message) string {
	if len(m.Key) > 0 {
		return string(m.Key)
	}
	return m.Topic
}
