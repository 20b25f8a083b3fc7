package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"sensor-collector/internal/ingest"
	"sensor-collector/internal/logging"
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Broker         string
	ClientID       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	Username       string
	Password       string
}

// Client adapts a paho client to ingest.Transport. Paho owns reconnect
// and backoff; OnConnect fires after every successful (re)connect.
type Client struct {
	cfg Config
	log *logrus.Entry

	mu        sync.Mutex
	client    paho.Client
	onConnect func()
	onLost    func(error)
	onMessage func(ingest.Message)
}

var _ ingest.Transport = (*Client)(nil)

func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg, log: logger.WithComponent("mqtt")}
}

func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

func (c *Client) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

func (c *Client) OnMessage(fn func(ingest.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *Client) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(time.Minute).
		SetCleanSession(true).
		SetOrderMatters(true)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		c.log.Infof("Connected to %s", c.cfg.Broker)
		c.mu.Lock()
		fn := c.onConnect
		c.mu.Unlock()
		if fn != nil {
			// subscribing blocks on a token, which must not happen on paho's callback goroutine
			go fn()
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.log.Warnf("Connection to %s lost: %v", c.cfg.Broker, err)
		c.mu.Lock()
		fn := c.onLost
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		c.log.Infof("Reconnecting to %s", c.cfg.Broker)
	})
	return opts
}

// Connect starts the connection. With connect-retry enabled paho keeps trying
// in the background, so a timeout here is reported but not fatal.
func (c *Client) Connect(ctx context.Context) error {
	client := paho.NewClient(c.options())
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(c.cfg.ConnectTimeout):
		return fmt.Errorf("connect to %s timed out after %s", c.cfg.Broker, c.cfg.ConnectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", c.cfg.Broker, err)
	}
	return nil
}

func (c *Client) Subscribe(pattern string) error {
	client := c.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Subscribe(pattern, c.cfg.QoS, func(_ paho.Client, m paho.Message) {
		c.mu.Lock()
		fn := c.onMessage
		c.mu.Unlock()
		if fn == nil {
			return
		}
		payload := make([]byte, len(m.Payload()))
		copy(payload, m.Payload())
		fn(ingest.Message{Topic: m.Topic(), Payload: payload})
	})
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("subscribe to %s timed out", pattern)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", pattern, err)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte) error {
	client := c.current()
	if client == nil {
		return ErrNotConnected
	}
	token := client.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *Client) Disconnect() {
	client := c.current()
	if client == nil {
		return
	}
	client.Disconnect(250)
	c.log.Info("Disconnected")
}

func (c *Client) current() paho.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}
