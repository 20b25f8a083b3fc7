package ingest

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sensor-collector/internal/db"
	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/models"
	"sensor-collector/internal/payload"
	"sensor-collector/internal/rules"
	"sensor-collector/internal/utils"
)

var ErrAlreadyStarted = errors.New("pipeline already started")

// State is the subscription lifecycle of a Pipeline.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Config tunes a Pipeline. Zero values fall back to the defaults below.
type Config struct {
	Topic     string
	QueueSize int
	Workers   int
}

const (
	DefaultTopic     = "sensors/+"
	DefaultQueueSize = 500
	DefaultWorkers   = 1

	subscribeAttempts = 5
)

// AlertSink receives every committed alert. QueueAlert must not block.
type AlertSink interface {
	QueueAlert(models.Alert)
}

type Option func(*Pipeline)

// WithAlertSink forwards committed alerts to sink.
func WithAlertSink(sink AlertSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithClock overrides the clock used for receipt and reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Counters is a snapshot of the pipeline's message accounting.
type Counters struct {
	Received        int64
	Processed       int64
	DroppedDecode   int64
	DroppedWrite    int64
	DroppedShutdown int64
	ReadingsWritten int64
	AlertsWritten   int64
	AlertsFailed    int64
	Panics          int64
}

type counters struct {
	received        atomic.Int64
	processed       atomic.Int64
	droppedDecode   atomic.Int64
	droppedWrite    atomic.Int64
	droppedShutdown atomic.Int64
	readingsWritten atomic.Int64
	alertsWritten   atomic.Int64
	alertsFailed    atomic.Int64
	panics          atomic.Int64
}

// Pipeline turns each inbound message into one Reading plus zero or more Alerts.
type Pipeline struct {
	cfg       Config
	transport Transport
	gateway   db.Gateway
	catalog   rules.Catalog
	logger    *logging.Logger
	log       *logrus.Entry
	metrics   *metrics.Metrics
	sink      AlertSink
	now       func() time.Time

	subscribeDelay time.Duration

	// writeMu serializes reading writes; lastStamp is the newest stored timestamp.
	writeMu   sync.Mutex
	lastStamp time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan Message

	state    atomic.Int32
	counters counters
}

func New(cfg Config, t Transport, gw db.Gateway, catalog rules.Catalog, logger *logging.Logger, m *metrics.Metrics, opts ...Option) *Pipeline {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}

	p := &Pipeline{
		cfg:       cfg,
		transport: t,
		gateway:   gw,
		catalog:   catalog,
		logger:    logger,
		log:       logger.WithComponent("ingest"),
		metrics:   m,
		now:       time.Now,
		queue:     make(chan Message, cfg.QueueSize),

		subscribeDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics.QueueCapacity.Set(float64(cfg.QueueSize))
	return p
}

// Start launches the workers and connects the transport. A failed initial
// connect is returned as a *ConnectError; the pipeline keeps running and
// subscribes once the transport reports a connection.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.setState(StateConnecting)

	p.transport.OnConnect(p.handleConnect)
	p.transport.OnConnectionLost(p.handleConnectionLost)
	p.transport.OnMessage(p.handleMessage)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Infof("Pipeline started: topic=%s queue=%d workers=%d", p.cfg.Topic, p.cfg.QueueSize, p.cfg.Workers)

	if err := p.transport.Connect(p.ctx); err != nil {
		cerr := &ConnectError{Err: err}
		p.log.Errorf("%v", cerr)
		return cerr
	}
	return nil
}

// Stop lets the in-flight messages finish, disconnects the transport and
// discards whatever is still queued. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.log.Info("Stopping pipeline")
	// cancel first so a delivery callback blocked on a full queue returns
	// before the transport waits for its handlers
	p.cancel()
	p.wg.Wait()
	p.transport.Disconnect()

	discarded := 0
drain:
	for {
		select {
		case <-p.queue:
			discarded++
			p.dropShutdown()
		default:
			break drain
		}
	}
	p.metrics.QueueDepth.Set(0)
	p.setState(StateStopped)
	p.log.Infof("Pipeline stopped, discarded %d queued messages", discarded)
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) Counters() Counters {
	return Counters{
		Received:        p.counters.received.Load(),
		Processed:       p.counters.processed.Load(),
		DroppedDecode:   p.counters.droppedDecode.Load(),
		DroppedWrite:    p.counters.droppedWrite.Load(),
		DroppedShutdown: p.counters.droppedShutdown.Load(),
		ReadingsWritten: p.counters.readingsWritten.Load(),
		AlertsWritten:   p.counters.alertsWritten.Load(),
		AlertsFailed:    p.counters.alertsFailed.Load(),
		Panics:          p.counters.panics.Load(),
	}
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.metrics.PipelineState.Set(float64(s))
}

func (p *Pipeline) stopping() bool {
	return p.ctx.Err() != nil
}

// handleConnect runs after every (re)connect and restores the subscription.
// A failed subscribe is retried a few times before waiting for the next connect.
func (p *Pipeline) handleConnect() {
	if p.stopping() {
		return
	}
	err := utils.Retry(p.ctx, p.logger, subscribeAttempts, p.subscribeDelay, func() error {
		return p.transport.Subscribe(p.cfg.Topic)
	})
	if err != nil {
		p.log.Errorf("Subscribe to %s failed: %v", p.cfg.Topic, err)
		return
	}
	p.setState(StateSubscribed)
	p.log.Infof("Subscribed to %s", p.cfg.Topic)
}

func (p *Pipeline) handleConnectionLost(err error) {
	if p.stopping() {
		return
	}
	p.metrics.ConnectionsLost.Inc()
	p.setState(StateConnecting)
	p.log.Warnf("Connection lost, waiting for reconnect: %v", err)
}

// handleMessage is the transport's delivery callback. It blocks while the
// queue is full and gives up once Stop has begun.
func (p *Pipeline) handleMessage(msg Message) {
	msg.ID = uuid.NewString()
	msg.ReceivedAt = p.now().UTC()
	p.counters.received.Add(1)
	p.metrics.MessagesReceived.Inc()

	if p.stopping() {
		p.dropShutdown()
		return
	}
	select {
	case p.queue <- msg:
		p.metrics.QueueDepth.Set(float64(len(p.queue)))
	case <-p.ctx.Done():
		p.dropShutdown()
	}
}

func (p *Pipeline) dropShutdown() {
	p.counters.droppedShutdown.Add(1)
	p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonShutdown).Inc()
}

func (p *Pipeline) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			p.log.Debugf("Worker %d stopped", id)
			return
		case msg := <-p.queue:
			p.metrics.QueueDepth.Set(float64(len(p.queue)))
			if p.stopping() {
				p.dropShutdown()
				continue
			}
			p.process(msg)
			msg.ack()
		}
	}
}

// process handles one message; a panic is contained to that message.
func (p *Pipeline) process(msg Message) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.counters.panics.Add(1)
			p.metrics.PanicsRecovered.WithLabelValues("ingest").Inc()
			p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonPanic).Inc()
			p.log.WithField("message_id", msg.ID).Errorf("Recovered panic on %s: %v\n%s", msg.Topic, r, debug.Stack())
		}
		p.counters.processed.Add(1)
		p.metrics.ProcessDuration.Observe(time.Since(start).Seconds())
	}()
	p.handle(msg)
}

func (p *Pipeline) handle(msg Message) {
	log := p.log.WithFields(logrus.Fields{"message_id": msg.ID, "topic": msg.Topic})

	decoded, err := payload.Decode(msg.Topic, msg.Payload)
	if err != nil {
		p.counters.droppedDecode.Add(1)
		p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonDecode).Inc()
		log.Warnf("Dropping message: %v", err)
		return
	}

	// in-flight writes complete even if Stop cancels the pipeline context
	ctx := context.WithoutCancel(p.ctx)

	sess, err := p.gateway.Session(ctx)
	if err != nil {
		p.counters.droppedWrite.Add(1)
		p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonWrite).Inc()
		log.Errorf("Dropping message, no store session: %v", err)
		return
	}
	defer sess.Release()

	reading := models.Reading{
		MessageID:  msg.ID,
		Topic:      msg.Topic,
		Metrics:    decoded.Metrics,
		RawPayload: decoded.Raw,
	}
	if err := p.writeReading(ctx, sess, &reading); err != nil {
		p.counters.droppedWrite.Add(1)
		p.metrics.MessagesDropped.WithLabelValues(metrics.ReasonWrite).Inc()
		log.Errorf("Dropping message: %v", err)
		return
	}
	p.counters.readingsWritten.Add(1)
	p.metrics.ReadingsWritten.Inc()
	log.Debugf("Stored reading %d, %s after receipt", reading.ID, reading.Timestamp.Sub(msg.ReceivedAt))

	for _, v := range rules.Evaluate(decoded, p.catalog) {
		alert := models.NewAlert(reading, v.Metric, v.Actual, v.Threshold)
		if _, err := sess.WriteAlert(ctx, &alert); err != nil {
			p.counters.alertsFailed.Add(1)
			p.metrics.AlertWriteErrors.Inc()
			log.Errorf("Alert for %s not stored: %v", v.Metric, err)
			continue
		}
		p.counters.alertsWritten.Add(1)
		p.metrics.AlertsWritten.WithLabelValues(v.Metric).Inc()
		log.Infof("Alert: %s", alert.Message)

		if p.sink != nil {
			p.sink.QueueAlert(alert)
		}
	}
}

// writeReading stamps and stores r while holding writeMu, so stored
// timestamps never decrease in commit order whatever the worker count.
func (p *Pipeline) writeReading(ctx context.Context, sess db.Session, r *models.Reading) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	ts := p.now().UTC()
	if ts.Before(p.lastStamp) {
		ts = p.lastStamp
	}
	r.Timestamp = ts
	if _, err := sess.WriteReading(ctx, r); err != nil {
		return err
	}
	p.lastStamp = ts
	return nil
}
