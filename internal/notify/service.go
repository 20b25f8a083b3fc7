package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/metrics"
	"sensor-collector/internal/models"
)

// Provider delivers one alert to one channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
}

type Config struct {
	QueueSize  int
	MaxWorkers int
}

// Service fans committed alerts out to the configured providers on a
// bounded queue served by a worker pool.
type Service struct {
	cfg       Config
	logger    *logging.Logger
	log       *logrus.Entry
	metrics   *metrics.Metrics
	providers []Provider
	alerts    chan models.Alert
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	once      sync.Once
}

// New constructs a notify Service
func New(cfg Config, logger *logging.Logger, m *metrics.Metrics, providers ...Provider) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 500
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		logger:    logger,
		log:       logger.WithComponent("notify"),
		metrics:   m,
		providers: providers,
		alerts:    make(chan models.Alert, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Logger exposes the Service's logger
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the worker pool
func (s *Service) Start() {
	for i := 0; i < s.cfg.MaxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Infof("Notification workers started: %d providers, %d workers", len(s.providers), s.cfg.MaxWorkers)
}

// Stop cancels the workers and waits for them to exit.
func (s *Service) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// QueueAlert enqueues an alert without blocking; it is dropped when the queue is full.
func (s *Service) QueueAlert(alert models.Alert) {
	if len(s.providers) == 0 {
		return
	}
	select {
	case s.alerts <- alert:
		s.log.Debugf("Queued alert %d", alert.ID)
	default:
		s.log.Errorf("Queue full, dropping alert %d (%s)", alert.ID, alert.Message)
		s.metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
	}
}

// worker processes alerts until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.log.Debugf("Worker %d stopped", id)
			return
		case alert := <-s.alerts:
			s.dispatch(alert)
		}
	}
}

func (s *Service) dispatch(alert models.Alert) {
	for _, p := range s.providers {
		final := "success"
		if err := s.send(p, alert); err != nil {
			final = "failed"
			s.log.Errorf("Dispatch error via %s: %v", p.Name(), err)
		}
		s.metrics.NotificationsSent.WithLabelValues(p.Name(), final).Inc()
		s.log.Debugf("Alert %d dispatched %s via %s", alert.ID, final, p.Name())
	}
}

// send isolates a misbehaving provider from the worker.
func (s *Service) send(p Provider, alert models.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.PanicsRecovered.WithLabelValues("notify").Inc()
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Send(s.ctx, alert)
}
