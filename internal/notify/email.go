package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/models"
	"sensor-collector/internal/utils"
)

// sendMailFunc has the signature of smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	To         []string
}

// Email mails alerts to a fixed recipient list through an SMTP relay.
type Email struct {
	cfg        EmailConfig
	sendMail   sendMailFunc
	retryDelay time.Duration
	logger     *logging.Logger
}

func NewEmail(cfg EmailConfig, logger *logging.Logger) (*Email, error) {
	if cfg.SMTPServer == "" || cfg.SMTPPort == 0 || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("missing Email configuration: no recipients")
	}
	for _, to := range cfg.To {
		if !strings.Contains(to, "@") {
			return nil, fmt.Errorf("invalid email address: %s", to)
		}
	}
	return &Email{
		cfg:        cfg,
		sendMail:   smtp.SendMail,
		retryDelay: time.Second,
		logger:     logger,
	}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, alert models.Alert) error {
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	msg := formatEmail(e.cfg.Username, e.cfg.To, alert)

	return utils.Retry(ctx, e.logger, 3, e.retryDelay, func() error {
		if err := e.sendMail(addr, auth, e.cfg.Username, e.cfg.To, msg); err != nil {
			return fmt.Errorf("failed to send email to %s: %w", strings.Join(e.cfg.To, ","), err)
		}
		return nil
	})
}

func formatEmail(from string, to []string, a models.Alert) []byte {
	subject := fmt.Sprintf("[sensor-collector] %s threshold exceeded on %s", a.ViolatedMetric, a.Topic)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", a.Message)
	fmt.Fprintf(&b, "Topic: %s\r\n", a.Topic)
	fmt.Fprintf(&b, "Metric: %s\r\n", a.ViolatedMetric)
	fmt.Fprintf(&b, "Value: %.2f\r\n", a.ActualValue)
	fmt.Fprintf(&b, "Threshold: %.2f\r\n", a.ThresholdValue)
	fmt.Fprintf(&b, "Time: %s\r\n", a.Timestamp.Format(time.RFC3339))
	return []byte(b.String())
}
