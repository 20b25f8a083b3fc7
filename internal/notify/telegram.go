package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/models"
	"sensor-collector/internal/utils"
)

// messageSender is the part of *bot.Bot the provider needs.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

type TelegramConfig struct {
	BotToken  string
	ChatID    int64
	RateLimit int // messages per second
}

// Telegram posts alerts to a single chat.
type Telegram struct {
	sender  messageSender
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegram(cfg TelegramConfig, logger *logging.Logger) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("missing telegram bot token")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("missing telegram chat id")
	}
	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, cfg, logger), nil
}

func newTelegram(sender messageSender, cfg TelegramConfig, logger *logging.Logger) *Telegram {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	return &Telegram{
		sender:  sender,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)), cfg.RateLimit),
		logger:  logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, alert models.Alert) error {
	// Check rate limit
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatTelegram(alert),
		ParseMode: tgmodels.ParseModeMarkdown,
	}

	return utils.Retry(ctx, t.logger, 3, time.Second, func() error {
		if _, err := t.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

func formatTelegram(a models.Alert) string {
	return fmt.Sprintf(
		"*Threshold alert*\n%s\n\n"+
			"*Topic:* %s\n"+
			"*Metric:* %s\n"+
			"*Value:* %s\n"+
			"*Threshold:* %s\n"+
			"*Time:* %s",
		bot.EscapeMarkdown(a.Message),
		bot.EscapeMarkdown(a.Topic),
		bot.EscapeMarkdown(a.ViolatedMetric),
		bot.EscapeMarkdown(fmt.Sprintf("%.2f", a.ActualValue)),
		bot.EscapeMarkdown(fmt.Sprintf("%.2f", a.ThresholdValue)),
		bot.EscapeMarkdown(a.Timestamp.Format(time.RFC3339)),
	)
}
