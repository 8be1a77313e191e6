package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/mixelka/mailhub/pkg/models"
)

const sendTimeout = 10 * time.Second

// MessageSender is the subset of the Telegram Bot API used for alerts
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram posts scheduler alerts to a chat
type Telegram struct {
	api       MessageSender
	chatID    int64
	formatter *AlertFormatter
	logger    *slog.Logger
}

// NewTelegram connects to the Bot API with token
func NewTelegram(token string, chatID int64, logger *slog.Logger) (*Telegram, error) {
	tgBot, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithSender(tgBot, chatID, logger), nil
}

// NewTelegramWithSender builds a notifier around an existing API client
func NewTelegramWithSender(api MessageSender, chatID int64, logger *slog.Logger) *Telegram {
	return &Telegram{
		api:       api,
		chatID:    chatID,
		formatter: NewAlertFormatter(),
		logger:    logger.With("component", "notify"),
	}
}

// TaskFailed alerts about a failed dispatch
func (t *Telegram) TaskFailed(ctx context.Context, task *models.SendTask, acc *models.Account, reason string) {
	t.send(ctx, t.formatter.FormatTaskFailed(task, acc, reason))
}

// DeadTask alerts about a task whose account is gone
func (t *Telegram) DeadTask(ctx context.Context, task *models.SendTask) {
	t.send(ctx, t.formatter.FormatDeadTask(task))
}

func (t *Telegram) send(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		t.logger.Warn("failed to send alert", "chat_id", t.chatID, "error", err)
	}
}
