package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
)

// sender is the part of *tgbotapi.BotAPI used for outbound messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ sender = (*tgbotapi.BotAPI)(nil)

// Notifier delivers alerts to a single chat. Failures are logged and counted,
// never returned.
type Notifier struct {
	api    sender
	chatID int64
}

var _ interfaces.Notifier = (*Notifier)(nil)

func NewNotifier(api *tgbotapi.BotAPI, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

func (n *Notifier) Notify(ctx context.Context, text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		metrics.NotifyFailures.WithLabelValues("telegram").Inc()
		logger.Warn(ctx, "Telegram notify failed", "chat_id", n.chatID, "error", err)
	}
}
