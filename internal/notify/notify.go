package notify

import (
	"context"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
)

// Multi fans a message out to every notifier in order.
type Multi []interfaces.Notifier

var _ interfaces.Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, text)
		}
	}
}

// Log writes notifications to the structured log. It is always part of the
// chain so that every alert leaves a trace even when chat delivery fails.
type Log struct{}

func (Log) Notify(ctx context.Context, text string) {
	logger.Info(ctx, "Notification", "text", text)
}
