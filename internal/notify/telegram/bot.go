package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/types"
)

const helpText = `Commands:
/buy SYM - gap-checked buy now
/sell SYM QTY [LIMIT PRICE] - manual sell
/trigger SYM - place buy-on-dip trigger
/cancel ID - cancel a conditional order
/refresh - refresh capital
/reset - clear the daily attempt guard
/positions, /gtts, /trades [N], /status`

// Bot maps chat commands onto the operator command surface. Only the
// configured chat is served.
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	cmds   interfaces.Commands
	wg     sync.WaitGroup
}

func NewBot(api *tgbotapi.BotAPI, chatID int64, cmds interfaces.Commands) *Bot {
	return &Bot{api: api, chatID: chatID, cmds: cmds}
}

// Run polls for updates until ctx is cancelled, then waits for running commands.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	logger.Info(ctx, "Telegram command bot connected", "bot", b.api.Self.UserName)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message == nil || up.Message.Chat == nil {
				continue
			}
			chatID := up.Message.Chat.ID
			if chatID != b.chatID {
				logger.Warn(ctx, "Ignoring message from unknown chat", "chat_id", chatID)
				continue
			}
			text := strings.TrimSpace(up.Message.Text)
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.reply(ctx, chatID, b.handle(ctx, text))
			}()
		}
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		logger.Warn(ctx, "Telegram reply failed", "error", err)
	}
}

// handle executes one command line and returns the reply text.
func (b *Bot) handle(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	// "/buy@MyBot NIFTYBEES" in group chats
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/buy":
		if len(args) != 1 {
			return "Usage: /buy SYM"
		}
		return formatBuyOutcome(b.cmds.TriggerBuy(ctx, normalize(args[0])))
	case "/sell":
		return b.sell(ctx, args)
	case "/trigger":
		if len(args) != 1 {
			return "Usage: /trigger SYM"
		}
		o, err := b.cmds.TriggerBuyOrder(ctx, normalize(args[0]))
		if err != nil {
			return "Trigger not placed: " + err.Error()
		}
		return fmt.Sprintf("Buy trigger %s placed for %s: %d @ <= %s", o.RemoteID, o.Symbol, o.Quantity, o.TriggerPrice.StringFixed(2))
	case "/cancel":
		if len(args) != 1 {
			return "Usage: /cancel ID"
		}
		if err := b.cmds.CancelConditionalOrder(ctx, args[0]); err != nil {
			return "Cancel failed: " + err.Error()
		}
		return "Cancelled " + args[0]
	case "/refresh":
		return formatCapital(b.cmds.RefreshCapital(ctx))
	case "/reset":
		b.cmds.ResetDailyGuard(ctx)
		return "Daily attempt guard cleared"
	case "/positions":
		ps, err := b.cmds.ListPositions(ctx)
		if err != nil {
			return "Error: " + err.Error()
		}
		return formatPositions(ps)
	case "/gtts":
		orders, err := b.cmds.ListConditionalOrders(ctx)
		if err != nil {
			return "Error: " + err.Error()
		}
		return formatConditionals(orders)
	case "/trades":
		limit := 10
		if len(args) == 1 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		ts, err := b.cmds.ListRecentTrades(ctx, limit)
		if err != nil {
			return "Error: " + err.Error()
		}
		return formatTrades(ts)
	case "/status":
		st, err := b.cmds.Status(ctx)
		if err != nil {
			return "Error: " + err.Error()
		}
		return formatStatus(st)
	default:
		return "Unknown command. Try /help"
	}
}

func (b *Bot) sell(ctx context.Context, args []string) string {
	const usage = "Usage: /sell SYM QTY [LIMIT PRICE]"
	if len(args) != 2 && len(args) != 4 {
		return usage
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil || qty <= 0 {
		return usage
	}
	kind := types.KindMarket
	var price *decimal.Decimal
	if len(args) == 4 {
		if !strings.EqualFold(args[2], "LIMIT") {
			return usage
		}
		p, err := decimal.NewFromString(args[3])
		if err != nil || !p.IsPositive() {
			return usage
		}
		kind, price = types.KindLimit, &p
	}

	out, err := b.cmds.TriggerSell(ctx, normalize(args[0]), qty, kind, price)
	if err != nil {
		if errors.Is(err, types.ErrOrderRejected) {
			return "Sell rejected: " + err.Error()
		}
		return "Sell failed: " + err.Error()
	}
	return formatSellOutcome(out)
}

func normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}
