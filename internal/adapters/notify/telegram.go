package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/arourke/wxengine/internal/domain"
)

// Telegram implements ports.Alerts against a Telegram bot, for unattended
// operation (spec §6 user-facing alerts). Send failures are logged by the
// caller's Alerts contract, never surfaced into the trading path.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram wires a bot against a token and destination chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) TradeEntry(ctx context.Context, trade domain.Trade) error {
	msg := fmt.Sprintf("🟢 ENTRY %s %s %s %s @ %.3f x%d ($%s)\nedge=%.1f%% kelly=%.3f reason=%s",
		trade.City, trade.Date, trade.Side, trade.Range.Name,
		trade.EntryPrice.InexactFloat64(), trade.Shares, trade.Cost.StringFixed(2),
		trade.EntryEdgePct, trade.EntryKelly, trade.EntryReason)
	return t.send(ctx, msg)
}

func (t *Telegram) TradeExit(ctx context.Context, trade domain.Trade) error {
	icon := "⚪"
	if trade.PnL.IsPositive() {
		icon = "✅"
	} else if trade.PnL.IsNegative() {
		icon = "🔴"
	}
	msg := fmt.Sprintf("%s EXIT %s %s %s %s state=%s pnl=$%s",
		icon, trade.City, trade.Date, trade.Side, trade.Range.Name,
		trade.State, trade.PnL.StringFixed(2))
	return t.send(ctx, msg)
}

func (t *Telegram) SendNow(ctx context.Context, message string) error {
	return t.send(ctx, message)
}

func (t *Telegram) send(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("notify.Telegram: send: %w", err)
	}
	return nil
}
