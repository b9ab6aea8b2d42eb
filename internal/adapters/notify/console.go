// Package notify implements spec.md §6's Alerts interface: a console
// writer for local runs and a Telegram bot for unattended operation,
// generalized from the teacher's console.go printing shape.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/arourke/wxengine/internal/domain"
)

// Console implements ports.Alerts by writing one line per event to an
// io.Writer. Delivery never fails in a way that should block trading
// (spec §7); errors here are only I/O errors on the writer itself.
type Console struct {
	out io.Writer
}

// NewConsole builds a notifier writing to stdout.
func NewConsole() *Console { return &Console{out: os.Stdout} }

// NewConsoleWriter builds a notifier against an arbitrary writer, for
// tests.
func NewConsoleWriter(w io.Writer) *Console { return &Console{out: w} }

// TradeEntry announces a new position.
func (c *Console) TradeEntry(_ context.Context, t domain.Trade) error {
	_, err := fmt.Fprintf(c.out, "[%s] ENTRY %s %s %s %s @ %.3f x%d ($%s) edge=%.1f%% kelly=%.3f reason=%s\n",
		time.Now().Format("15:04:05"), t.City, t.Date, t.Side, t.Range.Name,
		t.EntryPrice.InexactFloat64(), t.Shares, t.Cost.StringFixed(2),
		t.EntryEdgePct, t.EntryKelly, t.EntryReason)
	return err
}

// TradeExit announces a closed or resolved position.
func (c *Console) TradeExit(_ context.Context, t domain.Trade) error {
	_, err := fmt.Fprintf(c.out, "[%s] EXIT  %s %s %s %s state=%s pnl=$%s fees=$%s\n",
		time.Now().Format("15:04:05"), t.City, t.Date, t.Side, t.Range.Name,
		t.State, t.PnL.StringFixed(2), t.Fees.StringFixed(2))
	return err
}

// SendNow writes an arbitrary message, used for orchestrator-level
// warnings (e.g. stale-platform suppression, spec §7).
func (c *Console) SendNow(_ context.Context, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), message)
	return err
}
