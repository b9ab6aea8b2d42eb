package ports

import (
	"context"

	"github.com/arourke/wxengine/internal/domain"
)

// Alerts is fire-and-forget: callers do not block trading on delivery
// failure. Scan failures never reach Alerts (spec §7 user-visible failure
// behavior: "Alerts fire only on trade events. Scan failures appear in
// logs only.").
type Alerts interface {
	TradeEntry(ctx context.Context, t domain.Trade) error
	TradeExit(ctx context.Context, t domain.Trade) error
	SendNow(ctx context.Context, message string) error
}
