package executor

import (
	"context"
	"sync"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/shopspring/decimal"
)

// Bankroll tracks the two running dollar balances (YES side, NO side) and
// the per-date NO exposure accumulator, generalized from the teacher's
// deployed-capital accounting (spec §9 grounding note: initial capital minus
// sum of open positions, rather than merge-rotation P&L).
type Bankroll struct {
	mu sync.Mutex

	yes float64
	no  float64

	noExposureByDate map[string]float64 // "city|date" -> dollars committed
}

// NewBankroll initializes both running balances from configured totals
// minus the cost of currently open trades (spec §4.4: "initialized from
// config.TOTAL[side] minus the sum of open-trade cost").
func NewBankroll(ctx context.Context, cfg Config, store ports.TradeStore) (*Bankroll, error) {
	open, err := store.GetOpenTrades(ctx)
	if err != nil {
		return nil, err
	}

	b := &Bankroll{
		yes:              cfg.TotalBankrollYes,
		no:               cfg.TotalBankrollNo,
		noExposureByDate: map[string]float64{},
	}
	for _, t := range open {
		cost, _ := t.Cost.Float64()
		switch t.Side {
		case domain.SideYes:
			b.yes -= cost
		case domain.SideNo:
			b.no -= cost
			b.noExposureByDate[cityDateKey(t.City, t.Date)] += cost
		}
	}
	return b, nil
}

func cityDateKey(city, date string) string { return city + "|" + date }

// Balance returns the current running balance for a side.
func (b *Bankroll) Balance(side domain.Side) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if side == domain.SideYes {
		return b.yes
	}
	return b.no
}

// NoExposure returns dollars already committed to NO positions for a
// city/date.
func (b *Bankroll) NoExposure(city, date string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.noExposureByDate[cityDateKey(city, date)]
}

// Reserve commits `cost` dollars against a side's bankroll, and against the
// per-date NO accumulator when side is NO. Call only after the trade record
// has been durably written (spec §7 ordering rule: trade row before
// bankroll decrement, so a crash mid-execution under-counts exposure rather
// than double-spending it).
func (b *Bankroll) Reserve(side domain.Side, city, date string, cost decimal.Decimal) {
	c, _ := cost.Float64()
	b.mu.Lock()
	defer b.mu.Unlock()
	if side == domain.SideYes {
		b.yes -= c
		return
	}
	b.no -= c
	b.noExposureByDate[cityDateKey(city, date)] += c
}

// Release returns `cost` dollars to a side's bankroll (and the per-date NO
// accumulator), used when a reserved order ultimately doesn't fill.
func (b *Bankroll) Release(side domain.Side, city, date string, cost decimal.Decimal) {
	c, _ := cost.Float64()
	b.mu.Lock()
	defer b.mu.Unlock()
	if side == domain.SideYes {
		b.yes += c
		return
	}
	b.no += c
	if v := b.noExposureByDate[cityDateKey(city, date)] - c; v > 0 {
		b.noExposureByDate[cityDateKey(city, date)] = v
	} else {
		delete(b.noExposureByDate, cityDateKey(city, date))
	}
}
