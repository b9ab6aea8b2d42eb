// Package orchestrator drives the Scanner and Executor on the three
// independent cadences spec.md §5 names: the scan loop, the snapshot loop,
// and the observation fast-poll loop, each skipping its own tick rather
// than queuing up if the previous run is still in flight.
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/executor"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/arourke/wxengine/internal/scanner"
)

// Config holds the three loop cadences.
type Config struct {
	ScanInterval        time.Duration // minutes, default scan cadence
	SnapshotInterval    time.Duration // ~15 minutes
	ObservationInterval time.Duration // seconds, guaranteed-win fast poll

	Cities []domain.City
	Dates  func() []string // recomputed each tick: "today" rolls over at midnight local
}

// DefaultConfig mirrors the literal cadences spec.md names.
func DefaultConfig() Config {
	return Config{
		ScanInterval:        1 * time.Minute,
		SnapshotInterval:    15 * time.Minute,
		ObservationInterval: 30 * time.Second,
	}
}

// Orchestrator wires the three loops against a Scanner, an Executor, and a
// guaranteed-win detector.
type Orchestrator struct {
	cfg    Config
	scan   *scanner.Scanner
	gw     *scanner.GuaranteedWinDetector
	exec   *executor.Executor
	venues map[domain.Venue]ports.VenueAdapter
	trades ports.TradeStore
	snaps  ports.SnapshotStore

	scanRunning atomic.Bool
	snapRunning atomic.Bool
	obsRunning  atomic.Bool
}

// New wires an Orchestrator.
func New(cfg Config, scan *scanner.Scanner, gw *scanner.GuaranteedWinDetector, exec *executor.Executor, venues map[domain.Venue]ports.VenueAdapter, trades ports.TradeStore, snaps ports.SnapshotStore) *Orchestrator {
	return &Orchestrator{cfg: cfg, scan: scan, gw: gw, exec: exec, venues: venues, trades: trades, snaps: snaps}
}

// Run blocks until ctx is cancelled, driving all three loops concurrently.
// Graceful shutdown: ctx cancellation (wired by the caller to
// signal.NotifyContext) stops all three tickers; Run returns once every
// loop has observed cancellation.
func (o *Orchestrator) Run(ctx context.Context) {
	done := make(chan struct{}, 3)

	go o.loop(ctx, "scan", o.cfg.ScanInterval, &o.scanRunning, o.runScanCycle, done)
	go o.loop(ctx, "snapshot", o.cfg.SnapshotInterval, &o.snapRunning, o.runSnapshotCycle, done)
	go o.loop(ctx, "observation", o.cfg.ObservationInterval, &o.obsRunning, o.runObservationCycle, done)

	for i := 0; i < 3; i++ {
		<-done
	}
}

// loop runs fn on every tick of interval, skipping a tick if the previous
// invocation of this same loop is still running (non-reentrant, spec §5).
func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, running *atomic.Bool, fn func(context.Context), done chan struct{}) {
	defer func() { done <- struct{}{} }()

	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("orchestrator: loop stopped", "loop", name)
			return
		case <-ticker.C:
			if !running.CompareAndSwap(false, true) {
				slog.Debug("orchestrator: skipping tick, previous run still in flight", "loop", name)
				continue
			}
			fn(ctx)
			running.Store(false)
		}
	}
}

func (o *Orchestrator) runScanCycle(ctx context.Context) {
	dates := o.dates()
	opps, err := o.scan.Scan(ctx, o.cfg.Cities, dates)
	if err != nil {
		slog.Error("orchestrator: scan cycle failed", "err", err)
		return
	}
	for _, opp := range opps {
		if _, err := o.exec.Execute(ctx, opp); err != nil {
			slog.Info("orchestrator: opportunity not executed", "city", opp.City, "date", opp.Date, "side", opp.Side, "err", err)
		}
	}
}

func (o *Orchestrator) runSnapshotCycle(ctx context.Context) {
	if o.snaps == nil {
		return
	}
	for _, city := range o.cfg.Cities {
		for _, date := range o.dates() {
			for venueName, venue := range o.venues {
				ranges, err := venue.GetMarkets(ctx, city, date)
				if err != nil {
					slog.Warn("orchestrator: snapshot GetMarkets failed", "venue", venueName, "city", city.Key, "err", err)
					continue
				}
				for _, r := range ranges {
					snap := ports.MarketSnapshot{
						City: city.Key, Date: date, TokenID: r.TokenID, Venue: r.Venue,
						Bid: r.Book.BestBid(), Ask: r.Book.BestAsk(), Volume: r.Volume,
						CapturedAt: time.Now(),
					}
					if err := o.snaps.SaveSnapshot(ctx, snap); err != nil {
						slog.Warn("orchestrator: save snapshot failed", "err", err)
					}
				}
			}
		}
	}
}

func (o *Orchestrator) runObservationCycle(ctx context.Context) {
	if o.gw == nil {
		return
	}
	openTrades, err := o.trades.GetOpenTrades(ctx)
	if err != nil {
		slog.Error("orchestrator: observation cycle failed to load open trades", "err", err)
		return
	}
	idx := scanner.BuildOpenIndex(openTrades)

	for _, city := range o.cfg.Cities {
		for _, date := range o.dates() {
			for venueName, venue := range o.venues {
				ranges, err := venue.GetMarkets(ctx, city, date)
				if err != nil {
					slog.Warn("orchestrator: observation GetMarkets failed", "venue", venueName, "city", city.Key, "err", err)
					continue
				}
				if len(ranges) == 0 {
					continue
				}
				opps := o.gw.Detect(ctx, city, date, venue, ranges, idx, time.Now())
				for _, opp := range opps {
					if _, err := o.exec.Execute(ctx, opp); err != nil {
						slog.Info("orchestrator: guaranteed-win opportunity not executed", "city", opp.City, "err", err)
					}
				}
			}
		}
	}
}

func (o *Orchestrator) dates() []string {
	if o.cfg.Dates == nil {
		return []string{time.Now().Format("2006-01-02")}
	}
	return o.cfg.Dates()
}
