// Package storage implements spec.md §6's persistence interface against
// SQLite (pure Go, no CGo, matching the teacher's driver choice): the
// trades, opportunities, and snapshots tables plus the calibration history
// tables CalibrationStore reads from.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id              TEXT PRIMARY KEY,
    opportunity_id  TEXT,
    city            TEXT NOT NULL,
    date            TEXT NOT NULL,
    token_id        TEXT NOT NULL,
    side            TEXT NOT NULL,
    venue           TEXT NOT NULL,
    range_json      TEXT NOT NULL,
    entry_price     TEXT NOT NULL,
    shares          INTEGER NOT NULL,
    cost            TEXT NOT NULL,
    fee             TEXT NOT NULL,
    entry_reason    TEXT NOT NULL,
    entry_probability REAL NOT NULL,
    entry_edge_pct  REAL NOT NULL,
    entry_kelly     REAL NOT NULL,
    ensemble_temp_f REAL NOT NULL,
    ensemble_stddev_c REAL NOT NULL,
    sources_at_entry TEXT,
    spread_at_entry REAL NOT NULL,
    volume_at_entry REAL NOT NULL,
    state           TEXT NOT NULL,
    evaluator_log   TEXT,
    current_price   REAL NOT NULL DEFAULT 0,
    max_price       REAL NOT NULL DEFAULT 0,
    min_prob        REAL NOT NULL DEFAULT 0,
    pnl             TEXT NOT NULL DEFAULT '0',
    fees            TEXT NOT NULL DEFAULT '0',
    created_at      DATETIME NOT NULL,
    resolved_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trades_open ON trades(state);
CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(city, date, token_id, side, venue);

CREATE TABLE IF NOT EXISTS opportunities (
    id               TEXT PRIMARY KEY,
    city             TEXT NOT NULL,
    date             TEXT NOT NULL,
    token_id         TEXT NOT NULL,
    range_json       TEXT NOT NULL,
    side             TEXT NOT NULL,
    venue            TEXT NOT NULL,
    snapshot_at      DATETIME NOT NULL,
    raw_probability  REAL NOT NULL,
    corrected_probability REAL NOT NULL,
    correction_ratio REAL NOT NULL,
    edge_pct         REAL NOT NULL,
    kelly_fraction   REAL NOT NULL,
    approved         INTEGER NOT NULL,
    entry_reason     TEXT,
    filter_reason    TEXT,
    calibration_bucket_key TEXT,
    forecast_to_near_edge REAL,
    forecast_to_far_edge  REAL,
    forecast_in_range     INTEGER,
    source_disagreement_deg REAL,
    market_implied_divergence REAL,
    ask              REAL,
    bid              REAL,
    trade_id         TEXT
);

CREATE INDEX IF NOT EXISTS idx_opp_snapshot ON opportunities(snapshot_at DESC);
CREATE INDEX IF NOT EXISTS idx_opp_city_date ON opportunities(city, date);

CREATE TABLE IF NOT EXISTS snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    city        TEXT NOT NULL,
    date        TEXT NOT NULL,
    token_id    TEXT NOT NULL,
    venue       TEXT NOT NULL,
    bid         REAL NOT NULL,
    ask         REAL NOT NULL,
    volume      REAL NOT NULL,
    captured_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_at DESC);

CREATE TABLE IF NOT EXISTS v2_forecast_accuracy (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    city    TEXT NOT NULL,
    date    TEXT NOT NULL,
    source  TEXT NOT NULL,
    unit    TEXT NOT NULL,
    lead    TEXT NOT NULL,
    error   REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accuracy_date ON v2_forecast_accuracy(date);
`

// SQLiteStorage implements ports.TradeStore, ports.OpportunityStore,
// ports.SnapshotStore, and ports.CalibrationSource against one database
// file. SQLite is single-writer, so the pool is capped to one connection
// (the teacher's sqlite.go convention).
type SQLiteStorage struct {
	db *sql.DB
}

// Open creates (or opens) the database at path and applies the schema.
func Open(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.Open: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

// SaveTrade inserts a new trade row.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	rangeJSON, err := json.Marshal(t.Range)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: marshal range: %w", err)
	}
	sources, err := json.Marshal(t.SourcesAtEntry)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: marshal sources: %w", err)
	}
	evalLog, err := json.Marshal(t.EvaluatorLog)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: marshal evaluator log: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, opportunity_id, city, date, token_id, side, venue, range_json,
			 entry_price, shares, cost, fee, entry_reason, entry_probability,
			 entry_edge_pct, entry_kelly, ensemble_temp_f, ensemble_stddev_c,
			 sources_at_entry, spread_at_entry, volume_at_entry, state,
			 evaluator_log, current_price, max_price, min_prob, pnl, fees,
			 created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OpportunityID, t.City, t.Date, t.Range.TokenID, string(t.Side), string(t.Venue), string(rangeJSON),
		t.EntryPrice.String(), t.Shares, t.Cost.String(), t.Fee.String(), string(t.EntryReason), t.EntryProbability,
		t.EntryEdgePct, t.EntryKelly, t.EnsembleTempF, t.EnsembleStdDevC,
		string(sources), t.SpreadAtEntry, t.VolumeAtEntry, string(t.State),
		string(evalLog), t.CurrentPrice, t.MaxPrice, t.MinProb, t.PnL.String(), t.Fees.String(),
		t.CreatedAt.UTC(), nullableTime(t.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTrade rewrites the mutable fields of an existing trade row.
func (s *SQLiteStorage) UpdateTrade(ctx context.Context, t domain.Trade) error {
	evalLog, err := json.Marshal(t.EvaluatorLog)
	if err != nil {
		return fmt.Errorf("storage.UpdateTrade: marshal evaluator log: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET
			state = ?, evaluator_log = ?, current_price = ?, max_price = ?,
			min_prob = ?, pnl = ?, fees = ?, resolved_at = ?
		WHERE id = ?
	`,
		string(t.State), string(evalLog), t.CurrentPrice, t.MaxPrice,
		t.MinProb, t.PnL.String(), t.Fees.String(), nullableTime(t.ResolvedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdateTrade: update %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.UpdateTrade: no trade with id %s", t.ID)
	}
	return nil
}

// GetOpenTrades returns every trade still in the `open` state.
func (s *SQLiteStorage) GetOpenTrades(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, opportunity_id, city, date, token_id, side, venue, range_json,
		       entry_price, shares, cost, fee, entry_reason, entry_probability,
		       entry_edge_pct, entry_kelly, ensemble_temp_f, ensemble_stddev_c,
		       sources_at_entry, spread_at_entry, volume_at_entry, state,
		       evaluator_log, current_price, max_price, min_prob, pnl, fees,
		       created_at, resolved_at
		FROM trades WHERE state = ?
	`, string(domain.TradeOpen))
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenTrades: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.GetOpenTrades: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ExistsActive reports whether a non-closed trade already occupies this
// position key. Callers must treat a non-nil error as "yes" (fail closed,
// spec §4.4 step 4).
func (s *SQLiteStorage) ExistsActive(ctx context.Context, city, date, tokenID string, side domain.Side, venue domain.Venue) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM trades
		WHERE city = ? AND date = ? AND token_id = ? AND side = ? AND venue = ?
		  AND state != ?
	`, city, date, tokenID, string(side), string(venue), string(domain.TradeExited)).Scan(&n)
	if err != nil {
		return true, fmt.Errorf("storage.ExistsActive: query: %w", err)
	}
	return n > 0, nil
}

// SaveOpportunity appends one row. The opportunities table is append-only
// (spec §3): no upsert, no dedup at write time.
func (s *SQLiteStorage) SaveOpportunity(ctx context.Context, o domain.Opportunity) error {
	rangeJSON, err := json.Marshal(o.Range)
	if err != nil {
		return fmt.Errorf("storage.SaveOpportunity: marshal range: %w", err)
	}

	var ask, bid float64
	switch {
	case o.Yes != nil:
		ask = o.Yes.Ask
	case o.No != nil:
		ask, bid = o.No.Ask, o.No.Bid
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunities
			(id, city, date, token_id, range_json, side, venue, snapshot_at,
			 raw_probability, corrected_probability, correction_ratio, edge_pct,
			 kelly_fraction, approved, entry_reason, filter_reason,
			 calibration_bucket_key, forecast_to_near_edge, forecast_to_far_edge,
			 forecast_in_range, source_disagreement_deg, market_implied_divergence,
			 ask, bid, trade_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.City, o.Date, o.Range.TokenID, string(rangeJSON), string(o.Side), string(o.Venue), o.SnapshotAt.UTC(),
		o.RawProbability, o.CorrectedProbability, o.CorrectionRatio, o.EdgePct,
		o.KellyFraction, boolToInt(o.Approved), string(o.EntryReason), o.FilterReason,
		o.CalibrationBucketKey, o.ForecastToNearEdge, o.ForecastToFarEdge,
		boolToInt(o.ForecastInRange), o.SourceDisagreementDeg, o.MarketImpliedDivergence,
		ask, bid, o.TradeID,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOpportunity: insert %s: %w", o.ID, err)
	}
	return nil
}

// SaveSnapshot inserts one market-state capture row.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap ports.MarketSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (city, date, token_id, venue, bid, ask, volume, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.City, snap.Date, snap.TokenID, string(snap.Venue), snap.Bid, snap.Ask, snap.Volume, snap.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: insert: %w", err)
	}
	return nil
}

// FetchAccuracyRows returns the per-source accuracy ledger rows from the
// last windowDays.
func (s *SQLiteStorage) FetchAccuracyRows(ctx context.Context, windowDays int) ([]ports.AccuracyRow, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx, `
		SELECT city, date, source, unit, lead, error
		FROM v2_forecast_accuracy WHERE date >= ?
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("storage.FetchAccuracyRows: query: %w", err)
	}
	defer rows.Close()

	var out []ports.AccuracyRow
	for rows.Next() {
		var r ports.AccuracyRow
		var unit string
		if err := rows.Scan(&r.City, &r.Date, &r.Source, &unit, &r.Lead, &r.Error); err != nil {
			return nil, fmt.Errorf("storage.FetchAccuracyRows: scan: %w", err)
		}
		r.Unit = domain.Unit(unit)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FetchResolvedOpportunities joins past opportunities that carried a
// trade_id against the trade's terminal state to derive an outcome: a
// resolved trade's PnL sign indicates whether its side won.
func (s *SQLiteStorage) FetchResolvedOpportunities(ctx context.Context, windowDays int) ([]ports.ResolvedOpportunity, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.city, o.date, o.token_id, o.range_json, o.side, o.venue, o.snapshot_at,
		       o.raw_probability, o.corrected_probability, o.correction_ratio, o.edge_pct,
		       o.kelly_fraction, o.approved, o.entry_reason, o.calibration_bucket_key,
		       o.ask, o.bid, t.pnl
		FROM opportunities o
		JOIN trades t ON t.id = o.trade_id
		WHERE t.state = ? AND o.snapshot_at >= ?
	`, string(domain.TradeResolved), cutoff)
	if err != nil {
		return nil, fmt.Errorf("storage.FetchResolvedOpportunities: query: %w", err)
	}
	defer rows.Close()

	var out []ports.ResolvedOpportunity
	for rows.Next() {
		var o domain.Opportunity
		var rangeJSON, side, venue, entryReason string
		var approved int
		var ask, bid float64
		var pnlStr string

		if err := rows.Scan(
			&o.ID, &o.City, &o.Date, &o.Range.TokenID, &rangeJSON, &side, &venue, &o.SnapshotAt,
			&o.RawProbability, &o.CorrectedProbability, &o.CorrectionRatio, &o.EdgePct,
			&o.KellyFraction, &approved, &entryReason, &o.CalibrationBucketKey,
			&ask, &bid, &pnlStr,
		); err != nil {
			return nil, fmt.Errorf("storage.FetchResolvedOpportunities: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(rangeJSON), &o.Range); err != nil {
			return nil, fmt.Errorf("storage.FetchResolvedOpportunities: unmarshal range: %w", err)
		}
		o.Side = domain.Side(side)
		o.Venue = domain.Venue(venue)
		o.Approved = approved != 0
		o.EntryReason = domain.EntryReason(entryReason)
		if o.Side == domain.SideYes {
			o.Yes = &domain.YesOpportunity{Ask: ask}
		} else {
			o.No = &domain.NoOpportunity{Ask: ask, Bid: bid}
		}

		pnl, err := decimal.NewFromString(pnlStr)
		if err != nil {
			return nil, fmt.Errorf("storage.FetchResolvedOpportunities: parse pnl: %w", err)
		}
		out = append(out, ports.ResolvedOpportunity{Opp: o, Outcome: pnl.IsPositive()})
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.Trade, error) {
	var t domain.Trade
	var rangeJSON, entryPrice, cost, fee, pnl, fees, sources, evalLog, side, venue, entryReason, state string
	var resolvedAt sql.NullTime

	if err := rows.Scan(
		&t.ID, &t.OpportunityID, &t.City, &t.Date, &t.Range.TokenID, &side, &venue, &rangeJSON,
		&entryPrice, &t.Shares, &cost, &fee, &entryReason, &t.EntryProbability,
		&t.EntryEdgePct, &t.EntryKelly, &t.EnsembleTempF, &t.EnsembleStdDevC,
		&sources, &t.SpreadAtEntry, &t.VolumeAtEntry, &state,
		&evalLog, &t.CurrentPrice, &t.MaxPrice, &t.MinProb, &pnl, &fees,
		&t.CreatedAt, &resolvedAt,
	); err != nil {
		return t, err
	}

	if err := json.Unmarshal([]byte(rangeJSON), &t.Range); err != nil {
		return t, fmt.Errorf("unmarshal range: %w", err)
	}
	if sources != "" {
		if err := json.Unmarshal([]byte(sources), &t.SourcesAtEntry); err != nil {
			return t, fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	if evalLog != "" {
		if err := json.Unmarshal([]byte(evalLog), &t.EvaluatorLog); err != nil {
			return t, fmt.Errorf("unmarshal evaluator log: %w", err)
		}
	}

	t.Side = domain.Side(side)
	t.Venue = domain.Venue(venue)
	t.EntryReason = domain.EntryReason(entryReason)
	t.State = domain.TradeState(state)

	var parseErr error
	if t.EntryPrice, parseErr = decimal.NewFromString(entryPrice); parseErr != nil {
		return t, fmt.Errorf("parse entry price: %w", parseErr)
	}
	if t.Cost, parseErr = decimal.NewFromString(cost); parseErr != nil {
		return t, fmt.Errorf("parse cost: %w", parseErr)
	}
	if t.Fee, parseErr = decimal.NewFromString(fee); parseErr != nil {
		return t, fmt.Errorf("parse fee: %w", parseErr)
	}
	if t.PnL, parseErr = decimal.NewFromString(pnl); parseErr != nil {
		return t, fmt.Errorf("parse pnl: %w", parseErr)
	}
	if t.Fees, parseErr = decimal.NewFromString(fees); parseErr != nil {
		return t, fmt.Errorf("parse fees: %w", parseErr)
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		t.ResolvedAt = &at
	}
	return t, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
