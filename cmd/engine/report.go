package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/arourke/wxengine/internal/adapters/storage"
)

// runTableReport prints all open trades as a table and exits (-table).
func runTableReport(ctx context.Context, store *storage.SQLiteStorage) {
	trades, err := store.GetOpenTrades(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load open trades:", err)
		os.Exit(1)
	}

	table := tablewriter.NewTable(os.Stdout)
	table.Header("City", "Date", "Range", "Side", "Venue", "Entry", "Shares", "Cost", "Current", "Reason")
	for _, t := range trades {
		table.Append([]string{
			t.City, t.Date, t.Range.Name, string(t.Side), string(t.Venue),
			t.EntryPrice.StringFixed(3), fmt.Sprintf("%d", t.Shares), t.Cost.StringFixed(2),
			fmt.Sprintf("%.3f", t.CurrentPrice), string(t.EntryReason),
		})
	}
	table.Render()
}

// runAccuracyReport prints resolved opportunities and per-source accuracy
// over the calibration window and exits (-report).
func runAccuracyReport(ctx context.Context, store *storage.SQLiteStorage, windowDays int) {
	rows, err := store.FetchAccuracyRows(ctx, windowDays)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load accuracy rows:", err)
		os.Exit(1)
	}
	resolved, err := store.FetchResolvedOpportunities(ctx, windowDays)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load resolved opportunities:", err)
		os.Exit(1)
	}

	accTable := tablewriter.NewTable(os.Stdout)
	accTable.Header("City", "Date", "Source", "Unit", "Lead", "Error")
	for _, r := range rows {
		accTable.Append([]string{
			r.City, r.Date, r.Source, string(r.Unit), r.Lead, fmt.Sprintf("%.2f", r.Error),
		})
	}
	accTable.Render()

	oppTable := tablewriter.NewTable(os.Stdout)
	oppTable.Header("City", "Date", "Range", "Side", "Venue", "Edge%", "Approved", "Outcome")
	for _, ro := range resolved {
		o := ro.Opp
		outcome := "NO"
		if ro.Outcome {
			outcome = "YES"
		}
		oppTable.Append([]string{
			o.City, o.Date, o.Range.Name, string(o.Side), string(o.Venue),
			fmt.Sprintf("%.1f", o.EdgePct), fmt.Sprintf("%t", o.Approved), outcome,
		})
	}
	oppTable.Render()
}
