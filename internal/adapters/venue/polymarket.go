package venue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
)

const (
	polymarketRatePerSec = 18 // Gamma /markets rate, 60% of the documented limit
	polymarketBurst      = 10
)

type polymarketGammaMarket struct {
	ConditionID string          `json:"condition_id"`
	Slug        string          `json:"slug"`
	Question    string          `json:"question"`
	Volume24h   strconvFloat    `json:"volume24hr"`
	EndDateISO  string          `json:"end_date_iso"`
	Tokens      []polymarketTok `json:"tokens"`
	// weather metadata, threaded through Gamma's generic market fields
	FloorStrike string `json:"floor_strike"`
	CapStrike   string `json:"cap_strike"`
	StrikeType  string `json:"strike_type"`
}

type polymarketTok struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

type polymarketMarketsResponse []polymarketGammaMarket

type polymarketBookEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type polymarketOrderBookResponse struct {
	AssetID string                 `json:"asset_id"`
	Bids    []polymarketBookEntry  `json:"bids"`
	Asks    []polymarketBookEntry  `json:"asks"`
}

type polymarketOrderRequest struct {
	TokenID string `json:"token_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	Type    string `json:"type"`
}

type polymarketOrderResponse struct {
	OrderID string `json:"orderID"`
	Success bool   `json:"success"`
}

// strconvFloat unmarshals a JSON field that may arrive as a string or a
// number, matching the teacher's gammaMarket.Volume24h json.Number idiom.
type strconvFloat float64

func (f *strconvFloat) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = strconvFloat(v)
	return nil
}

// Polymarket implements ports.VenueAdapter against Polymarket's Gamma
// (metadata) and CLOB (books) REST APIs. On-chain order signing and
// settlement are out of scope here (spec.md §1 Non-goals); ExecuteBuy
// submits an already-priced limit order through the CLOB REST surface
// only, trusting the venue's own matching engine.
type Polymarket struct {
	c *httpClient
}

// NewPolymarket wires a Polymarket adapter against the given base URL/key.
func NewPolymarket(baseURL, apiKey string) *Polymarket {
	return &Polymarket{c: newHTTPClient(baseURL, apiKey, polymarketRatePerSec, polymarketBurst)}
}

// Venue identifies this adapter.
func (p *Polymarket) Venue() domain.Venue { return "polymarket" }

// GetMarkets returns every daily-high-temperature contract for a city/date.
func (p *Polymarket) GetMarkets(ctx context.Context, city domain.City, date string) ([]domain.Range, error) {
	station, ok := city.Station(p.Venue())
	if !ok {
		return nil, nil
	}
	slugPrefix := fmt.Sprintf("highest-temperature-in-%s-on-%s", station, date)

	var resp polymarketMarketsResponse
	if err := p.c.get(ctx, "/markets?slug_prefix="+slugPrefix, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.GetMarkets: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}

	var tokenIDs []string
	for _, m := range resp {
		for _, t := range m.Tokens {
			if t.Outcome == "Yes" {
				tokenIDs = append(tokenIDs, t.TokenID)
			}
		}
	}
	books, err := p.fetchBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("polymarket.GetMarkets: fetch books: %w", err)
	}

	ranges := make([]domain.Range, 0, len(resp))
	for _, m := range resp {
		yesToken := yesTokenID(m)
		ranges = append(ranges, mapPolymarketMarket(m, yesToken, city, date, books[yesToken]))
	}
	return ranges, nil
}

func (p *Polymarket) fetchBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	out := make(map[string]domain.OrderBook, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		var resp polymarketOrderBookResponse
		if err := p.c.get(ctx, "/book?token_id="+tokenID, &resp); err != nil {
			continue
		}
		out[tokenID] = mapPolymarketBook(tokenID, resp)
	}
	return out, nil
}

// GetPrice returns a point-in-time quote for one token, or nil if the
// market has no live book.
func (p *Polymarket) GetPrice(ctx context.Context, marketID, tokenID string) (*ports.PriceQuote, error) {
	var resp polymarketOrderBookResponse
	if err := p.c.get(ctx, "/book?token_id="+tokenID, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.GetPrice: %w", err)
	}
	book := mapPolymarketBook(tokenID, resp)
	if book.BestBid() == 0 || book.BestAsk() == 0 {
		return nil, nil
	}
	return &ports.PriceQuote{Bid: book.BestBid(), Ask: book.BestAsk(), Spread: book.Spread()}, nil
}

// ExecuteBuy submits a marketable limit buy at price for shares contracts.
func (p *Polymarket) ExecuteBuy(ctx context.Context, opp domain.Opportunity, shares int64, price float64) (*ports.ExecutionRecord, error) {
	req := polymarketOrderRequest{
		TokenID: opp.Range.TokenID,
		Price:   strconv.FormatFloat(price, 'f', 4, 64),
		Size:    strconv.FormatInt(shares, 10),
		Side:    "BUY",
		Type:    "FOK",
	}
	var resp polymarketOrderResponse
	if err := p.c.post(ctx, "/order", req, &resp); err != nil {
		return nil, fmt.Errorf("polymarket.ExecuteBuy: %w", err)
	}
	return &ports.ExecutionRecord{
		OrderID: resp.OrderID, FilledShares: shares, FilledPrice: price, At: time.Now(),
	}, nil
}

// GetEntryFee: Polymarket charges no venue fee on weather markets (spec §6
// venue-fee note, the second of the two named venues).
func (p *Polymarket) GetEntryFee(askPrice float64) float64 { return 0 }

func yesTokenID(m polymarketGammaMarket) string {
	for _, t := range m.Tokens {
		if t.Outcome == "Yes" {
			return t.TokenID
		}
	}
	return ""
}

func mapPolymarketMarket(m polymarketGammaMarket, tokenID string, city domain.City, date string, book domain.OrderBook) domain.Range {
	r := domain.Range{
		Venue: "polymarket", MarketID: m.ConditionID, TokenID: tokenID,
		City: city.Key, Date: date, Name: m.Question,
		Unit: domain.UnitFahrenheit, Volume: float64(m.Volume24h), Book: book,
	}
	floor, floorErr := strconv.ParseFloat(m.FloorStrike, 64)
	ceiling, ceilingErr := strconv.ParseFloat(m.CapStrike, 64)
	switch m.StrikeType {
	case "greater":
		if floorErr == nil {
			r.Min = &floor
		}
		r.Type = domain.RangeUnboundedUpper
	case "less":
		if ceilingErr == nil {
			r.Max = &ceiling
		}
		r.Type = domain.RangeUnboundedLower
	default:
		if floorErr == nil {
			r.Min = &floor
		}
		if ceilingErr == nil {
			r.Max = &ceiling
		}
		r.Type = domain.RangeBounded
	}
	return r
}

func mapPolymarketBook(tokenID string, resp polymarketOrderBookResponse) domain.OrderBook {
	book := domain.OrderBook{TokenID: tokenID}
	book.Bids = mapPolymarketEntries(resp.Bids, true)
	book.Asks = mapPolymarketEntries(resp.Asks, false)
	return book
}

// mapPolymarketEntries parses string price/size pairs and sorts bids
// highest-first, asks lowest-first (the teacher's mapping.go convention).
func mapPolymarketEntries(raw []polymarketBookEntry, descending bool) []domain.BookEntry {
	out := make([]domain.BookEntry, 0, len(raw))
	for _, e := range raw {
		price, err := strconv.ParseFloat(e.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(e.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.BookEntry{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
