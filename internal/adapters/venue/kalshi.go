package venue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
)

const (
	kalshiRatePerSec = 10
	kalshiBurst      = 5
	kalshiFeeRateBps = 700 // 0.07 * p * (1-p) per contract, per spec's venue-fee note
)

// kalshiMarket is one row of GET /markets.
type kalshiMarket struct {
	Ticker        string  `json:"ticker"`
	EventTicker   string  `json:"event_ticker"`
	Title         string  `json:"title"`
	YesSubTitle   string  `json:"yes_sub_title"`
	StrikeType    string  `json:"strike_type"` // "less", "greater", "between"
	FloorStrike   float64 `json:"floor_strike"`
	CapStrike     float64 `json:"cap_strike"`
	Volume        float64 `json:"volume"`
	CloseTime     string  `json:"close_time"`
}

type kalshiMarketsResponse struct {
	Markets []kalshiMarket `json:"markets"`
}

type kalshiOrderBookResponse struct {
	Orderbook struct {
		Yes [][2]float64 `json:"yes"` // [price_cents, size]
		No  [][2]float64 `json:"no"`
	} `json:"orderbook"`
}

type kalshiOrderRequest struct {
	Ticker     string `json:"ticker"`
	ClientID   string `json:"client_order_id"`
	Side       string `json:"side"`
	Action     string `json:"action"`
	Count      int64  `json:"count"`
	Type       string `json:"type"`
	PriceCents int    `json:"yes_price"`
}

type kalshiOrderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
	} `json:"order"`
}

// Kalshi implements ports.VenueAdapter against Kalshi's trade API.
type Kalshi struct {
	c *httpClient
}

// NewKalshi wires a Kalshi adapter against the given base URL/API key.
func NewKalshi(baseURL, apiKey string) *Kalshi {
	return &Kalshi{c: newHTTPClient(baseURL, apiKey, kalshiRatePerSec, kalshiBurst)}
}

// Venue identifies this adapter.
func (k *Kalshi) Venue() domain.Venue { return "kalshi" }

// GetMarkets returns every daily-high-temperature contract for a city/date.
// Kalshi's event ticker convention groups same-day ranges under one event;
// the station for this city/venue is used to build the query.
func (k *Kalshi) GetMarkets(ctx context.Context, city domain.City, date string) ([]domain.Range, error) {
	station, ok := city.Station(k.Venue())
	if !ok {
		return nil, nil
	}
	eventTicker := fmt.Sprintf("KXHIGH%s-%s", station, compactDate(date))

	var resp kalshiMarketsResponse
	if err := k.c.get(ctx, fmt.Sprintf("/trade-api/v2/markets?event_ticker=%s&status=open", eventTicker), &resp); err != nil {
		return nil, fmt.Errorf("kalshi.GetMarkets: %w", err)
	}
	if len(resp.Markets) == 0 {
		return nil, nil
	}

	tokenIDs := make([]string, len(resp.Markets))
	for i, m := range resp.Markets {
		tokenIDs[i] = m.Ticker
	}
	books, err := k.fetchBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("kalshi.GetMarkets: fetch books: %w", err)
	}

	ranges := make([]domain.Range, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		ranges = append(ranges, mapKalshiMarket(m, city, date, books[m.Ticker]))
	}
	return ranges, nil
}

func (k *Kalshi) fetchBooks(ctx context.Context, tickers []string) (map[string]domain.OrderBook, error) {
	out := make(map[string]domain.OrderBook, len(tickers))
	for _, ticker := range tickers {
		var resp kalshiOrderBookResponse
		if err := k.c.get(ctx, "/trade-api/v2/markets/"+ticker+"/orderbook", &resp); err != nil {
			continue // one market's book failing shouldn't sink the whole cycle
		}
		out[ticker] = mapKalshiBook(ticker, resp)
	}
	return out, nil
}

// GetPrice returns a point-in-time quote for one token, or nil if the
// market has no live book.
func (k *Kalshi) GetPrice(ctx context.Context, marketID, tokenID string) (*ports.PriceQuote, error) {
	var resp kalshiOrderBookResponse
	if err := k.c.get(ctx, "/trade-api/v2/markets/"+tokenID+"/orderbook", &resp); err != nil {
		return nil, fmt.Errorf("kalshi.GetPrice: %w", err)
	}
	book := mapKalshiBook(tokenID, resp)
	if book.BestBid() == 0 || book.BestAsk() == 0 {
		return nil, nil
	}
	return &ports.PriceQuote{Bid: book.BestBid(), Ask: book.BestAsk(), Spread: book.Spread()}, nil
}

// ExecuteBuy places a limit order at price for shares contracts.
func (k *Kalshi) ExecuteBuy(ctx context.Context, opp domain.Opportunity, shares int64, price float64) (*ports.ExecutionRecord, error) {
	side := "yes"
	if opp.Side == domain.SideNo {
		side = "no"
	}
	req := kalshiOrderRequest{
		Ticker:     opp.Range.TokenID,
		ClientID:   opp.ID,
		Side:       side,
		Action:     "buy",
		Count:      shares,
		Type:       "limit",
		PriceCents: int(price*100 + 0.5),
	}
	var resp kalshiOrderResponse
	if err := k.c.post(ctx, "/trade-api/v2/portfolio/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("kalshi.ExecuteBuy: %w", err)
	}
	return &ports.ExecutionRecord{
		OrderID: resp.Order.OrderID, FilledShares: shares, FilledPrice: price, At: time.Now(),
	}, nil
}

// GetEntryFee returns Kalshi's per-contract trading fee: 0.07*p*(1-p),
// rounded up to the nearest cent (spec §6 venue-fee note).
func (k *Kalshi) GetEntryFee(askPrice float64) float64 {
	fee := float64(kalshiFeeRateBps) / 10000 * askPrice * (1 - askPrice)
	return math.Ceil(fee*100) / 100
}

func mapKalshiMarket(m kalshiMarket, city domain.City, date string, book domain.OrderBook) domain.Range {
	r := domain.Range{
		Venue: "kalshi", MarketID: m.EventTicker, TokenID: m.Ticker,
		City: city.Key, Date: date, Name: m.YesSubTitle,
		Unit: domain.UnitFahrenheit, Volume: m.Volume, Book: book,
	}
	switch m.StrikeType {
	case "greater":
		min := m.FloorStrike
		r.Min = &min
		r.Type = domain.RangeUnboundedUpper
	case "less":
		max := m.CapStrike
		r.Max = &max
		r.Type = domain.RangeUnboundedLower
	default:
		min, max := m.FloorStrike, m.CapStrike
		r.Min, r.Max = &min, &max
		r.Type = domain.RangeBounded
	}
	return r
}

func mapKalshiBook(tokenID string, resp kalshiOrderBookResponse) domain.OrderBook {
	book := domain.OrderBook{TokenID: tokenID}
	for _, lvl := range resp.Orderbook.Yes {
		book.Bids = append(book.Bids, domain.BookEntry{Price: lvl[0] / 100, Size: lvl[1]})
	}
	for _, lvl := range resp.Orderbook.No {
		// A NO bid at price p is a YES ask at 1-p.
		book.Asks = append(book.Asks, domain.BookEntry{Price: 1 - lvl[0]/100, Size: lvl[1]})
	}
	return book
}

func compactDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("06Jan02")
}
