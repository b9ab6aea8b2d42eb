package domain

// BookEntry is a single price level in an order book.
type BookEntry struct {
	Price float64
	Size  float64
}

// OrderBook is the live book for one contract side. Bids are ordered best
// (highest) first; asks are ordered best (lowest) first.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry
	Asks    []BookEntry
}

// BestBid returns the highest bid price, or 0 if the book is empty.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 if the book is empty.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint returns (bid+ask)/2, or 0 if either side is empty.
func (ob OrderBook) Midpoint() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns ask-bid, or 0 if either side is empty.
func (ob OrderBook) Spread() float64 {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Volume is the traded volume a venue reports for a contract; adapters
// populate it from the venue's market data rather than deriving it from
// book depth.
type Volume = float64
