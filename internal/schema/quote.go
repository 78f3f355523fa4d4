package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is an immutable market data snapshot. Superseding data produces a
// new Quote; existing instances are never mutated.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	LastPrice decimal.Decimal
	LastSize  decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Tick      TickType
	EventTime time.Time
	Arrival   time.Time
}

// Apply folds a tick into a copy of the quote and returns the copy.
func (q Quote) Apply(tick TickType, price, size decimal.Decimal, arrival time.Time) Quote {
	next := q
	next.Tick = tick
	next.Arrival = arrival
	switch tick {
	case TickBid:
		next.BidPrice = price
		if !size.IsZero() {
			next.BidSize = size
		}
	case TickAsk:
		next.AskPrice = price
		if !size.IsZero() {
			next.AskSize = size
		}
	case TickLast:
		next.LastPrice = price
		if !size.IsZero() {
			next.LastSize = size
		}
	case TickBidSize:
		next.BidSize = size
	case TickAskSize:
		next.AskSize = size
	case TickLastSize:
		next.LastSize = size
	case TickOpen:
		next.Open = price
	case TickHigh:
		next.High = price
	case TickLow:
		next.Low = price
	case TickClose:
		next.Close = price
	case TickVolume:
		next.Volume = size
	}
	return next
}
