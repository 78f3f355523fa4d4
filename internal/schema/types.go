package schema

import "github.com/shopspring/decimal"

// RequestID identifies an outstanding request within one session.
// IDs are monotonically increasing and never reused while the session lives.
type RequestID int64

// OrderID identifies an order. Order ids share the RequestID space so that
// a status event can always be routed by a single id.
type OrderID int64

// ClientID identifies this API client to the gateway. The (host, port,
// clientId) triple must be unique per logical trading session.
type ClientID int64

// UnsetParent marks an order without a parent.
const UnsetParent OrderID = 0

// OrderAction describes order direction.
type OrderAction string

const (
	ActionBuy       OrderAction = "BUY"
	ActionSell      OrderAction = "SELL"
	ActionSellShort OrderAction = "SSHORT"
)

// OrderType describes the order type on the wire.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MKT"
	OrderTypeLimit     OrderType = "LMT"
	OrderTypeStop      OrderType = "STP"
	OrderTypeStopLimit OrderType = "STP LMT"
	OrderTypeTrail     OrderType = "TRAIL"
)

// TimeInForce describes how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OCAType controls how the gateway treats the remaining members of a
// one-cancels-all group when one of them executes.
type OCAType int

const (
	OCACancelWithBlock OCAType = 1
	OCAReduceWithBlock OCAType = 2
	OCAReduceNonBlock  OCAType = 3
)

// Contract describes the instrument an order or subscription refers to.
type Contract struct {
	Symbol          string
	SecType         string
	Exchange        string
	PrimaryExchange string
	Currency        string
	Expiry          string
	Strike          decimal.Decimal
	Right           string
	LocalSymbol     string
}

// Stock builds a SMART-routed US stock contract.
func Stock(symbol string) Contract {
	return Contract{
		Symbol:   symbol,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}

// Order carries the client-side order definition sent to the gateway.
// Lifecycle state lives in the order manager, not here.
type Order struct {
	OrderID     OrderID
	ParentID    OrderID
	Contract    Contract
	Action      OrderAction
	Type        OrderType
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	AuxPrice    decimal.Decimal
	TIF         TimeInForce
	OCAGroup    string
	OCAType     OCAType
	Account     string
	Transmit    bool
	TakeProfit  decimal.Decimal
	StopLoss    decimal.Decimal
}

// HasBracket reports whether the order declares take-profit or stop-loss
// child prices.
func (o Order) HasBracket() bool {
	return !o.TakeProfit.IsZero() || !o.StopLoss.IsZero()
}
