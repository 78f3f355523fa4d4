package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind categorizes decoded inbound messages.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventTickPrice
	EventTickSize
	EventOrderStatus
	EventErrMsg
	EventNextValidID
	EventManagedAccounts
	EventExecDetails
	EventCurrentTime
)

// Event is a decoded inbound message from the gateway. ReqID is the id the
// event should be routed by; order events route by their OrderID.
type Event interface {
	Kind() EventKind
	ReqID() RequestID
}

// TickType identifies the field a tick updates, matching the gateway's
// numeric tick ids.
type TickType int

const (
	TickBid       TickType = 1
	TickAsk       TickType = 2
	TickLast      TickType = 4
	TickHigh      TickType = 6
	TickLow       TickType = 7
	TickVolume    TickType = 8
	TickClose     TickType = 9
	TickOpen      TickType = 14
	TickBidSize   TickType = 0
	TickAskSize   TickType = 3
	TickLastSize  TickType = 5
)

// TickPrice reports a price tick for a market data subscription.
type TickPrice struct {
	ID       RequestID
	Tick     TickType
	Price    decimal.Decimal
	Size     decimal.Decimal
	Received time.Time
}

func (TickPrice) Kind() EventKind    { return EventTickPrice }
func (e TickPrice) ReqID() RequestID { return e.ID }

// TickSize reports a size-only tick for a market data subscription.
type TickSize struct {
	ID       RequestID
	Tick     TickType
	Size     decimal.Decimal
	Received time.Time
}

func (TickSize) Kind() EventKind    { return EventTickSize }
func (e TickSize) ReqID() RequestID { return e.ID }

// OrderStatus is the gateway's view of an order at a point in time.
type OrderStatus struct {
	OrderID       OrderID
	Status        OrderState
	Filled        decimal.Decimal
	Remaining     decimal.Decimal
	AvgFillPrice  decimal.Decimal
	LastFillPrice decimal.Decimal
	ParentID      OrderID
	WhyHeld       string
}

func (OrderStatus) Kind() EventKind    { return EventOrderStatus }
func (e OrderStatus) ReqID() RequestID { return RequestID(e.OrderID) }

// ExecDetails reports a single execution against an order.
type ExecDetails struct {
	ID       RequestID
	OrderID  OrderID
	ExecID   string
	Time     time.Time
	Side     string
	Shares   decimal.Decimal
	Price    decimal.Decimal
	CumQty   decimal.Decimal
	AvgPrice decimal.Decimal
}

func (ExecDetails) Kind() EventKind    { return EventExecDetails }
func (e ExecDetails) ReqID() RequestID { return RequestID(e.OrderID) }

// ErrMsg is an error or notice from the gateway. ID is -1 for messages not
// tied to a request.
type ErrMsg struct {
	ID   RequestID
	Code int
	Msg  string
}

func (ErrMsg) Kind() EventKind    { return EventErrMsg }
func (e ErrMsg) ReqID() RequestID { return e.ID }

// IsWarning reports whether the code is in the gateway's notice range
// rather than a hard error.
func (e ErrMsg) IsWarning() bool {
	return e.Code >= 2100 && e.Code < 2200
}

// NextValidID announces the next order id the client may use.
type NextValidID struct {
	ID OrderID
}

func (NextValidID) Kind() EventKind    { return EventNextValidID }
func (e NextValidID) ReqID() RequestID { return RequestID(e.ID) }

// ManagedAccounts lists the account codes this session controls.
type ManagedAccounts struct {
	Accounts []string
}

func (ManagedAccounts) Kind() EventKind  { return EventManagedAccounts }
func (ManagedAccounts) ReqID() RequestID { return -1 }

// CurrentTime answers a server time request; doubles as the heartbeat reply.
type CurrentTime struct {
	Time time.Time
}

func (CurrentTime) Kind() EventKind  { return EventCurrentTime }
func (CurrentTime) ReqID() RequestID { return -1 }
