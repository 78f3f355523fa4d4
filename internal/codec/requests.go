package codec

import (
	"github.com/yanun0323/errors"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// Gateway-side request decoding, the mirror of the Encode* functions.
// Production clients never parse these; they exist for the simulated
// gateway and for codec round-trip tests.

// Request is a decoded client message.
type Request interface {
	request()
}

// StartAPIReq completes the handshake.
type StartAPIReq struct {
	ClientID schema.ClientID
}

// PlaceOrderReq submits or modifies an order.
type PlaceOrderReq struct {
	Order schema.Order
}

// CancelOrderReq cancels a working order.
type CancelOrderReq struct {
	OrderID schema.OrderID
}

// MktDataReq opens a streaming market data subscription.
type MktDataReq struct {
	ID       schema.RequestID
	Contract schema.Contract
}

// CancelMktDataReq closes a market data subscription.
type CancelMktDataReq struct {
	ID schema.RequestID
}

// CurrentTimeReq asks for the server clock.
type CurrentTimeReq struct{}

func (StartAPIReq) request()      {}
func (PlaceOrderReq) request()    {}
func (CancelOrderReq) request()   {}
func (MktDataReq) request()       {}
func (CancelMktDataReq) request() {}
func (CurrentTimeReq) request()   {}

// DecodeRequest parses one client frame payload.
func DecodeRequest(payload []byte) (Request, error) {
	r := newReader(payload)
	msgID := r.int64()
	if err := r.Err(); err != nil {
		return nil, err
	}
	switch msgID {
	case msgStartAPI:
		return decodeStartAPI(r)
	case msgPlaceOrder:
		return decodePlaceOrder(r)
	case msgCancelOrder:
		return decodeCancelOrder(r)
	case msgReqMktData:
		return decodeReqMktData(r)
	case msgCancelMktData:
		return decodeCancelMktData(r)
	case msgReqCurrentTime:
		return CurrentTimeReq{}, nil
	default:
		return nil, errors.Wrapf(exception.ErrUnknownMessage, "request id %d", msgID)
	}
}

func decodeStartAPI(r *reader) (Request, error) {
	_ = r.int64() // message version
	req := StartAPIReq{ClientID: schema.ClientID(r.int64())}
	_ = r.str() // optional capabilities
	return req, r.Err()
}

func decodePlaceOrder(r *reader) (Request, error) {
	_ = r.int64()
	order := schema.Order{OrderID: schema.OrderID(r.int64())}
	order.Contract = readContract(r)
	order.Action = schema.OrderAction(r.str())
	order.Quantity = r.decimal()
	order.Type = schema.OrderType(r.str())
	order.LimitPrice = r.decimal()
	order.AuxPrice = r.decimal()
	order.TIF = schema.TimeInForce(r.str())
	order.OCAGroup = r.str()
	order.OCAType = schema.OCAType(r.int64())
	order.ParentID = schema.OrderID(r.int64())
	order.Transmit = r.int64() != 0
	order.Account = r.str()
	return PlaceOrderReq{Order: order}, r.Err()
}

func decodeCancelOrder(r *reader) (Request, error) {
	_ = r.int64()
	req := CancelOrderReq{OrderID: schema.OrderID(r.int64())}
	return req, r.Err()
}

func decodeReqMktData(r *reader) (Request, error) {
	_ = r.int64()
	req := MktDataReq{ID: schema.RequestID(r.int64())}
	req.Contract = readContract(r)
	_ = r.str()   // generic tick list
	_ = r.int64() // snapshot
	return req, r.Err()
}

func decodeCancelMktData(r *reader) (Request, error) {
	_ = r.int64()
	req := CancelMktDataReq{ID: schema.RequestID(r.int64())}
	return req, r.Err()
}

func readContract(r *reader) schema.Contract {
	return schema.Contract{
		Symbol:          r.str(),
		SecType:         r.str(),
		Expiry:          r.str(),
		Strike:          r.decimal(),
		Right:           r.str(),
		Exchange:        r.str(),
		PrimaryExchange: r.str(),
		Currency:        r.str(),
		LocalSymbol:     r.str(),
	}
}
