package codec

import (
	"strconv"

	"github.com/yanun0323/errors"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// Encode functions are pure: they validate the request, serialize it and
// return wire bytes. Nothing is sent here.

// EncodeHandshake builds the connection preamble: the API prefix followed
// by the supported client version range.
func EncodeHandshake() []byte {
	versions := "v" + strconv.Itoa(minClientVersion) + ".." + strconv.Itoa(maxClientVersion)
	framed := Frame([]byte(versions))
	out := make([]byte, 0, len(apiPrefix)+len(framed))
	out = append(out, apiPrefix...)
	out = append(out, framed...)
	return out
}

// EncodeStartAPI builds the StartAPI message that completes the handshake.
func EncodeStartAPI(clientID schema.ClientID) []byte {
	w := newWriter(msgStartAPI)
	w.addInt(2) // message version
	w.addInt(int64(clientID))
	w.addStr("") // optional capabilities
	return w.frame()
}

// EncodePlaceOrder serializes a place-order request. A non-market order
// without a limit price, or a stop order without a stop price, is a local
// encoding error and is never sent.
func EncodePlaceOrder(order schema.Order) ([]byte, error) {
	if order.OrderID <= 0 {
		return nil, errors.Wrap(exception.ErrMissingField, "order id")
	}
	if order.Contract.Symbol == "" {
		return nil, errors.Wrap(exception.ErrMissingField, "contract symbol")
	}
	if order.Action == "" {
		return nil, errors.Wrap(exception.ErrMissingField, "order action")
	}
	if order.Quantity.Sign() <= 0 {
		return nil, errors.Wrap(exception.ErrMissingField, "order quantity")
	}
	switch order.Type {
	case schema.OrderTypeLimit, schema.OrderTypeStopLimit:
		if order.LimitPrice.IsZero() {
			return nil, errors.Wrapf(exception.ErrMissingField, "limit price for %s order", order.Type)
		}
	}
	switch order.Type {
	case schema.OrderTypeStop, schema.OrderTypeStopLimit, schema.OrderTypeTrail:
		if order.AuxPrice.IsZero() {
			return nil, errors.Wrapf(exception.ErrMissingField, "aux price for %s order", order.Type)
		}
	}

	w := newWriter(msgPlaceOrder)
	w.addInt(45) // message version
	w.addInt(int64(order.OrderID))
	writeContract(w, order.Contract)
	w.addStr(string(order.Action))
	w.addDecimal(order.Quantity)
	w.addStr(string(order.Type))
	w.addDecimal(order.LimitPrice)
	w.addDecimal(order.AuxPrice)
	w.addStr(string(order.TIF))
	w.addStr(order.OCAGroup)
	w.addInt(int64(order.OCAType))
	w.addInt(int64(order.ParentID))
	w.addBool(order.Transmit)
	w.addStr(order.Account)
	return w.frame(), nil
}

// EncodeCancelOrder serializes an order cancellation.
func EncodeCancelOrder(orderID schema.OrderID) ([]byte, error) {
	if orderID <= 0 {
		return nil, errors.Wrap(exception.ErrMissingField, "order id")
	}
	w := newWriter(msgCancelOrder)
	w.addInt(1)
	w.addInt(int64(orderID))
	return w.frame(), nil
}

// EncodeReqMktData serializes a streaming market data subscription request.
func EncodeReqMktData(reqID schema.RequestID, contract schema.Contract) ([]byte, error) {
	if reqID <= 0 {
		return nil, errors.Wrap(exception.ErrMissingField, "request id")
	}
	if contract.Symbol == "" {
		return nil, errors.Wrap(exception.ErrMissingField, "contract symbol")
	}
	w := newWriter(msgReqMktData)
	w.addInt(11)
	w.addInt(int64(reqID))
	writeContract(w, contract)
	w.addStr("")    // generic tick list
	w.addBool(false) // snapshot
	return w.frame(), nil
}

// EncodeCancelMktData serializes a market data unsubscribe.
func EncodeCancelMktData(reqID schema.RequestID) ([]byte, error) {
	if reqID <= 0 {
		return nil, errors.Wrap(exception.ErrMissingField, "request id")
	}
	w := newWriter(msgCancelMktData)
	w.addInt(2)
	w.addInt(int64(reqID))
	return w.frame(), nil
}

// EncodeReqCurrentTime serializes a server time request.
func EncodeReqCurrentTime() []byte {
	w := newWriter(msgReqCurrentTime)
	w.addInt(1)
	return w.frame()
}

func writeContract(w *writer, c schema.Contract) {
	w.addStr(c.Symbol)
	w.addStr(c.SecType)
	w.addStr(c.Expiry)
	w.addDecimal(c.Strike)
	w.addStr(c.Right)
	w.addStr(c.Exchange)
	w.addStr(c.PrimaryExchange)
	w.addStr(c.Currency)
	w.addStr(c.LocalSymbol)
}
