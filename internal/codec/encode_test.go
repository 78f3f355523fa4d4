package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

func limitOrder(id schema.OrderID) schema.Order {
	return schema.Order{
		OrderID:  id,
		Contract: schema.Stock("GOOG"),
		Action:   schema.ActionBuy,
		Type:     schema.OrderTypeLimit,
		Quantity: decimal.NewFromInt(100),
		LimitPrice: decimal.NewFromInt(600),
		TIF:      schema.TIFDay,
		Transmit: true,
	}
}

func TestEncodePlaceOrderRequiresLimitPrice(t *testing.T) {
	order := limitOrder(1)
	order.LimitPrice = decimal.Zero

	_, err := EncodePlaceOrder(order)
	if !errors.Is(err, exception.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestEncodePlaceOrderRequiresStopPrice(t *testing.T) {
	order := limitOrder(1)
	order.Type = schema.OrderTypeStop
	order.LimitPrice = decimal.Zero

	_, err := EncodePlaceOrder(order)
	if !errors.Is(err, exception.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestEncodeMarketOrderWithoutPrices(t *testing.T) {
	order := limitOrder(3)
	order.Type = schema.OrderTypeMarket
	order.LimitPrice = decimal.Zero

	frame, err := EncodePlaceOrder(order)
	if err != nil {
		t.Fatalf("market order should not need prices: %v", err)
	}
	if len(frame) <= 4 {
		t.Fatalf("empty frame")
	}
}

func TestEncodePlaceOrderFrameShape(t *testing.T) {
	frame, err := EncodePlaceOrder(limitOrder(12))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	payload := frame[4:]
	if !bytes.HasPrefix(payload, []byte("3\x00")) {
		t.Fatalf("payload does not start with place-order id: %q", payload[:8])
	}
	if !bytes.Contains(payload, []byte("GOOG\x00")) || !bytes.Contains(payload, []byte("BUY\x00")) {
		t.Fatalf("payload missing symbol or action: %q", payload)
	}
}

func TestEncodeReqMktDataValidation(t *testing.T) {
	if _, err := EncodeReqMktData(0, schema.Stock("IBM")); !errors.Is(err, exception.ErrMissingField) {
		t.Fatalf("zero request id accepted")
	}
	if _, err := EncodeReqMktData(1, schema.Contract{}); !errors.Is(err, exception.ErrMissingField) {
		t.Fatalf("empty contract accepted")
	}
	if _, err := EncodeReqMktData(1, schema.Stock("IBM")); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestEncodeHandshakePrefix(t *testing.T) {
	hs := EncodeHandshake()
	if !bytes.HasPrefix(hs, []byte("API\x00")) {
		t.Fatalf("handshake missing API prefix: %q", hs[:8])
	}
}
