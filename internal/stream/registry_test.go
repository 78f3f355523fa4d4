package stream

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

func tickAt(id schema.RequestID, price string, n int) schema.TickPrice {
	return schema.TickPrice{
		ID:       id,
		Tick:     schema.TickLast,
		Price:    decimal.RequireFromString(price),
		Size:     decimal.NewFromInt(int64(n)),
		Received: time.Unix(int64(1700000000+n), 0),
	}
}

func TestBufferEvictionKeepsLastThree(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Add(1, schema.Stock("IBM"), 3, 0); err != nil {
		t.Fatalf("add: %v", err)
	}

	prices := []string{"10", "11", "12", "13", "14"}
	for i, p := range prices {
		if !r.Offer(tickAt(1, p, i)) {
			t.Fatalf("offer %d rejected", i)
		}
	}

	quotes, err := r.PopAll(1)
	if err != nil {
		t.Fatalf("popall: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}
	for i, want := range []string{"12", "13", "14"} {
		if quotes[i].LastPrice.String() != want {
			t.Fatalf("quote %d: got %s want %s", i, quotes[i].LastPrice, want)
		}
	}
}

func TestPopAllDrains(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Add(1, schema.Stock("IBM"), 8, 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Offer(tickAt(1, "10", 0))

	first, _ := r.PopAll(1)
	if len(first) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(first))
	}
	second, _ := r.PopAll(1)
	if len(second) != 0 {
		t.Fatalf("popall did not drain, got %d", len(second))
	}
}

func TestRemoveFlushesUnread(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Add(2, schema.Stock("GOOG"), 4, 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	r.Offer(tickAt(2, "600", 0))
	r.Offer(tickAt(2, "601", 1))

	flushed, err := r.Remove(2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(flushed) != 2 {
		t.Fatalf("expected 2 flushed quotes, got %d", len(flushed))
	}
	if _, err := r.PopAll(2); !errors.Is(err, exception.ErrUnknownSubscription) {
		t.Fatalf("subscription survived remove")
	}
}

func TestInvalidCapacityRejected(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Add(1, schema.Stock("IBM"), 0, 0); !errors.Is(err, exception.ErrInvalidCapacity) {
		t.Fatalf("capacity 0 accepted: %v", err)
	}
}

func TestUnknownIDDropped(t *testing.T) {
	r := NewRegistry(nil)
	if r.Offer(tickAt(99, "1", 0)) {
		t.Fatalf("unknown id accepted")
	}
}

func TestReconnectThresholdCyclesOnce(t *testing.T) {
	var (
		mu     sync.Mutex
		cycles int
	)
	done := make(chan struct{}, 1)
	r := NewRegistry(func() {
		mu.Lock()
		cycles++
		mu.Unlock()
		done <- struct{}{}
	})
	if err := r.Add(1, schema.Stock("IBM"), 8, 3); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < 3; i++ {
		r.Offer(tickAt(1, "10", i))
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cycle not requested at threshold")
	}

	mu.Lock()
	defer mu.Unlock()
	if cycles != 1 {
		t.Fatalf("expected 1 cycle, got %d", cycles)
	}
}

func TestQuoteFoldsBidAskLast(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Add(1, schema.Stock("IBM"), 8, 0); err != nil {
		t.Fatalf("add: %v", err)
	}
	now := time.Now()
	r.Offer(schema.TickPrice{ID: 1, Tick: schema.TickBid, Price: decimal.RequireFromString("99.5"), Size: decimal.NewFromInt(10), Received: now})
	r.Offer(schema.TickPrice{ID: 1, Tick: schema.TickAsk, Price: decimal.RequireFromString("100.5"), Size: decimal.NewFromInt(12), Received: now})
	r.Offer(schema.TickSize{ID: 1, Tick: schema.TickBidSize, Size: decimal.NewFromInt(25), Received: now})

	quotes, _ := r.PopAll(1)
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}
	last := quotes[2]
	if last.BidPrice.String() != "99.5" || last.AskPrice.String() != "100.5" {
		t.Fatalf("fold mismatch: %+v", last)
	}
	if last.BidSize.String() != "25" {
		t.Fatalf("bid size not updated: %+v", last)
	}
}
