package twsgo

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twsgo/internal/conn"
	"twsgo/internal/gatewaysim"
	"twsgo/internal/schema"
)

func startClient(t *testing.T, simCfg gatewaysim.Config, mutate func(*Config)) (*Client, *gatewaysim.Gateway) {
	t.Helper()
	g, err := gatewaysim.Start("127.0.0.1:0", simCfg)
	require.NoError(t, err)
	t.Cleanup(g.Close)

	host, portStr, err := net.SplitHostPort(g.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := Config{
		Host:           host,
		Port:           port,
		ClientID:       1,
		RequestTimeout: 5 * time.Second,
		Backoff:        conn.Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Disconnect() })
	return c, g
}

func TestEndToEndBuyOrder(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{NextOrderID: 100}, nil)

	order := schema.Order{
		Contract:   schema.Stock("GOOG"),
		Action:     schema.ActionBuy,
		Type:       schema.OrderTypeLimit,
		Quantity:   decimal.NewFromInt(100),
		LimitPrice: decimal.NewFromInt(600),
		TIF:        schema.TIFDay,
	}
	id, err := c.PlaceOrder(order, false)
	require.NoError(t, err)

	status, err := c.AwaitOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateFilled, status.Status)
	assert.True(t, status.Filled.Equal(decimal.NewFromInt(100)),
		"filled %s", status.Filled)
	assert.True(t, status.AvgFillPrice.Equal(decimal.RequireFromString("599.5")),
		"avg fill price %s", status.AvgFillPrice)

	tracked, ok := c.Order(id)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStateFilled, tracked.State)
	assert.True(t, tracked.CumQty.Equal(decimal.NewFromInt(100)))
}

func TestCancelOrderEndToEnd(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{FillDelay: time.Hour}, nil)

	order := schema.Order{
		Contract:   schema.Stock("IBM"),
		Action:     schema.ActionSell,
		Type:       schema.OrderTypeLimit,
		Quantity:   decimal.NewFromInt(10),
		LimitPrice: decimal.NewFromInt(250),
		TIF:        schema.TIFDay,
	}
	id, err := c.PlaceOrder(order, false)
	require.NoError(t, err)
	require.NoError(t, c.CancelOrder(id))

	status, err := c.AwaitOrder(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, schema.OrderStateCancelled, status.Status)
}

func TestManagedAccountsSnapshot(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{Accounts: []string{"DU100", "DU200"}}, nil)

	require.Eventually(t, func() bool {
		return len(c.Accounts()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"DU100", "DU200"}, c.Accounts())
}

func TestSubscribeAndPopQuotes(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{TickBurst: 4}, nil)

	id, err := c.Subscribe(context.Background(), schema.Stock("GOOG"), 8)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		quotes, err := c.PopQuotes(id)
		if err != nil {
			return false
		}
		return len(quotes) > 0
	}, 2*time.Second, 10*time.Millisecond)

	flushed, err := c.Unsubscribe(context.Background(), id)
	require.NoError(t, err)
	_ = flushed

	_, err = c.PopQuotes(id)
	assert.Error(t, err, "subscription must be gone after unsubscribe")
}

func TestReconnectResubscribesAllStreams(t *testing.T) {
	c, g := startClient(t, gatewaysim.Config{}, nil)

	_, err := c.Subscribe(context.Background(), schema.Stock("GOOG"), 8)
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), schema.Stock("IBM"), 8)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return g.MktDataRequests() == 2
	}, 2*time.Second, 10*time.Millisecond)

	g.DropSessions()

	// exactly one resubscribe per active stream, no duplicates
	require.Eventually(t, func() bool {
		return g.MktDataRequests() == 4
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 4, g.MktDataRequests())
	assert.Equal(t, conn.StateConnected, c.State())
}

func TestQuoteThresholdCyclesSession(t *testing.T) {
	c, g := startClient(t, gatewaysim.Config{TickBurst: 6}, func(cfg *Config) {
		cfg.ReconnectEvery = 5
	})

	_, err := c.Subscribe(context.Background(), schema.Stock("GOOG"), 32)
	require.NoError(t, err)

	// burst of 6 ticks = 12 quotes crosses the threshold of 5; the
	// session cycles and the subscription comes back
	require.Eventually(t, func() bool {
		return g.MktDataRequests() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReqCurrentTime(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{}, nil)

	ts, err := c.ReqCurrentTime(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestHandlerRegistry(t *testing.T) {
	c, _ := startClient(t, gatewaysim.Config{TickBurst: 3}, nil)

	ticks := make(chan schema.TickPrice, 16)
	hid := c.OnEvent(schema.EventTickPrice, func(ev schema.Event) {
		if tp, ok := ev.(schema.TickPrice); ok {
			ticks <- tp
		}
	})

	_, err := c.Subscribe(context.Background(), schema.Stock("GOOG"), 8)
	require.NoError(t, err)

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}

	c.RemoveHandler(schema.EventTickPrice, hid)
}

func TestAwaitOrderConnectionLost(t *testing.T) {
	c, g := startClient(t, gatewaysim.Config{FillDelay: time.Hour}, func(cfg *Config) {
		cfg.MaxReconnectAttempts = 1
	})

	order := schema.Order{
		Contract:   schema.Stock("GOOG"),
		Action:     schema.ActionBuy,
		Type:       schema.OrderTypeMarket,
		Quantity:   decimal.NewFromInt(1),
		TIF:        schema.TIFDay,
	}
	id, err := c.PlaceOrder(order, false)
	require.NoError(t, err)

	g.Close()

	_, err = c.AwaitOrder(context.Background(), id)
	require.Error(t, err, "waiter must not block through a dead session")
}
