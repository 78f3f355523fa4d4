package conn

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twsgo/internal/codec"
	"twsgo/internal/gatewaysim"
	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func startGateway(t *testing.T, cfg gatewaysim.Config) *gatewaysim.Gateway {
	t.Helper()
	g, err := gatewaysim.Start("127.0.0.1:0", cfg)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func TestConnectHandshake(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{ServerVersion: 176, NextOrderID: 37})
	host, port := splitAddr(t, g.Addr())

	events := make(chan schema.Event, 16)
	m, err := NewManager(Config{
		Host:     host,
		Port:     port,
		ClientID: 7,
		OnEvent:  func(ev schema.Event) { events <- ev },
	})
	require.NoError(t, err)

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 176, m.ServerVersion())

	// session bootstrap arrives in order
	select {
	case ev := <-events:
		next, ok := ev.(schema.NextValidID)
		require.True(t, ok, "expected NextValidID, got %T", ev)
		assert.Equal(t, schema.OrderID(37), next.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no bootstrap event")
	}
	select {
	case ev := <-events:
		_, ok := ev.(schema.ManagedAccounts)
		require.True(t, ok, "expected ManagedAccounts, got %T", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no managed accounts event")
	}
}

func TestConnectRefused(t *testing.T) {
	m, err := NewManager(Config{Host: "127.0.0.1", Port: 1, ClientID: 1, ConnectTimeout: time.Second})
	require.NoError(t, err)
	err = m.Connect(context.Background())
	assert.ErrorIs(t, err, exception.ErrConnectionRefused)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestDoubleConnectRejected(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{})
	host, port := splitAddr(t, g.Addr())

	m, err := NewManager(Config{Host: host, Port: port, ClientID: 1})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	assert.ErrorIs(t, m.Connect(context.Background()), exception.ErrAlreadyConnected)
}

func TestSendBeforeConnect(t *testing.T) {
	m, err := NewManager(Config{Host: "127.0.0.1", Port: 4002, ClientID: 1})
	require.NoError(t, err)
	err = m.Send(context.Background(), codec.EncodeReqCurrentTime())
	assert.ErrorIs(t, err, exception.ErrNotConnected)
}

func TestCurrentTimeRoundTrip(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{})
	host, port := splitAddr(t, g.Addr())

	times := make(chan schema.CurrentTime, 1)
	m, err := NewManager(Config{
		Host:     host,
		Port:     port,
		ClientID: 1,
		OnEvent: func(ev schema.Event) {
			if ct, ok := ev.(schema.CurrentTime); ok {
				times <- ct
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	require.NoError(t, m.Send(context.Background(), codec.EncodeReqCurrentTime()))
	select {
	case ct := <-times:
		assert.WithinDuration(t, time.Now(), ct.Time, time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("no current time reply")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{})
	host, port := splitAddr(t, g.Addr())

	down := make(chan error, 4)
	up := make(chan bool, 4)
	m, err := NewManager(Config{
		Host:     host,
		Port:     port,
		ClientID: 1,
		Backoff:  Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		OnDown:   func(err error) { down <- err },
		OnUp:     func(reconnect bool) { up <- reconnect },
	})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	select {
	case reconnect := <-up:
		require.False(t, reconnect)
	case <-time.After(2 * time.Second):
		t.Fatal("initial OnUp missing")
	}

	g.DropSessions()

	select {
	case err := <-down:
		assert.ErrorIs(t, err, exception.ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("OnDown missing after drop")
	}
	select {
	case reconnect := <-up:
		assert.True(t, reconnect, "recovery must report reconnect=true")
	case <-time.After(5 * time.Second):
		t.Fatal("session did not recover")
	}
	assert.Equal(t, StateConnected, m.State())
}

func TestReconnectExhausted(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{})
	host, port := splitAddr(t, g.Addr())

	down := make(chan error, 8)
	m, err := NewManager(Config{
		Host:                 host,
		Port:                 port,
		ClientID:             1,
		Backoff:              Backoff{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond},
		MaxReconnectAttempts: 2,
		OnDown:               func(err error) { down <- err },
	})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	// kill the gateway entirely so every retry fails
	g.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-down:
			if exhausted(err) {
				assert.Equal(t, StateDisconnected, m.State())
				return
			}
		case <-deadline:
			t.Fatal("reconnect never gave up")
		}
	}
}

func exhausted(err error) bool {
	return errors.Is(err, exception.ErrReconnectExhausted)
}

func TestDisconnectStopsSession(t *testing.T) {
	g := startGateway(t, gatewaysim.Config{})
	host, port := splitAddr(t, g.Addr())

	m, err := NewManager(Config{Host: host, Port: port, ClientID: 1})
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Disconnect())
	assert.Equal(t, StateDisconnected, m.State())
	assert.ErrorIs(t, m.Send(context.Background(), codec.EncodeReqCurrentTime()), exception.ErrNotConnected)
}

func TestBackoffGrowth(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))
}

func TestDrainCorruptionThreshold(t *testing.T) {
	m := &Manager{}
	decoder := codec.NewDecoder()

	payload := []byte("999\x00")
	bad := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(bad, uint32(len(payload)))
	copy(bad[4:], payload)

	for i := 0; i < maxDecodeFailures-1; i++ {
		decoder.Feed(bad)
		require.True(t, m.drain(decoder))
	}
	decoder.Feed(bad)
	require.False(t, m.drain(decoder))

	// a decodable frame resets the streak
	m.decodeFails = 0
	decoder.Feed(codec.EncodeCurrentTime(schema.CurrentTime{Time: time.Now()}))
	require.True(t, m.drain(decoder))
	require.Zero(t, m.decodeFails)
}
