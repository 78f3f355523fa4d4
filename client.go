package twsgo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"twsgo/internal/codec"
	"twsgo/internal/conn"
	"twsgo/internal/correlator"
	"twsgo/internal/orders"
	"twsgo/internal/schema"
	"twsgo/internal/store"
	"twsgo/internal/stream"
	"twsgo/pkg/exception"
)

// Config defines a Client.
type Config struct {
	Host     string
	Port     int
	ClientID schema.ClientID

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	HeartbeatEvery time.Duration

	Backoff              conn.Backoff
	MaxReconnectAttempts int
	RateLimit            float64

	// Per-subscription quote buffer capacity used when Subscribe is
	// called with capacity 0.
	QuoteBufferCapacity int
	// ReconnectEvery cycles the session after this many received quotes
	// process-wide. Zero disables the workaround.
	ReconnectEvery uint64

	// Store receives order activity when set. Nil disables persistence.
	Store *store.Store
}

// Client is the trading gateway client: one session, one id space, typed
// operations over the wire protocol.
type Client struct {
	cfg       Config
	sessionID string

	conn    *conn.Manager
	corr    *correlator.Correlator
	orders  *orders.Manager
	streams *stream.Registry

	handlers handlerRegistry

	mu       sync.Mutex
	accounts []string
	timeCh   chan time.Time
}

// New builds a client. It does not connect.
func New(cfg Config) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.QuoteBufferCapacity <= 0 {
		cfg.QuoteBufferCapacity = 256
	}

	c := &Client{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		corr:      correlator.New(),
	}
	c.streams = stream.NewRegistry(c.cycleSession)
	c.orders = orders.NewManager(wireSender{c}, c.nextOrderID, c.onOrderTerminal)

	manager, err := conn.NewManager(conn.Config{
		Host:                 cfg.Host,
		Port:                 cfg.Port,
		ClientID:             cfg.ClientID,
		ConnectTimeout:       cfg.ConnectTimeout,
		HeartbeatEvery:       cfg.HeartbeatEvery,
		Backoff:              cfg.Backoff,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		RateLimit:            rate.Limit(cfg.RateLimit),
		OnEvent:              c.dispatch,
		OnUp:                 c.onUp,
		OnDown:               c.onDown,
	})
	if err != nil {
		return nil, err
	}
	c.conn = manager
	return c, nil
}

// Connect dials the gateway and completes the handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Disconnect tears the session down.
func (c *Client) Disconnect() error {
	return c.conn.Disconnect()
}

// State reports the connection lifecycle state.
func (c *Client) State() conn.State {
	return c.conn.State()
}

// Accounts returns the managed accounts announced at connect.
func (c *Client) Accounts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.accounts...)
}

// PlaceOrder submits an order. hold=true stages it locally until
// Transmit. The returned id is also the key for AwaitOrder.
func (c *Client) PlaceOrder(order schema.Order, hold bool) (schema.OrderID, error) {
	if order.OrderID == 0 {
		order.OrderID = c.nextOrderID()
	}
	// register the terminal waiter before anything hits the wire
	if err := c.corr.Expect(schema.RequestID(order.OrderID)); err != nil && !errors.Is(err, exception.ErrDuplicateRequest) {
		return 0, err
	}

	id, err := c.orders.Submit(order, hold)
	if err != nil {
		return 0, err
	}
	if err := c.cfg.Store.RecordOrder(c.sessionID, order); err != nil {
		logs.Errorf("record order %d: %+v", id, err)
	}
	return id, nil
}

// Transmit releases a held order.
func (c *Client) Transmit(id schema.OrderID) error {
	return c.orders.Transmit(id)
}

// CancelOrder cancels a working order. Held orders are removed locally.
func (c *Client) CancelOrder(id schema.OrderID) error {
	return c.orders.Cancel(id)
}

// AwaitOrder blocks until the order reaches a terminal state, the request
// timeout elapses or ctx is cancelled.
func (c *Client) AwaitOrder(ctx context.Context, id schema.OrderID) (schema.OrderStatus, error) {
	ev, err := c.corr.AwaitOnce(ctx, schema.RequestID(id), c.cfg.RequestTimeout)
	if err != nil {
		return schema.OrderStatus{}, err
	}
	status, ok := ev.(schema.OrderStatus)
	if !ok {
		return schema.OrderStatus{}, errors.Wrapf(exception.ErrInternal, "unexpected terminal event %T", ev)
	}
	return status, nil
}

// Order returns the tracked view of one order.
func (c *Client) Order(id schema.OrderID) (orders.Tracked, bool) {
	return c.orders.Get(id)
}

// OpenOrders returns all non-terminal orders.
func (c *Client) OpenOrders() []orders.Tracked {
	return c.orders.Open()
}

// Subscribe opens a streaming market data subscription. capacity 0 uses
// the configured default buffer size.
func (c *Client) Subscribe(ctx context.Context, contract schema.Contract, capacity int) (schema.RequestID, error) {
	if capacity == 0 {
		capacity = c.cfg.QuoteBufferCapacity
	}
	id := c.corr.NextID()
	if err := c.streams.Add(id, contract, capacity, c.cfg.ReconnectEvery); err != nil {
		return 0, err
	}
	frame, err := codec.EncodeReqMktData(id, contract)
	if err != nil {
		c.streams.Remove(id)
		return 0, err
	}
	if err := c.conn.Send(ctx, frame); err != nil {
		c.streams.Remove(id)
		return 0, err
	}
	return id, nil
}

// PopQuotes drains buffered quotes for one subscription, oldest first.
func (c *Client) PopQuotes(id schema.RequestID) ([]schema.Quote, error) {
	return c.streams.PopAll(id)
}

// Unsubscribe cancels a subscription and returns any unread quotes.
func (c *Client) Unsubscribe(ctx context.Context, id schema.RequestID) ([]schema.Quote, error) {
	frame, err := codec.EncodeCancelMktData(id)
	if err != nil {
		return nil, err
	}
	if err := c.conn.Send(ctx, frame); err != nil && !errors.Is(err, exception.ErrNotConnected) {
		return nil, err
	}
	return c.streams.Remove(id)
}

// ReqCurrentTime asks the gateway for its clock.
func (c *Client) ReqCurrentTime(ctx context.Context) (time.Time, error) {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	if c.timeCh != nil {
		c.mu.Unlock()
		return time.Time{}, exception.ErrDuplicateRequest
	}
	c.timeCh = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.timeCh = nil
		c.mu.Unlock()
	}()

	if err := c.conn.Send(ctx, codec.EncodeReqCurrentTime()); err != nil {
		return time.Time{}, err
	}
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case ts := <-ch:
		return ts, nil
	case <-timer.C:
		return time.Time{}, exception.ErrTimeout
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// dispatch runs on the reader goroutine and routes every inbound event.
func (c *Client) dispatch(ev schema.Event) {
	c.handlers.emit(ev)

	switch e := ev.(type) {
	case schema.NextValidID:
		c.corr.Seed(schema.RequestID(e.ID))
	case schema.ManagedAccounts:
		c.mu.Lock()
		c.accounts = e.Accounts
		c.mu.Unlock()
	case schema.TickPrice, schema.TickSize:
		if !c.streams.Offer(ev) {
			logs.Infof("tick for unknown subscription %d dropped", ev.ReqID())
		}
	case schema.OrderStatus:
		c.orders.ApplyStatus(e)
		if err := c.cfg.Store.RecordStatus(c.sessionID, e); err != nil {
			logs.Errorf("record status for order %d: %+v", e.OrderID, err)
		}
	case schema.ExecDetails:
		c.orders.ApplyExec(e)
		if err := c.cfg.Store.RecordExecution(c.sessionID, e); err != nil {
			logs.Errorf("record execution %s: %+v", e.ExecID, err)
		}
	case schema.ErrMsg:
		if e.IsWarning() {
			logs.Infof("gateway notice %d: %s", e.Code, e.Msg)
			return
		}
		if !c.corr.Dispatch(e) {
			logs.Errorf("gateway error %d for id %d: %s", e.Code, e.ID, e.Msg)
		}
	case schema.CurrentTime:
		c.mu.Lock()
		ch := c.timeCh
		c.mu.Unlock()
		if ch != nil {
			select {
			case ch <- e.Time:
			default:
			}
		}
	}
}

// onUp re-issues every active subscription after a reconnect.
func (c *Client) onUp(reconnect bool) {
	if !reconnect {
		return
	}
	for _, sub := range c.streams.Active() {
		frame, err := codec.EncodeReqMktData(sub.ID, sub.Contract)
		if err != nil {
			logs.Errorf("resubscribe %d: %+v", sub.ID, err)
			continue
		}
		if err := c.conn.Send(context.Background(), frame); err != nil {
			logs.Errorf("resubscribe %d: %+v", sub.ID, err)
		}
	}
}

// onDown fails every outstanding waiter so callers never block through a
// dead session.
func (c *Client) onDown(err error) {
	c.corr.FailAll(err)
}

func (c *Client) onOrderTerminal(id schema.OrderID, status schema.OrderStatus) {
	c.corr.Resolve(schema.RequestID(id), status)
}

func (c *Client) nextOrderID() schema.OrderID {
	return schema.OrderID(c.corr.NextID())
}

func (c *Client) cycleSession() {
	c.conn.Cycle()
}

// wireSender adapts the connection manager to the order manager.
type wireSender struct {
	c *Client
}

func (s wireSender) SendPlaceOrder(order schema.Order) error {
	frame, err := codec.EncodePlaceOrder(order)
	if err != nil {
		return err
	}
	return s.c.conn.Send(context.Background(), frame)
}

func (s wireSender) SendCancelOrder(id schema.OrderID) error {
	frame, err := codec.EncodeCancelOrder(id)
	if err != nil {
		return err
	}
	return s.c.conn.Send(context.Background(), frame)
}
