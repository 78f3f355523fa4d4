package gatewaysim

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"twsgo/internal/codec"
	"twsgo/internal/schema"
)

// Config tunes the simulated gateway.
type Config struct {
	ServerVersion int
	NextOrderID   schema.OrderID
	Accounts      []string

	// TickBurst quotes are streamed immediately after each market data
	// subscription; TickInterval then drives a periodic feed when set.
	TickBurst    int
	TickInterval time.Duration

	// FillDelay postpones the fill after an order is accepted. Zero
	// fills immediately after Submitted.
	FillDelay time.Duration
}

// Gateway is an in-process TCP gateway speaking the wire protocol. It
// accepts any number of sessions, fills transmitted orders and streams
// deterministic ticks, which is enough surface for lifecycle and
// reconnect testing.
type Gateway struct {
	cfg Config
	lis net.Listener

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool

	mktDataReqs int
	placeReqs   int
	cancelReqs  int
}

type session struct {
	g       *Gateway
	conn    net.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[schema.RequestID]schema.Contract
	done chan struct{}
}

// Start listens on addr ("127.0.0.1:0" for an ephemeral port) and begins
// accepting sessions.
func Start(addr string, cfg Config) (*Gateway, error) {
	if cfg.ServerVersion == 0 {
		cfg.ServerVersion = 176
	}
	if cfg.NextOrderID == 0 {
		cfg.NextOrderID = 1
	}
	if len(cfg.Accounts) == 0 {
		cfg.Accounts = []string{"DU0001"}
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		cfg:      cfg,
		lis:      lis,
		sessions: make(map[*session]struct{}),
	}
	go g.accept()
	return g, nil
}

// Addr returns the listen address clients should dial.
func (g *Gateway) Addr() string {
	return g.lis.Addr().String()
}

// Close stops the listener and all live sessions.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	sessions := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	g.lis.Close()
	for _, s := range sessions {
		s.close()
	}
}

// DropSessions severs every live session without stopping the listener,
// simulating a gateway restart.
func (g *Gateway) DropSessions() {
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// MktDataRequests counts subscribe requests across all sessions.
func (g *Gateway) MktDataRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mktDataReqs
}

// PlaceRequests counts place-order requests across all sessions.
func (g *Gateway) PlaceRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.placeReqs
}

func (g *Gateway) accept() {
	for {
		conn, err := g.lis.Accept()
		if err != nil {
			return
		}
		s := &session{
			g:    g,
			conn: conn,
			subs: make(map[schema.RequestID]schema.Contract),
			done: make(chan struct{}),
		}
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			conn.Close()
			return
		}
		g.sessions[s] = struct{}{}
		g.mu.Unlock()
		go s.run()
	}
}

func (s *session) close() {
	s.mu.Lock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.mu.Unlock()
	s.conn.Close()
}

func (s *session) run() {
	defer func() {
		s.close()
		s.g.mu.Lock()
		delete(s.g.sessions, s)
		s.g.mu.Unlock()
	}()

	if err := s.handshake(); err != nil {
		logs.Infof("sim handshake: %v", err)
		return
	}
	if s.g.cfg.TickInterval > 0 {
		go s.tickFeed()
	}

	for {
		payload, err := s.readFrame()
		if err != nil {
			return
		}
		req, err := codec.DecodeRequest(payload)
		if err != nil {
			logs.Infof("sim: bad request: %v", err)
			continue
		}
		s.handle(req)
	}
}

// handshake consumes the API preamble and StartAPI, then announces the
// session bootstrap events.
func (s *session) handshake() error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, prefix); err != nil {
		return err
	}
	if string(prefix) != "API\x00" {
		return fmt.Errorf("bad preamble %q", prefix)
	}
	if _, err := s.readFrame(); err != nil { // client version range
		return err
	}
	connTime := time.Now().Format("20060102 15:04:05 MST")
	s.send(codec.EncodeHandshakeAck(s.g.cfg.ServerVersion, connTime))

	payload, err := s.readFrame()
	if err != nil {
		return err
	}
	if _, err := codec.DecodeRequest(payload); err != nil {
		return err
	}

	s.send(codec.EncodeNextValidID(schema.NextValidID{ID: s.g.cfg.NextOrderID}))
	s.send(codec.EncodeManagedAccounts(schema.ManagedAccounts{Accounts: s.g.cfg.Accounts}))
	return nil
}

func (s *session) handle(req codec.Request) {
	switch r := req.(type) {
	case codec.PlaceOrderReq:
		s.g.mu.Lock()
		s.g.placeReqs++
		s.g.mu.Unlock()
		s.handlePlace(r.Order)
	case codec.CancelOrderReq:
		s.g.mu.Lock()
		s.g.cancelReqs++
		s.g.mu.Unlock()
		s.send(codec.EncodeOrderStatus(schema.OrderStatus{
			OrderID: r.OrderID,
			Status:  schema.OrderStateCancelled,
		}))
	case codec.MktDataReq:
		s.g.mu.Lock()
		s.g.mktDataReqs++
		s.g.mu.Unlock()
		s.mu.Lock()
		s.subs[r.ID] = r.Contract
		s.mu.Unlock()
		s.burst(r.ID)
	case codec.CancelMktDataReq:
		s.mu.Lock()
		delete(s.subs, r.ID)
		s.mu.Unlock()
	case codec.CurrentTimeReq:
		s.send(codec.EncodeCurrentTime(schema.CurrentTime{Time: time.Now()}))
	}
}

// handlePlace accepts the order and, for transmitted parents, walks it to
// Filled with a matching execution. Non-transmitted bracket legs only
// reach Submitted.
func (s *session) handlePlace(order schema.Order) {
	s.send(codec.EncodeOrderStatus(schema.OrderStatus{
		OrderID:   order.OrderID,
		Status:    schema.OrderStateSubmitted,
		Remaining: order.Quantity,
		ParentID:  order.ParentID,
	}))
	if !order.Transmit || order.ParentID != schema.UnsetParent {
		return
	}
	if s.g.cfg.FillDelay > 0 {
		go func() {
			select {
			case <-time.After(s.g.cfg.FillDelay):
				s.fill(order)
			case <-s.done:
			}
		}()
		return
	}
	s.fill(order)
}

func (s *session) fill(order schema.Order) {
	price := fillPrice(order)
	s.send(codec.EncodeExecDetails(schema.ExecDetails{
		OrderID: order.OrderID,
		ExecID:  fmt.Sprintf("0000e0d5.%d", order.OrderID),
		Time:    time.Now(),
		Side:    sideOf(order.Action),
		Shares:  order.Quantity,
		Price:   price,
		CumQty:  order.Quantity,
	}))
	s.send(codec.EncodeOrderStatus(schema.OrderStatus{
		OrderID:      order.OrderID,
		Status:       schema.OrderStateFilled,
		Filled:       order.Quantity,
		AvgFillPrice: price,
		ParentID:     order.ParentID,
	}))
}

// burst streams the configured number of immediate ticks for one new
// subscription.
func (s *session) burst(id schema.RequestID) {
	for i := 0; i < s.g.cfg.TickBurst; i++ {
		s.sendTick(id, i)
	}
}

func (s *session) tickFeed() {
	ticker := time.NewTicker(s.g.cfg.TickInterval)
	defer ticker.Stop()
	seq := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			ids := make([]schema.RequestID, 0, len(s.subs))
			for id := range s.subs {
				ids = append(ids, id)
			}
			s.mu.Unlock()
			for _, id := range ids {
				s.sendTick(id, seq)
			}
			seq++
		}
	}
}

func (s *session) sendTick(id schema.RequestID, seq int) {
	price := decimal.NewFromInt(100).Add(decimal.NewFromInt(int64(seq)).Div(decimal.NewFromInt(2)))
	s.send(codec.EncodeTickPrice(schema.TickPrice{
		ID:    id,
		Tick:  schema.TickLast,
		Price: price,
		Size:  decimal.NewFromInt(int64(seq%9 + 1)),
	}))
	s.send(codec.EncodeTickSize(schema.TickSize{
		ID:   id,
		Tick: schema.TickLastSize,
		Size: decimal.NewFromInt(int64(seq%9 + 1)),
	}))
}

func (s *session) send(frame []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.Write(frame)
}

func (s *session) readFrame() ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(s.conn, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > codec.MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func fillPrice(order schema.Order) decimal.Decimal {
	half := decimal.RequireFromString("0.5")
	base := order.LimitPrice
	if base.IsZero() {
		base = decimal.NewFromInt(100)
	}
	if order.Action == schema.ActionBuy {
		return base.Sub(half)
	}
	return base.Add(half)
}

func sideOf(action schema.OrderAction) string {
	if action == schema.ActionBuy {
		return "BOT"
	}
	return "SLD"
}
