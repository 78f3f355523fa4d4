package conn

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"twsgo/internal/codec"
	"twsgo/internal/schema"
	"twsgo/pkg/exception"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config defines the connection manager runtime configuration.
type Config struct {
	Host     string
	Port     int
	ClientID schema.ClientID

	ConnectTimeout time.Duration
	HeartbeatEvery time.Duration

	Backoff              Backoff
	MaxReconnectAttempts int // 0 means retry forever

	// Outbound message rate cap. Zero falls back to the gateway's
	// documented ceiling of 50 messages per second.
	RateLimit rate.Limit
	RateBurst int

	// OnEvent receives every decoded inbound event, in arrival order,
	// from the single reader goroutine.
	OnEvent func(schema.Event)
	// OnUp fires after a successful handshake. reconnect is false for the
	// initial connect and true for every recovery.
	OnUp func(reconnect bool)
	// OnDown fires when the session is lost, before any reconnect attempt.
	OnDown func(error)
}

// Manager owns one gateway session: the TCP socket, the handshake, the
// reader goroutine, the heartbeat and the reconnect loop. All writes go
// through Send, which serializes them onto the socket.
type Manager struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex // guards conn swaps and state transitions
	conn    net.Conn
	state   atomic.Int32
	closed  atomic.Bool
	cancel  context.CancelFunc
	writeMu sync.Mutex

	lastRead    atomic.Int64 // unix nanos of the last inbound bytes
	decodeFails int          // consecutive undecodable frames, reader goroutine only

	serverVersion int
	connTime      string
}

// maxDecodeFailures caps consecutive undecodable frames before the stream
// is treated as corrupt and the session is cycled.
const maxDecodeFailures = 8

// NewManager builds a connection manager. It does not dial.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "conn: host and port required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit)
	}
	if cfg.Backoff.Min == 0 && cfg.Backoff.Max == 0 && cfg.Backoff.Factor == 0 && cfg.Backoff.Jitter == 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Manager{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
	}, nil
}

// Connect dials the gateway, performs the handshake and starts the reader
// and heartbeat goroutines.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if State(m.state.Load()) != StateDisconnected {
		m.mu.Unlock()
		return exception.ErrAlreadyConnected
	}
	m.state.Store(int32(StateConnecting))
	m.mu.Unlock()

	conn, err := m.dialAndHandshake(ctx)
	if err != nil {
		m.state.Store(int32(StateDisconnected))
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.lastRead.Store(time.Now().UnixNano())
	m.mu.Lock()
	m.conn = conn
	m.closed.Store(false)
	m.cancel = cancel
	m.state.Store(int32(StateConnected))
	m.mu.Unlock()

	go m.readLoop(runCtx)
	go m.heartbeat(runCtx)

	logs.Infof("connected to %s:%d as client %d, server version %d",
		m.cfg.Host, m.cfg.Port, m.cfg.ClientID, m.serverVersion)
	if m.cfg.OnUp != nil {
		m.cfg.OnUp(false)
	}
	return nil
}

// Disconnect tears down the session. Pending reconnects stop.
func (m *Manager) Disconnect() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.state.Store(int32(StateDisconnected))
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

// Cycle severs the live socket so the read loop runs the reconnect path.
// Used by the subscription registry's staleness workaround; a no-op when
// not connected.
func (m *Manager) Cycle() {
	if State(m.state.Load()) != StateConnected {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// ServerVersion reports the version negotiated during the handshake.
func (m *Manager) ServerVersion() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverVersion
}

// Send writes one framed message to the socket, honoring the outbound
// rate cap. Writes are serialized; interleaved frames cannot occur.
func (m *Manager) Send(ctx context.Context, frame []byte) error {
	if State(m.state.Load()) != StateConnected {
		return exception.ErrNotConnected
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return exception.ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := conn.Write(frame); err != nil {
		return errors.Wrap(exception.ErrConnectionLost, err.Error())
	}
	return nil
}

func (m *Manager) dialAndHandshake(ctx context.Context) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	dialer := net.Dialer{Timeout: m.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errors.Wrap(exception.ErrConnectTimeout, addr)
		}
		return nil, errors.Wrapf(exception.ErrConnectionRefused, "%s: %v", addr, err)
	}
	version, connTime, err := m.handshake(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m.mu.Lock()
	m.serverVersion = version
	m.connTime = connTime
	m.mu.Unlock()
	return conn, nil
}

// handshake sends the API preamble and version range, validates the
// server's reply and completes the session with StartAPI.
func (m *Manager) handshake(conn net.Conn) (int, string, error) {
	deadline := time.Now().Add(m.cfg.ConnectTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, "", errors.Wrap(exception.ErrHandshakeFailed, err.Error())
	}
	defer conn.SetDeadline(time.Time{})

	if _, err := conn.Write(codec.EncodeHandshake()); err != nil {
		return 0, "", errors.Wrap(exception.ErrHandshakeFailed, err.Error())
	}
	payload, err := readFrame(conn)
	if err != nil {
		return 0, "", errors.Wrap(exception.ErrHandshakeFailed, err.Error())
	}
	version, connTime, err := codec.DecodeHandshakeAck(payload)
	if err != nil {
		return version, connTime, errors.Wrapf(err, "server version %d", version)
	}
	if _, err := conn.Write(codec.EncodeStartAPI(m.cfg.ClientID)); err != nil {
		return version, connTime, errors.Wrap(exception.ErrHandshakeFailed, err.Error())
	}
	return version, connTime, nil
}

// readLoop is the session's single reader. It feeds the incremental
// decoder and dispatches complete events in arrival order.
func (m *Manager) readLoop(ctx context.Context) {
	decoder := codec.NewDecoder()
	buf := make([]byte, 4096)
	for {
		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			m.lastRead.Store(time.Now().UnixNano())
			decoder.Feed(buf[:n])
			if !m.drain(decoder) {
				logs.Errorf("stream corrupt after %d bad frames, cycling session", m.decodeFails)
				conn.Close()
			}
		}
		if err == nil {
			continue
		}
		if m.closed.Load() || ctx.Err() != nil {
			return
		}

		logs.Errorf("session lost: %v", err)
		decoder.Reset()
		m.decodeFails = 0
		if !m.reconnect(ctx, err) {
			return
		}
	}
}

// drain dispatches every complete event. It reports false once too many
// consecutive frames fail to decode.
func (m *Manager) drain(decoder *codec.Decoder) bool {
	for {
		ev, err := decoder.Next()
		if err != nil {
			m.decodeFails++
			logs.Infof("dropping frame: %+v", err)
			if m.decodeFails >= maxDecodeFailures {
				return false
			}
			continue
		}
		if ev == nil {
			return true
		}
		m.decodeFails = 0
		if m.cfg.OnEvent != nil {
			m.cfg.OnEvent(ev)
		}
	}
}

// reconnect re-establishes the session with exponential backoff. It
// reports whether the read loop should continue.
func (m *Manager) reconnect(ctx context.Context, cause error) bool {
	m.state.Store(int32(StateReconnecting))
	if m.cfg.OnDown != nil {
		m.cfg.OnDown(errors.Wrap(exception.ErrConnectionLost, cause.Error()))
	}
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if m.cfg.MaxReconnectAttempts > 0 && attempt > m.cfg.MaxReconnectAttempts {
			logs.Errorf("reconnect exhausted after %d attempts", m.cfg.MaxReconnectAttempts)
			m.state.Store(int32(StateDisconnected))
			if m.cfg.OnDown != nil {
				m.cfg.OnDown(exception.ErrReconnectExhausted)
			}
			return false
		}
		wait := m.cfg.Backoff.Next(attempt)
		logs.Infof("reconnect attempt %d in %s", attempt, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
		if m.closed.Load() {
			return false
		}

		conn, err := m.dialAndHandshake(ctx)
		if err != nil {
			logs.Errorf("reconnect attempt %d: %+v", attempt, err)
			continue
		}
		m.lastRead.Store(time.Now().UnixNano())
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.state.Store(int32(StateConnected))
		logs.Infof("reconnected after %d attempts", attempt)
		if m.cfg.OnUp != nil {
			m.cfg.OnUp(true)
		}
		return true
	}
}

// heartbeat periodically requests server time. A session that stays
// silent for three intervals is treated as half-open and cycled into the
// reconnect path.
func (m *Manager) heartbeat(ctx context.Context) {
	if m.cfg.HeartbeatEvery <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if State(m.state.Load()) != StateConnected {
				continue
			}
			silence := time.Since(time.Unix(0, m.lastRead.Load()))
			if silence > 3*m.cfg.HeartbeatEvery {
				logs.Errorf("no inbound traffic for %s, cycling session", silence)
				m.Cycle()
				continue
			}
			if err := m.Send(ctx, codec.EncodeReqCurrentTime()); err != nil {
				logs.Errorf("heartbeat: %+v", err)
			}
		}
	}
}

// readFrame reads one length-prefixed frame directly from the socket.
// Used only during the handshake, before the decoder loop owns the
// stream.
func readFrame(conn net.Conn) ([]byte, error) {
	var head [4]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(head[:])
	if size > codec.MaxFrameSize {
		return nil, exception.ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
