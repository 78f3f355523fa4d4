package exception

import "github.com/yanun0323/errors"

// Connection errors
var (
	ErrNotConnected       = errors.New("conn: not connected")
	ErrConnectionLost     = errors.New("conn: connection lost")
	ErrConnectionRefused  = errors.New("conn: connection refused")
	ErrConnectTimeout     = errors.New("conn: connect timed out")
	ErrVersionMismatch    = errors.New("conn: server version out of supported range")
	ErrHandshakeFailed    = errors.New("conn: handshake failed")
	ErrReconnectExhausted = errors.New("conn: reconnect attempts exhausted")
	ErrAlreadyConnected   = errors.New("conn: already connected")
)
