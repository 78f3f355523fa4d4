package exception

import "github.com/yanun0323/errors"

// Streaming subscription errors
var (
	ErrUnknownSubscription = errors.New("stream: unknown subscription")
	ErrInvalidCapacity     = errors.New("stream: buffer capacity must be >= 1")
	ErrDuplicateTicker     = errors.New("stream: ticker already subscribed")
)
