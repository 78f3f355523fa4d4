package exception

import "github.com/yanun0323/errors"

// Order errors
var (
	ErrUnknownOrder      = errors.New("order: order not found")
	ErrDuplicateOrder    = errors.New("order: order already exists")
	ErrInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderTerminal     = errors.New("order: order already in terminal state")
	ErrOrderNotHeld      = errors.New("order: order is not held")
	ErrInvalidFill       = errors.New("order: invalid fill quantity")
)
