package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNilInstance      = errors.New("nil instance")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTimeout          = errors.New("request timed out")
	ErrInternal         = errors.New("internal error")
	ErrRequestRejected  = errors.New("request rejected by gateway")
	ErrDuplicateRequest = errors.New("request id already pending")
)
