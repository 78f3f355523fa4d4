package exception

import "github.com/yanun0323/errors"

// Codec errors
var (
	ErrMissingField   = errors.New("codec: required field missing for request")
	ErrMalformedFrame = errors.New("codec: malformed frame")
	ErrFrameTooLarge  = errors.New("codec: frame exceeds size limit")
	ErrUnknownMessage = errors.New("codec: unknown message id")
)
