package classifier

import "errors"

var (
	// ErrInvalidReference is returned when the reference instant is missing
	ErrInvalidReference = errors.New("invalid reference time")
)
