package source

import "errors"

var (
	// ErrUnknownKind is returned when no endpoint or adapter exists for a kind
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrMissingID is returned for backend records without an id
	ErrMissingID = errors.New("record has no id")

	// ErrUnexpectedStatus is returned when the backend answers with a non-2xx status
	ErrUnexpectedStatus = errors.New("unexpected backend status")
)
