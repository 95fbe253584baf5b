package service

import "errors"

var (
	// ErrSessionRequired is returned when a request carries no session
	ErrSessionRequired = errors.New("session is required")

	// ErrAlertIDRequired is returned when a dismiss request names no alert
	ErrAlertIDRequired = errors.New("alert_id is required")
)
