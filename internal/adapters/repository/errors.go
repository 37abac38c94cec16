package repository

import "errors"

// Sentinel kinds for store construction.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrClosed        = errors.New("store closed")
)
