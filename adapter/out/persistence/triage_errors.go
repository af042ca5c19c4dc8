package persistence

import "errors"

// Common persistence errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedDriver = errors.New("unsupported sql driver")
)
