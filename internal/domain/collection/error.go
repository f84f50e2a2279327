package collection

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid collection config")
	ErrUnknownCollection = errors.New("unknown collection")
)
