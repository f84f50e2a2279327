package document

import "errors"

var (
	ErrInvalidDocument = errors.New("invalid sync document")
)
