package queue

import "errors"

var (
	ErrEmptyKey = errors.New("queue entry requires collection and document id")
	ErrNotFound = errors.New("queue entry not found")
)
