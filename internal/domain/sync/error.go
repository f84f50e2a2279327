package sync

import (
	"context"
	"errors"
	"fmt"

	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
)

// ErrorKind класс ошибки синхронизации
type ErrorKind int

const (
	// KindTransient сетевые сбои и таймауты: повтор с задержкой, учет в предохранителе
	KindTransient ErrorKind = iota
	// KindValidation документ отклонен, не повторяется
	KindValidation
	// KindPolicy нарушение направления синхронизации, не повторяется
	KindPolicy
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPolicy:
		return "policy"
	}
	return "transient"
}

var (
	ErrValidation        = errors.New("sync validation failed")
	ErrPolicy            = conflict.ErrPolicy
	ErrUnknownCollection = collection.ErrUnknownCollection
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrAlreadyRunning    = errors.New("sync engine already running")
	ErrUserNotScoped     = errors.New("user id is not set")
)

// Error ошибка операции синхронизации
type Error struct {
	Op         string
	Collection string
	Kind       ErrorKind
	Err        error
}

func (e *Error) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("sync %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sync %s %s (%s): %v", e.Op, e.Collection, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет проверять класс ошибки через errors.Is(err, ErrValidation)
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrPolicy:
		return e.Kind == KindPolicy
	}
	return false
}

// NewError создает ошибку синхронизации
func NewError(op, collection string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Collection: collection, Kind: kind, Err: err}
}

// KindOf определяет класс ошибки
func KindOf(err error) ErrorKind {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	switch {
	case errors.Is(err, conflict.ErrPolicy):
		return KindPolicy
	case errors.Is(err, document.ErrInvalidDocument),
		errors.Is(err, collection.ErrUnknownCollection),
		errors.Is(err, ErrValidation):
		return KindValidation
	}
	return KindTransient
}

// IsRetryable сообщает, имеет ли смысл повторять операцию
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransient
}

// classify оборачивает ошибку в *Error, сохраняя уже определенный класс
func classify(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return err
	}
	return NewError(op, collection, KindOf(err), err)
}
