package conflict

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicy нарушение политики направления синхронизации, не повторяется
	ErrPolicy          = errors.New("sync policy violation")
	ErrPushNotAllowed  = fmt.Errorf("%w: push is not allowed for server-wins collection", ErrPolicy)
	ErrPullNotAllowed  = fmt.Errorf("%w: pull is not allowed for client-wins collection", ErrPolicy)
	ErrUnknownStrategy = errors.New("unknown conflict strategy")
)
