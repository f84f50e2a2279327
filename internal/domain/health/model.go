package health

import "time"

// State состояние предохранителя коллекции
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// CollectionHealth снимок состояния одной коллекции
type CollectionHealth struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitempty"`
	DeadEntries         int       `json:"dead_entries"`
}

// Config параметры предохранителя
type Config struct {
	Threshold    int
	ResetTimeout time.Duration
}
