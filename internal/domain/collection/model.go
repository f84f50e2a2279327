package collection

import (
	"fmt"
	"strings"

	"assistsync/internal/domain/conflict"
)

// Direction направление синхронизации коллекции
type Direction string

const (
	Bidirectional Direction = "bidirectional"
	PullOnly      Direction = "pull-only"
	PushOnly      Direction = "push-only"
)

// ParseDirection разбирает направление из конфигурации
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Bidirectional, PullOnly, PushOnly:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidConfig, s)
}

// Config настройки синхронизации одной коллекции
type Config struct {
	Name      string        `json:"name"`
	Direction Direction     `json:"direction"`
	Strategy  conflict.Kind `json:"strategy"`
	BatchSize int           `json:"batch_size"`
	Priority  int           `json:"priority"`
}

func (c Config) CanPush() bool {
	return c.Direction == Bidirectional || c.Direction == PushOnly
}

func (c Config) CanPull() bool {
	return c.Direction == Bidirectional || c.Direction == PullOnly
}

// Defaults таблица коллекций приложения
func Defaults() []Config {
	return []Config{
		{Name: "messages", Direction: Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 100, Priority: 100},
		{Name: "threads", Direction: Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 50, Priority: 90},
		{Name: "tasks", Direction: Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 50, Priority: 80},
		{Name: "notes", Direction: Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 25, Priority: 70},
		{Name: "memories", Direction: Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 50, Priority: 60},
		{Name: "preferences", Direction: Bidirectional, Strategy: conflict.FieldMerge, BatchSize: 10, Priority: 50},
		{Name: "calendar_events", Direction: PullOnly, Strategy: conflict.ServerWins, BatchSize: 100, Priority: 40},
		{Name: "activity_log", Direction: PushOnly, Strategy: conflict.ClientWins, BatchSize: 100, Priority: 10},
	}
}
