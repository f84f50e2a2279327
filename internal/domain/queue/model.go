package queue

import (
	"context"
	"time"

	"assistsync/internal/domain/document"
)

// State состояние записи очереди
type State string

const (
	StatePending State = "pending"
	StateDead    State = "dead"
)

// Entry запись очереди отправки
type Entry struct {
	Collection    string            `json:"collection"`
	DocumentID    string            `json:"document_id"`
	Payload       document.Document `json:"payload"`
	Attempt       int               `json:"attempt"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	LastError     string            `json:"last_error,omitempty"`
	State         State             `json:"state"`

	seq      uint64
	inFlight bool
}

// Key ключ записи: не более одной ожидающей записи на ключ
type Key struct {
	Collection string
	DocumentID string
}

func (e *Entry) Key() Key {
	return Key{Collection: e.Collection, DocumentID: e.DocumentID}
}

// Stats состояние очереди одной коллекции
type Stats struct {
	Depth            int           `json:"depth"`
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
	Dead             int           `json:"dead"`
}

// DrainResult итог одной выборки из очереди
type DrainResult struct {
	Sent   int
	Failed int
	Dead   []Entry
}

// SendFunc отправляет пакет записей на сервер
type SendFunc func(ctx context.Context, entries []Entry) error

// Repository постоянное хранилище очереди
type Repository interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, collection, documentID string, state State) error
	SaveDead(ctx context.Context, entry Entry) error
}
