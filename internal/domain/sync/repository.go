package sync

import (
	"context"
	"time"

	"assistsync/internal/domain/document"
)

// LocalStore локальное хранилище документов устройства (локальный формат полей)
type LocalStore interface {
	// Read возвращает документ или nil, nil если его нет
	Read(ctx context.Context, collection, id string) (document.Document, error)
	Write(ctx context.Context, collection string, doc document.Document) error
	EnumerateChangesSince(ctx context.Context, collection string, since time.Time) ([]document.Document, error)
}

// RemoteStore удаленное хранилище (удаленный формат полей)
type RemoteStore interface {
	FetchSince(ctx context.Context, collection string, checkpoint int64, batchSize int) (*Batch, error)
	UpsertBatch(ctx context.Context, collection string, docs []document.Document) error
}

// Subscriber необязательная подписка удаленного хранилища на изменения.
// Subscribe блокируется до отмены ctx или сбоя подписки.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string, onChange func(Change)) error
}

// StateStore состояние синхронизации устройства
type StateStore interface {
	LoadCheckpoint(ctx context.Context, collection string) (int64, error)
	SaveCheckpoint(ctx context.Context, collection string, checkpoint int64) error
	LoadClock(ctx context.Context) (int64, error)
	SaveClock(ctx context.Context, value int64) error
	// DeviceID возвращает идентификатор устройства, создавая его при первом обращении
	DeviceID(ctx context.Context) (string, error)
}

// Repository серверное хранилище документов с разделением по пользователям
type Repository interface {
	FetchChanges(ctx context.Context, userID, collection string, checkpoint int64, limit int) (*Batch, error)
	UpsertDocuments(ctx context.Context, userID, collection string, docs []document.Document) (int, error)
}
