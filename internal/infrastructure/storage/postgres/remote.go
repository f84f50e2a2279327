package postgres

import (
	"context"
	"errors"

	"assistsync/internal/domain/document"
	"assistsync/internal/domain/sync"
)

var ErrNoListener = errors.New("change listener is not configured")

// Remote удаленное хранилище одного пользователя для прямого подключения клиента к базе
type Remote struct {
	repo     *DocumentRepository
	listener *Listener
	userID   string
}

// NewRemote связывает репозиторий и слушатель изменений с пользователем.
// listener может быть nil, тогда подписка недоступна.
func NewRemote(repo *DocumentRepository, listener *Listener, userID string) *Remote {
	return &Remote{repo: repo, listener: listener, userID: userID}
}

func (r *Remote) FetchSince(ctx context.Context, collection string, checkpoint int64, batchSize int) (*sync.Batch, error) {
	return r.repo.FetchChanges(ctx, r.userID, collection, checkpoint, batchSize)
}

func (r *Remote) UpsertBatch(ctx context.Context, collection string, docs []document.Document) error {
	_, err := r.repo.UpsertDocuments(ctx, r.userID, collection, docs)
	return err
}

// Subscribe передает уведомления коллекции до отмены ctx
func (r *Remote) Subscribe(ctx context.Context, collection string, onChange func(sync.Change)) error {
	if r.listener == nil {
		return ErrNoListener
	}

	unsubscribe := r.listener.Subscribe(r.userID, collection, onChange)
	defer unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}
