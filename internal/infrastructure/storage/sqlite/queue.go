package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"assistsync/internal/domain/queue"
)

// Queue хранилище очереди отправки поверх локальной базы
type Queue struct {
	s *Storage
}

// Queue возвращает репозиторий очереди отправки
func (s *Storage) Queue() *Queue {
	return &Queue{s: s}
}

// Load возвращает все записи очереди, включая недоставляемые
func (q *Queue) Load(ctx context.Context) ([]queue.Entry, error) {
	rows, err := q.s.db.QueryContext(ctx, `
		SELECT collection, document_id, state, payload, attempt,
		       next_attempt_at, enqueued_at, updated_at, last_error
		FROM push_queue
		ORDER BY enqueued_at
	`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения очереди: %w", err)
	}
	defer rows.Close()

	var entries []queue.Entry
	for rows.Next() {
		var (
			entry                          queue.Entry
			state, payload                 string
			nextAttempt, enqueued, updated string
		)
		if err := rows.Scan(&entry.Collection, &entry.DocumentID, &state, &payload, &entry.Attempt,
			&nextAttempt, &enqueued, &updated, &entry.LastError); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи очереди: %w", err)
		}

		entry.Payload, err = decodeDocument(payload)
		if err != nil {
			return nil, err
		}
		entry.State = queue.State(state)
		entry.NextAttemptAt = parseTime(nextAttempt)
		entry.EnqueuedAt = parseTime(enqueued)
		entry.UpdatedAt = parseTime(updated)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Save сохраняет ожидающую запись
func (q *Queue) Save(ctx context.Context, entry queue.Entry) error {
	entry.State = queue.StatePending
	if err := q.upsert(ctx, entry); err != nil {
		return fmt.Errorf("ошибка сохранения записи очереди: %w", err)
	}
	return nil
}

// Delete удаляет запись в указанном состоянии
func (q *Queue) Delete(ctx context.Context, collection, documentID string, state queue.State) error {
	_, err := q.s.db.ExecContext(ctx,
		"DELETE FROM push_queue WHERE collection = ? AND document_id = ? AND state = ?",
		collection, documentID, string(state))
	if err != nil {
		return fmt.Errorf("ошибка удаления записи очереди: %w", err)
	}
	return nil
}

// SaveDead переносит запись в недоставляемые
func (q *Queue) SaveDead(ctx context.Context, entry queue.Entry) error {
	tx, err := q.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM push_queue WHERE collection = ? AND document_id = ? AND state = ?",
		entry.Collection, entry.DocumentID, string(queue.StatePending)); err != nil {
		return fmt.Errorf("ошибка удаления записи очереди: %w", err)
	}

	entry.State = queue.StateDead
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи очереди: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsertQueueSQL, queueArgs(entry, payload)...); err != nil {
		return fmt.Errorf("ошибка сохранения недоставляемой записи: %w", err)
	}

	return tx.Commit()
}

const upsertQueueSQL = `
	INSERT INTO push_queue (collection, document_id, state, payload, attempt,
	                        next_attempt_at, enqueued_at, updated_at, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(collection, document_id, state) DO UPDATE SET
		payload = excluded.payload,
		attempt = excluded.attempt,
		next_attempt_at = excluded.next_attempt_at,
		enqueued_at = excluded.enqueued_at,
		updated_at = excluded.updated_at,
		last_error = excluded.last_error
`

func (q *Queue) upsert(ctx context.Context, entry queue.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	_, err = q.s.db.ExecContext(ctx, upsertQueueSQL, queueArgs(entry, payload)...)
	return err
}

func queueArgs(entry queue.Entry, payload []byte) []any {
	return []any{
		entry.Collection, entry.DocumentID, string(entry.State), string(payload), entry.Attempt,
		formatTime(entry.NextAttemptAt), formatTime(entry.EnqueuedAt), formatTime(entry.UpdatedAt),
		entry.LastError,
	}
}
