package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// FieldTracker хранит метки изменения полей в локальной базе,
// чтобы слияние по полям переживало перезапуск.
type FieldTracker struct {
	s *Storage
}

// FieldTracker возвращает постоянный трекер полей
func (s *Storage) FieldTracker() *FieldTracker {
	return &FieldTracker{s: s}
}

// Track запоминает время изменения поля. Ошибка базы только логируется.
func (t *FieldTracker) Track(collection, documentID, field string, at time.Time) {
	_, err := t.s.db.ExecContext(context.Background(), `
		INSERT INTO field_timestamps (collection, document_id, field, changed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, document_id, field) DO UPDATE SET changed_at = excluded.changed_at
	`, collection, documentID, field, formatTime(at))
	if err != nil {
		t.s.log.Warn("не удалось сохранить метку поля",
			"collection", collection, "document_id", documentID, "field", field, "error", err)
	}
}

// Timestamp возвращает время последнего изменения поля
func (t *FieldTracker) Timestamp(collection, documentID, field string) (time.Time, bool) {
	var changedAt string
	err := t.s.db.QueryRowContext(context.Background(), `
		SELECT changed_at FROM field_timestamps
		WHERE collection = ? AND document_id = ? AND field = ?
	`, collection, documentID, field).Scan(&changedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			t.s.log.Warn("не удалось получить метку поля",
				"collection", collection, "document_id", documentID, "field", field, "error", err)
		}
		return time.Time{}, false
	}

	at := parseTime(changedAt)
	return at, !at.IsZero()
}
