package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assistsync/internal/domain/document"
)

// Read возвращает документ коллекции или nil, если его нет
func (s *Storage) Read(ctx context.Context, collection, id string) (document.Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}

	return decodeDocument(data)
}

// Write сохраняет документ целиком, заменяя предыдущую версию
func (s *Storage) Write(ctx context.Context, collection string, doc document.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("документ без идентификатора: %w", document.ErrInvalidDocument)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ошибка сериализации документа: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, user_id, data, updated_at, logical_clock, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			user_id = excluded.user_id,
			data = excluded.data,
			updated_at = excluded.updated_at,
			logical_clock = excluded.logical_clock,
			is_deleted = excluded.is_deleted
	`, collection, id, doc.String(document.FieldUserID), string(data),
		formatTime(doc.UpdatedAt()), doc.LogicalClock(), doc.IsDeleted())
	if err != nil {
		return fmt.Errorf("ошибка сохранения документа: %w", err)
	}

	return nil
}

// EnumerateChangesSince возвращает документы, измененные строго позже since
func (s *Storage) EnumerateChangesSince(ctx context.Context, collection string, since time.Time) ([]document.Document, error) {
	return s.query(ctx, `
		SELECT data FROM documents
		WHERE collection = ? AND updated_at > ?
		ORDER BY updated_at, id
	`, collection, formatTime(since))
}

// List возвращает документы коллекции. Удаленные включаются по флагу.
func (s *Storage) List(ctx context.Context, collection string, includeDeleted bool) ([]document.Document, error) {
	query := "SELECT data FROM documents WHERE collection = ?"
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}
	query += " ORDER BY updated_at DESC, id"

	return s.query(ctx, query, collection)
}

func (s *Storage) query(ctx context.Context, query string, args ...any) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения документов: %w", err)
	}
	defer rows.Close()

	docs := make([]document.Document, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ошибка чтения документа: %w", err)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func decodeDocument(data string) (document.Document, error) {
	var doc document.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("ошибка парсинга документа: %w", err)
	}
	return doc, nil
}

// formatTime приводит время к строке фиксированной ширины,
// чтобы сравнение строк в SQL совпадало со сравнением времени.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return document.FormatTime(t)
}

func parseTime(s string) time.Time {
	return document.ParseTime(s)
}
