package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"assistsync/internal/domain/conflict"
)

// Conflicts постоянный журнал конфликтов, хранит не более limit записей
type Conflicts struct {
	s     *Storage
	limit int
}

// Conflicts возвращает журнал конфликтов вместимостью limit
func (s *Storage) Conflicts(limit int) *Conflicts {
	if limit <= 0 {
		limit = 100
	}
	return &Conflicts{s: s, limit: limit}
}

// Record сохраняет запись и удаляет самые старые сверх лимита
func (c *Conflicts) Record(ctx context.Context, entry conflict.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ошибка сериализации конфликта: %w", err)
	}

	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO conflict_log (id, entry, resolved_at) VALUES (?, ?, ?)",
		entry.ID, string(data), formatTime(entry.ResolvedAt)); err != nil {
		return fmt.Errorf("ошибка сохранения конфликта: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conflict_log
		WHERE seq NOT IN (SELECT seq FROM conflict_log ORDER BY seq DESC LIMIT ?)
	`, c.limit); err != nil {
		return fmt.Errorf("ошибка очистки журнала конфликтов: %w", err)
	}

	return tx.Commit()
}

// List возвращает до limit последних записей, от старых к новым
func (c *Conflicts) List(ctx context.Context, limit int) ([]conflict.LogEntry, error) {
	if limit <= 0 || limit > c.limit {
		limit = c.limit
	}

	rows, err := c.s.db.QueryContext(ctx, `
		SELECT entry FROM (
			SELECT seq, entry FROM conflict_log ORDER BY seq DESC LIMIT ?
		) ORDER BY seq
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала конфликтов: %w", err)
	}
	defer rows.Close()

	entries := make([]conflict.LogEntry, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ошибка чтения конфликта: %w", err)
		}
		var entry conflict.LogEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("ошибка парсинга конфликта: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
