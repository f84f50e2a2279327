package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

const (
	stateKeyClock    = "logical_clock"
	stateKeyDeviceID = "device_id"
)

// LoadCheckpoint возвращает контрольную точку коллекции, 0 если ее нет
func (s *Storage) LoadCheckpoint(ctx context.Context, collection string) (int64, error) {
	var checkpoint int64
	err := s.db.QueryRowContext(ctx,
		"SELECT checkpoint FROM checkpoints WHERE collection = ?", collection,
	).Scan(&checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка получения контрольной точки: %w", err)
	}
	return checkpoint, nil
}

// SaveCheckpoint сохраняет контрольную точку коллекции
func (s *Storage) SaveCheckpoint(ctx context.Context, collection string, checkpoint int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (collection, checkpoint) VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET checkpoint = excluded.checkpoint
	`, collection, checkpoint)
	if err != nil {
		return fmt.Errorf("ошибка сохранения контрольной точки: %w", err)
	}
	return nil
}

// LoadClock возвращает сохраненное значение логических часов
func (s *Storage) LoadClock(ctx context.Context) (int64, error) {
	value, ok, err := s.loadState(ctx, stateKeyClock)
	if err != nil || !ok {
		return 0, err
	}

	clock, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ошибка разбора логических часов: %w", err)
	}
	return clock, nil
}

// SaveClock сохраняет значение логических часов
func (s *Storage) SaveClock(ctx context.Context, value int64) error {
	return s.saveState(ctx, stateKeyClock, strconv.FormatInt(value, 10))
}

// DeviceID возвращает идентификатор устройства, создавая его при первом обращении
func (s *Storage) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.loadState(ctx, stateKeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.saveState(ctx, stateKeyDeviceID, id); err != nil {
		return "", err
	}
	s.log.Info("создан идентификатор устройства", "device_id", id)

	return id, nil
}

func (s *Storage) loadState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка получения состояния %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Storage) saveState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения состояния %s: %w", key, err)
	}
	return nil
}
