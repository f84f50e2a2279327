package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"
)

// Storage локальная база устройства: документы, очередь отправки,
// состояние синхронизации, журнал конфликтов и метки полей.
type Storage struct {
	db  *sql.DB
	log *slog.Logger
}

// New открывает (или создает) базу по пути path
func New(path string, log *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &Storage{db: db, log: log.With("component", "sqlite")}

	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *Storage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT '',
			logical_clock INTEGER NOT NULL DEFAULT 0,
			is_deleted BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(collection, updated_at);

		CREATE TABLE IF NOT EXISTS push_queue (
			collection TEXT NOT NULL,
			document_id TEXT NOT NULL,
			state TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TEXT NOT NULL DEFAULT '',
			enqueued_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (collection, document_id, state)
		);

		CREATE TABLE IF NOT EXISTS checkpoints (
			collection TEXT PRIMARY KEY,
			checkpoint INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conflict_log (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			entry TEXT NOT NULL,
			resolved_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS field_timestamps (
			collection TEXT NOT NULL,
			document_id TEXT NOT NULL,
			field TEXT NOT NULL,
			changed_at TEXT NOT NULL,
			PRIMARY KEY (collection, document_id, field)
		);
	`)

	return err
}

// Close закрывает базу
func (s *Storage) Close() error {
	return s.db.Close()
}
