package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"assistsync/internal/infrastructure/migration"
)

// Config параметры подключения к удаленному хранилищу
type Config struct {
	DatabaseURI    string
	MigrationsPath string
}

type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New открывает пул соединений и применяет миграции, если задан путь к ним
func New(cfg Config, log *slog.Logger) (*Storage, error) {
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if cfg.MigrationsPath != "" {
		mg := migration.NewMigration(cfg.MigrationsPath, cfg.DatabaseURI, migration.DefaultEngine)
		if err := mg.Up(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration error: %w", err)
		}
	}
	return &Storage{pool: pool, log: log}, nil
}

// Ping проверяет доступность базы
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}
