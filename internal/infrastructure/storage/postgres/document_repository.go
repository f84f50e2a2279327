package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
	"assistsync/internal/domain/sync"
)

// Ключи метаданных в удаленном формате
const (
	remoteID           = "id"
	remoteUpdatedAt    = "updated_at"
	remoteIsDeleted    = "is_deleted"
	remoteLogicalClock = "logical_clock"
)

const defaultFetchLimit = 50

// seqLockKey ключ advisory-блокировки: записи выдают sync_seq в порядке фиксации
const seqLockKey = 7368411

var ErrMissingID = errors.New("document has no id")

// DocumentRepository хранит документы всех коллекций в одной таблице
// с разделением по пользователю. sync_seq служит контрольной точкой.
type DocumentRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentRepository(storage *Storage, log *slog.Logger) *DocumentRepository {
	return &DocumentRepository{
		pool: storage.Pool(),
		log:  log.With("component", "document_repository"),
	}
}

func (r *DocumentRepository) FetchChanges(ctx context.Context, userID, collection string, checkpoint int64, limit int) (*sync.Batch, error) {
	const query = `
		SELECT data, sync_seq
		FROM sync_documents
		WHERE user_id = $1 AND collection = $2 AND sync_seq > $3
		ORDER BY sync_seq
		LIMIT $4`

	if limit <= 0 {
		limit = defaultFetchLimit
	}

	rows, err := r.pool.Query(ctx, query, userID, collection, checkpoint, limit+1)
	if err != nil {
		r.log.Error("failed to fetch changes",
			"user_id", userID, "collection", collection, "checkpoint", checkpoint, "error", err)
		return nil, fmt.Errorf("fetch changes: %w", err)
	}
	defer rows.Close()

	batch := &sync.Batch{Documents: make([]document.Document, 0, limit), Checkpoint: checkpoint}
	for rows.Next() {
		var (
			data []byte
			seq  int64
		)
		if err := rows.Scan(&data, &seq); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if len(batch.Documents) == limit {
			batch.HasMore = true
			break
		}

		var doc document.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		batch.Documents = append(batch.Documents, doc)
		batch.Checkpoint = seq
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch changes: %w", err)
	}

	return batch, nil
}

// UpsertDocuments сохраняет пакет документов в удаленном формате одной транзакцией.
// Владельцем всегда становится userID.
func (r *DocumentRepository) UpsertDocuments(ctx context.Context, userID, collection string, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO sync_documents (user_id, collection, id, data, updated_at, is_deleted, logical_clock)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (user_id, collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			is_deleted = EXCLUDED.is_deleted,
			logical_clock = EXCLUDED.logical_clock,
			sync_seq = nextval('sync_documents_seq'),
			stored_at = now()`

	batch := &pgx.Batch{}
	for _, doc := range docs {
		id := doc.String(remoteID)
		if id == "" {
			return 0, ErrMissingID
		}

		owned := doc.Clone()
		owned["user_id"] = userID
		data, err := json.Marshal(owned)
		if err != nil {
			return 0, fmt.Errorf("encode document %s: %w", id, err)
		}

		batch.Queue(query, userID, collection, id, string(data),
			nullTime(owned.Time(remoteUpdatedAt)), owned.Bool(remoteIsDeleted), owned.Int(remoteLogicalClock))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", seqLockKey); err != nil {
		return 0, fmt.Errorf("lock sequence: %w", err)
	}

	results := tx.SendBatch(ctx, batch)
	for range docs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.log.Error("failed to upsert documents",
				"user_id", userID, "collection", collection, "count", len(docs), "error", err)
			return 0, fmt.Errorf("upsert documents: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("upsert documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return len(docs), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
