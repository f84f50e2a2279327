package conflict

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
)

// LogEntry запись журнала конфликтов
type LogEntry struct {
	ID         string               `json:"id"`
	Collection string               `json:"collection"`
	DocumentID string               `json:"document_id"`
	Strategy   string               `json:"strategy"`
	Outcome    Outcome              `json:"outcome"`
	LocalTime  time.Time            `json:"local_updated_at"`
	RemoteTime time.Time            `json:"remote_updated_at"`
	Diff       []document.FieldDiff `json:"diff,omitempty"`
	ResolvedAt time.Time            `json:"resolved_at"`
}

// Recorder постоянное хранилище журнала конфликтов
type Recorder interface {
	Record(ctx context.Context, entry LogEntry) error
	List(ctx context.Context, limit int) ([]LogEntry, error)
}

// Log кольцевой буфер последних разрешенных конфликтов
type Log struct {
	mu       sync.Mutex
	log      *slog.Logger
	capacity int
	entries  []LogEntry
	next     int
	full     bool
	recorder Recorder
}

// NewLog создает журнал вместимостью capacity (по умолчанию 100)
func NewLog(log *slog.Logger, capacity int, recorder Recorder) *Log {
	if capacity <= 0 {
		capacity = 100
	}
	return &Log{
		log:      log.With("component", "conflict_log"),
		capacity: capacity,
		entries:  make([]LogEntry, capacity),
		recorder: recorder,
	}
}

// NewEntry строит запись журнала из результата разрешения
func NewEntry(collection string, local, remote document.Document, res Resolution, at time.Time) LogEntry {
	id := remote.ID()
	if id == "" {
		id = local.ID()
	}
	return LogEntry{
		ID:         uuid.NewString(),
		Collection: collection,
		DocumentID: id,
		Strategy:   res.Strategy.String(),
		Outcome:    res.Outcome,
		LocalTime:  local.UpdatedAt(),
		RemoteTime: remote.UpdatedAt(),
		Diff:       document.DiffDocuments(local, remote),
		ResolvedAt: at.UTC(),
	}
}

// Append добавляет запись, вытесняя самую старую при переполнении.
// Ошибка постоянного хранилища только логируется.
func (l *Log) Append(ctx context.Context, entry LogEntry) {
	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	if l.recorder == nil {
		return
	}
	if err := l.recorder.Record(ctx, entry); err != nil {
		l.log.Error("failed to persist conflict log entry",
			"collection", entry.Collection, "document_id", entry.DocumentID, "error", err)
	}
}

// Entries возвращает записи от старых к новым
func (l *Log) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]LogEntry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}

	out := make([]LogEntry, 0, l.capacity)
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Len количество записей в буфере
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full {
		return l.capacity
	}
	return l.next
}
