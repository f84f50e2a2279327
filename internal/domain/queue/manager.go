package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
)

// Config параметры повторных попыток
type Config struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Retryable сообщает, можно ли повторить отправку после ошибки.
	// По умолчанию повторяются все ошибки.
	Retryable func(error) bool
}

// Manager очередь локальных изменений, ожидающих отправки.
// Записи с одинаковым ключом схлопываются, неудачные отправки повторяются
// с экспоненциальной задержкой, после MaxRetries запись становится мертвой.
type Manager struct {
	mu      sync.Mutex
	log     *slog.Logger
	cfg     Config
	repo    Repository
	now     func() time.Time
	seq     uint64
	entries map[Key]*Entry
	order   map[string][]Key
	dead    map[Key]Entry
}

// NewManager создает очередь. repo может быть nil - тогда очередь живет только в памяти.
func NewManager(log *slog.Logger, cfg Config, repo Repository) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	return &Manager{
		log:     log.With("component", "push_queue"),
		cfg:     cfg,
		repo:    repo,
		now:     time.Now,
		entries: make(map[Key]*Entry),
		order:   make(map[string][]Key),
		dead:    make(map[Key]Entry),
	}
}

// WithClock подменяет источник времени
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Backoff задержка перед повтором после attempt неудачных попыток:
// min(base * 2^attempt, max)
func (m *Manager) Backoff(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     m.cfg.BackoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         m.cfg.BackoffMax,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
		if d >= m.cfg.BackoffMax {
			return m.cfg.BackoffMax
		}
	}
	return min(d, m.cfg.BackoffMax)
}

// Load восстанавливает очередь из хранилища
func (m *Manager) Load(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	stored, err := m.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load push queue: %w", err)
	}

	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].EnqueuedAt.Before(stored[j].EnqueuedAt)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range stored {
		e := e
		key := e.Key()
		if e.State == StateDead {
			m.dead[key] = e
			continue
		}
		if _, exists := m.entries[key]; exists {
			continue
		}
		m.seq++
		e.seq = m.seq
		e.State = StatePending
		m.entries[key] = &e
		m.order[e.Collection] = append(m.order[e.Collection], key)
	}

	m.log.Info("push queue loaded", "pending", len(m.entries), "dead", len(m.dead))
	return nil
}

// Enqueue ставит изменение в очередь. Существующая ожидающая запись получает
// новые данные, сохраняя место в очереди и расписание повторов.
func (m *Manager) Enqueue(ctx context.Context, collection, documentID string, payload document.Document) error {
	if collection == "" || documentID == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	now := m.now()
	key := Key{Collection: collection, DocumentID: documentID}
	m.seq++

	e, exists := m.entries[key]
	if exists {
		e.Payload = payload.Clone()
		e.UpdatedAt = now
		e.seq = m.seq
	} else {
		e = &Entry{
			Collection:    collection,
			DocumentID:    documentID,
			Payload:       payload.Clone(),
			NextAttemptAt: now,
			EnqueuedAt:    now,
			UpdatedAt:     now,
			State:         StatePending,
			seq:           m.seq,
		}
		m.entries[key] = e
		m.order[collection] = append(m.order[collection], key)
	}
	snapshot := *e
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to persist queue entry %s/%s: %w", collection, documentID, err)
		}
	}
	return nil
}

// Ready количество записей коллекции, готовых к отправке
func (m *Manager) Ready(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for _, key := range m.order[collection] {
		e := m.entries[key]
		if !e.inFlight && !e.NextAttemptAt.After(now) {
			n++
		}
	}
	return n
}

// Drain отправляет до batchSize готовых записей коллекции в порядке FIFO
func (m *Manager) Drain(ctx context.Context, collection string, batchSize int, send SendFunc) (DrainResult, error) {
	taken := m.take(collection, batchSize)
	if len(taken) == 0 {
		return DrainResult{}, nil
	}

	sendErr := send(ctx, taken)

	if sendErr == nil {
		m.complete(ctx, taken)
		return DrainResult{Sent: len(taken)}, nil
	}

	dead := m.fail(ctx, taken, sendErr)
	return DrainResult{Failed: len(taken), Dead: dead}, sendErr
}

func (m *Manager) take(collection string, batchSize int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []Entry
	for _, key := range m.order[collection] {
		if batchSize > 0 && len(out) >= batchSize {
			break
		}
		e := m.entries[key]
		if e.inFlight || e.NextAttemptAt.After(now) {
			continue
		}
		e.inFlight = true
		snapshot := *e
		snapshot.Payload = e.Payload.Clone()
		out = append(out, snapshot)
	}
	return out
}

func (m *Manager) complete(ctx context.Context, sent []Entry) {
	var removed []Key

	m.mu.Lock()
	for _, s := range sent {
		key := s.Key()
		e, ok := m.entries[key]
		if !ok {
			continue
		}
		e.inFlight = false
		// запись обновили во время отправки - новые данные остаются в очереди
		if e.seq != s.seq {
			continue
		}
		m.removeLocked(key)
		removed = append(removed, key)
	}
	m.mu.Unlock()

	if m.repo == nil {
		return
	}
	for _, key := range removed {
		if err := m.repo.Delete(ctx, key.Collection, key.DocumentID, StatePending); err != nil {
			m.log.Error("failed to delete sent queue entry",
				"collection", key.Collection, "document_id", key.DocumentID, "error", err)
		}
	}
}

func (m *Manager) fail(ctx context.Context, failed []Entry, sendErr error) []Entry {
	retryable := m.cfg.Retryable(sendErr)
	var (
		dead    []Entry
		updated []Entry
	)

	m.mu.Lock()
	now := m.now()
	for _, s := range failed {
		key := s.Key()
		e, ok := m.entries[key]
		if !ok {
			continue
		}
		e.inFlight = false
		// отправка устаревших данных не расходует попытки новой версии
		if e.seq != s.seq {
			e.Attempt = 0
			e.NextAttemptAt = now
			updated = append(updated, *e)
			continue
		}
		e.Attempt++
		e.LastError = sendErr.Error()
		e.UpdatedAt = now

		if !retryable || e.Attempt >= m.cfg.MaxRetries {
			e.State = StateDead
			m.removeLocked(key)
			m.dead[key] = *e
			dead = append(dead, *e)
			continue
		}

		e.NextAttemptAt = now.Add(m.Backoff(e.Attempt))
		updated = append(updated, *e)
	}
	m.mu.Unlock()

	for _, d := range dead {
		m.log.Warn("queue entry moved to dead set",
			"collection", d.Collection, "document_id", d.DocumentID, "attempts", d.Attempt, "error", d.LastError)
	}

	if m.repo == nil {
		return dead
	}
	for _, e := range updated {
		if err := m.repo.Save(ctx, e); err != nil {
			m.log.Error("failed to persist queue retry", "collection", e.Collection, "document_id", e.DocumentID, "error", err)
		}
	}
	for _, e := range dead {
		if err := m.repo.SaveDead(ctx, e); err != nil {
			m.log.Error("failed to persist dead queue entry", "collection", e.Collection, "document_id", e.DocumentID, "error", err)
		}
	}
	return dead
}

// Discard удаляет ожидающую запись, если локальное изменение проиграло конфликт
func (m *Manager) Discard(ctx context.Context, collection, documentID string) (bool, error) {
	key := Key{Collection: collection, DocumentID: documentID}

	m.mu.Lock()
	_, ok := m.entries[key]
	if ok {
		m.removeLocked(key)
	}
	m.mu.Unlock()

	if !ok {
		return false, nil
	}
	if m.repo != nil {
		if err := m.repo.Delete(ctx, collection, documentID, StatePending); err != nil {
			return true, fmt.Errorf("failed to delete discarded queue entry: %w", err)
		}
	}
	return true, nil
}

// Requeue возвращает мертвую запись в очередь со сброшенным счетчиком попыток
func (m *Manager) Requeue(ctx context.Context, collection, documentID string) error {
	key := Key{Collection: collection, DocumentID: documentID}

	m.mu.Lock()
	d, ok := m.dead[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, documentID)
	}
	delete(m.dead, key)

	now := m.now()
	m.seq++
	e := &Entry{
		Collection:    collection,
		DocumentID:    documentID,
		Payload:       d.Payload,
		NextAttemptAt: now,
		EnqueuedAt:    now,
		UpdatedAt:     now,
		State:         StatePending,
		seq:           m.seq,
	}
	if existing, pending := m.entries[key]; pending {
		// более свежая ожидающая запись важнее мертвой
		e = existing
	} else {
		m.entries[key] = e
		m.order[collection] = append(m.order[collection], key)
	}
	snapshot := *e
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.Delete(ctx, collection, documentID, StateDead); err != nil {
			return fmt.Errorf("failed to delete dead entry: %w", err)
		}
		if err := m.repo.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to persist requeued entry: %w", err)
		}
	}
	return nil
}

// Pending возвращает копию ожидающей записи
func (m *Manager) Pending(collection, documentID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[Key{Collection: collection, DocumentID: documentID}]
	if !ok {
		return Entry{}, false
	}
	snapshot := *e
	snapshot.Payload = e.Payload.Clone()
	return snapshot, true
}

// DeadEntries мертвые записи коллекции (пустая строка - все коллекции)
func (m *Manager) DeadEntries(collection string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.dead {
		if collection == "" || e.Collection == collection {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// Stats состояние очереди по коллекциям
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make(map[string]Stats)
	for collection, keys := range m.order {
		s := out[collection]
		s.Depth = len(keys)
		if len(keys) > 0 {
			s.OldestPendingAge = now.Sub(m.entries[keys[0]].EnqueuedAt)
		}
		out[collection] = s
	}
	for key := range m.dead {
		s := out[key.Collection]
		s.Dead++
		out[key.Collection] = s
	}
	return out
}

func (m *Manager) removeLocked(key Key) {
	delete(m.entries, key)
	keys := m.order[key.Collection]
	for i, k := range keys {
		if k == key {
			m.order[key.Collection] = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(m.order[key.Collection]) == 0 {
		delete(m.order, key.Collection)
	}
}
