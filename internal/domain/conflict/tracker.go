package conflict

import (
	"sync"
	"time"
)

// FieldTracker хранит время последнего локального изменения отдельных полей
type FieldTracker interface {
	Track(collection, documentID, field string, at time.Time)
	Timestamp(collection, documentID, field string) (time.Time, bool)
}

type fieldKey struct {
	collection string
	documentID string
	field      string
}

// MemoryTracker хранит метки в памяти процесса, после перезапуска они теряются
type MemoryTracker struct {
	mu    sync.RWMutex
	times map[fieldKey]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{times: make(map[fieldKey]time.Time)}
}

func (t *MemoryTracker) Track(collection, documentID, field string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.times[fieldKey{collection, documentID, field}] = at
}

func (t *MemoryTracker) Timestamp(collection, documentID, field string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	at, ok := t.times[fieldKey{collection, documentID, field}]
	return at, ok
}
