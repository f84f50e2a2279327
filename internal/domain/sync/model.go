package sync

import (
	"errors"
	"sort"
	"time"

	"assistsync/internal/domain/document"
)

// Batch страница изменений удаленного хранилища после контрольной точки
type Batch struct {
	Documents  []document.Document `json:"documents"`
	Checkpoint int64               `json:"checkpoint"`
	HasMore    bool                `json:"has_more"`
}

// Change уведомление об изменении на сервере
type Change struct {
	Collection string `json:"collection"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id,omitempty"`
	Seq        int64  `json:"seq"`
}

// Config настройки движка синхронизации
type Config struct {
	SyncInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
	RealtimeEnabled  bool
	ConflictLogSize  int
	RemoteTimeout    time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		SyncInterval:     30 * time.Second,
		BatchSize:        50,
		MaxRetries:       3,
		BackoffBase:      time.Second,
		BackoffMax:       time.Minute,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
		RealtimeEnabled:  true,
		ConflictLogSize:  100,
		RemoteTimeout:    15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = d.BreakerThreshold
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = d.BreakerReset
	}
	if c.ConflictLogSize <= 0 {
		c.ConflictLogSize = d.ConflictLogSize
	}
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = d.RemoteTimeout
	}
	return c
}

// CollectionResult итог фазы синхронизации одной коллекции
type CollectionResult struct {
	Collection string `json:"collection"`
	Pulled     int    `json:"pulled"`
	Pushed     int    `json:"pushed"`
	Conflicts  int    `json:"conflicts"`
	Dead       int    `json:"dead"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`

	Err error `json:"-"`
}

func (r *CollectionResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// CycleResult итог цикла синхронизации по всем коллекциям
type CycleResult struct {
	StartedAt   time.Time                    `json:"started_at"`
	Duration    time.Duration                `json:"duration"`
	Collections map[string]*CollectionResult `json:"collections"`
}

func newCycleResult(now time.Time) *CycleResult {
	return &CycleResult{StartedAt: now, Collections: make(map[string]*CollectionResult)}
}

func (c *CycleResult) collection(name string) *CollectionResult {
	r, ok := c.Collections[name]
	if !ok {
		r = &CollectionResult{Collection: name}
		c.Collections[name] = r
	}
	return r
}

// Err объединяет ошибки всех коллекций
func (c *CycleResult) Err() error {
	names := make([]string, 0, len(c.Collections))
	for name := range c.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := c.Collections[name].Err; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// merge добавляет результаты другого цикла (фаза push после pull)
func (c *CycleResult) merge(other *CycleResult) {
	for name, r := range other.Collections {
		dst := c.collection(name)
		dst.Pulled += r.Pulled
		dst.Pushed += r.Pushed
		dst.Conflicts += r.Conflicts
		dst.Dead += r.Dead
		dst.Skipped = dst.Skipped || r.Skipped
		if r.Err != nil {
			if dst.Err != nil {
				dst.fail(errors.Join(dst.Err, r.Err))
			} else {
				dst.fail(r.Err)
			}
		}
	}
}
