package health

import (
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

type breaker struct {
	CollectionHealth
	trial bool
}

// Manager предохранители по коллекциям: сбои одной коллекции не блокируют остальные
type Manager struct {
	mu       sync.Mutex
	log      *slog.Logger
	cfg      Config
	now      func() time.Time
	breakers map[string]*breaker
}

func NewManager(log *slog.Logger, cfg Config) *Manager {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Manager{
		log:      log.With("component", "sync_health"),
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

// WithClock подменяет источник времени
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) get(collection string) *breaker {
	b, ok := m.breakers[collection]
	if !ok {
		b = &breaker{CollectionHealth: CollectionHealth{State: Closed}}
		m.breakers[collection] = b
	}
	return b
}

// Allow сообщает, можно ли синхронизировать коллекцию сейчас.
// По истечении таймаута открытый предохранитель переходит в half-open
// и пропускает ровно одну пробную попытку.
func (m *Manager) Allow(collection string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(collection)
	switch b.State {
	case Closed:
		return true
	case Open:
		if m.now().Sub(b.OpenedAt) < m.cfg.ResetTimeout {
			return false
		}
		b.State = HalfOpen
		b.trial = true
		m.log.Info("circuit half-open, trial request allowed", "collection", collection)
		return true
	case HalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	}
	return false
}

// RecordSuccess закрывает предохранитель и сбрасывает счетчик сбоев
func (m *Manager) RecordSuccess(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(collection)
	if b.State != Closed {
		m.log.Info("circuit closed", "collection", collection)
	}
	b.State = Closed
	b.trial = false
	b.ConsecutiveFailures = 0
	b.LastSuccessAt = m.now()
}

// RecordFailure учитывает временный сбой; при достижении порога или
// неудачной пробе предохранитель открывается
func (m *Manager) RecordFailure(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(collection)
	now := m.now()
	b.ConsecutiveFailures++
	b.LastFailureAt = now

	if b.State == HalfOpen || (b.State == Closed && b.ConsecutiveFailures >= m.cfg.Threshold) {
		b.State = Open
		b.OpenedAt = now
		b.trial = false
		m.log.Warn("circuit opened",
			"collection", collection, "failures", b.ConsecutiveFailures, "reset_after", m.cfg.ResetTimeout)
	}
}

// Release завершает пробную попытку, исход которой не говорит о здоровье
// удаленной стороны. Предохранитель снова открывается с новым отсчетом.
func (m *Manager) Release(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(collection)
	if b.State != HalfOpen || !b.trial {
		return
	}
	b.State = Open
	b.OpenedAt = m.now()
	b.trial = false
	m.log.Info("circuit trial released", "collection", collection, "reset_after", m.cfg.ResetTimeout)
}

// RecordDead учитывает записи очереди, исчерпавшие попытки
func (m *Manager) RecordDead(collection string, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.get(collection).DeadEntries += n
}

func (m *Manager) State(collection string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.get(collection).State
}

// Snapshot копия состояния всех известных коллекций
func (m *Manager) Snapshot() map[string]CollectionHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]CollectionHealth, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.CollectionHealth
	}
	return out
}
