package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"assistsync/internal/domain/clock"
	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
	"assistsync/internal/domain/health"
	"assistsync/internal/domain/queue"
)

// Deps зависимости движка. Необязательные компоненты создаются из Config.
type Deps struct {
	Log      *slog.Logger
	Local    LocalStore
	Remote   RemoteStore
	State    StateStore
	Registry *collection.Registry

	DeviceID    string
	Clock       *clock.Clock
	Transformer *document.Transformer
	Validator   *document.Validator
	Strategies  *conflict.Factory
	Tracker     conflict.FieldTracker
	Queue       *queue.Manager
	Health      *health.Manager
	Conflicts   *conflict.Log
	Now         func() time.Time
}

// Engine оркестратор двусторонней синхронизации
type Engine struct {
	log         *slog.Logger
	cfg         Config
	local       LocalStore
	remote      RemoteStore
	state       StateStore
	registry    *collection.Registry
	clock       *clock.Clock
	transformer *document.Transformer
	validator   *document.Validator
	strategies  *conflict.Factory
	queue       *queue.Manager
	health      *health.Manager
	conflicts   *conflict.Log
	now         func() time.Time

	// cycleMu сериализует циклы синхронизации
	cycleMu gosync.Mutex

	runMu   gosync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	subs    gosync.WaitGroup
	trigger chan struct{}
}

// NewEngine создает движок синхронизации
func NewEngine(deps Deps, cfg Config) (*Engine, error) {
	if deps.Local == nil || deps.Remote == nil || deps.State == nil {
		return nil, errors.New("sync engine requires local, remote and state stores")
	}
	if deps.Registry == nil {
		return nil, errors.New("sync engine requires collection registry")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Clock == nil {
		deps.Clock = clock.New(0)
	}

	cfg = cfg.withDefaults()
	log := deps.Log

	if deps.Transformer == nil {
		deps.Transformer = document.NewTransformer(log, document.DefaultOverrides())
	}
	if deps.Validator == nil {
		deps.Validator = document.NewValidator(document.DefaultRequiredFields())
	}
	if deps.Strategies == nil {
		deps.Strategies = conflict.NewFactory(conflict.Deps{
			Clock:    deps.Clock,
			DeviceID: deps.DeviceID,
			Tracker:  deps.Tracker,
			Now:      deps.Now,
		})
	}
	if deps.Queue == nil {
		deps.Queue = queue.NewManager(log, queue.Config{
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.BackoffBase,
			BackoffMax:  cfg.BackoffMax,
			Retryable:   IsRetryable,
		}, nil).WithClock(deps.Now)
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(log, health.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerReset,
		}).WithClock(deps.Now)
	}
	if deps.Conflicts == nil {
		deps.Conflicts = conflict.NewLog(log, cfg.ConflictLogSize, nil)
	}

	return &Engine{
		log:         log.With("component", "sync_engine"),
		cfg:         cfg,
		local:       deps.Local,
		remote:      deps.Remote,
		state:       deps.State,
		registry:    deps.Registry,
		clock:       deps.Clock,
		transformer: deps.Transformer,
		validator:   deps.Validator,
		strategies:  deps.Strategies,
		queue:       deps.Queue,
		health:      deps.Health,
		conflicts:   deps.Conflicts,
		now:         deps.Now,
		trigger:     make(chan struct{}, 1),
	}, nil
}

// SyncOnce выполняет полный цикл: сначала pull, затем push
func (e *Engine) SyncOnce(ctx context.Context) *CycleResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	result := e.pullAll(ctx)
	result.merge(e.pushAll(ctx))
	result.StartedAt = start
	result.Duration = e.now().Sub(start)

	if err := result.Err(); err != nil {
		e.log.Warn("sync cycle finished with errors", "duration", result.Duration, "error", err)
	} else {
		e.log.Debug("sync cycle finished", "duration", result.Duration)
	}
	return result
}

// PullAllCollections загружает изменения всех коллекций, доступных для чтения
func (e *Engine) PullAllCollections(ctx context.Context) *CycleResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	return e.pullAll(ctx)
}

// PushAllCollections отправляет очередь всех коллекций, доступных для записи
func (e *Engine) PushAllCollections(ctx context.Context) *CycleResult {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	return e.pushAll(ctx)
}

// EnqueueLocalChange проверяет локальное изменение, сохраняет его локально
// и ставит в очередь отправки
func (e *Engine) EnqueueLocalChange(ctx context.Context, name, id string, doc document.Document) (document.Document, error) {
	const op = "enqueue"

	cfg, err := e.registry.Get(name)
	if err != nil {
		return nil, NewError(op, name, KindValidation, err)
	}
	if !cfg.CanPush() {
		return nil, NewError(op, name, KindPolicy,
			fmt.Errorf("%w: collection %s is %s", ErrPolicy, name, cfg.Direction))
	}

	doc = doc.Clone()
	if doc == nil {
		doc = document.Document{}
	}
	if id != "" {
		doc[document.FieldID] = id
	}

	if res := e.validator.ValidateSyncDocument(name, doc); !res.Valid {
		return nil, NewError(op, name, KindValidation, res.Err())
	}

	strategy, err := e.strategies.For(name, cfg.Strategy)
	if err != nil {
		return nil, NewError(op, name, KindValidation, err)
	}
	stamped, err := strategy.PrepareForPush(doc)
	if err != nil {
		return nil, classify(op, name, err)
	}

	previous, err := e.local.Read(ctx, name, stamped.ID())
	if err != nil {
		return nil, NewError(op, name, KindTransient, fmt.Errorf("read local: %w", err))
	}
	if merger, ok := strategy.(*conflict.Merge); ok && previous != nil {
		merger.TrackChanges(previous, stamped, e.now())
	}

	if err := e.local.Write(ctx, name, stamped); err != nil {
		return nil, NewError(op, name, KindTransient, fmt.Errorf("write local: %w", err))
	}
	if err := e.queue.Enqueue(ctx, name, stamped.ID(), stamped); err != nil {
		return nil, NewError(op, name, KindTransient, err)
	}
	e.saveClock(ctx)

	e.Trigger()
	return stamped, nil
}

// RecoverLocalChanges ставит в очередь локальные документы, измененные после since
// и отсутствующие в очереди (например, записанные в обход движка)
func (e *Engine) RecoverLocalChanges(ctx context.Context, since time.Time) (int, error) {
	total := 0
	for _, cfg := range e.registry.ByPriority() {
		if !cfg.CanPush() {
			continue
		}
		docs, err := e.local.EnumerateChangesSince(ctx, cfg.Name, since)
		if err != nil {
			return total, NewError("recover", cfg.Name, KindTransient, err)
		}
		for _, doc := range docs {
			if _, pending := e.queue.Pending(cfg.Name, doc.ID()); pending {
				continue
			}
			if err := e.queue.Enqueue(ctx, cfg.Name, doc.ID(), doc); err != nil {
				return total, NewError("recover", cfg.Name, KindTransient, err)
			}
			total++
		}
	}
	if total > 0 {
		e.log.Info("recovered local changes", "count", total, "since", since)
		e.Trigger()
	}
	return total, nil
}

// QueueStats состояние очереди по коллекциям
func (e *Engine) QueueStats() map[string]queue.Stats {
	return e.queue.Stats()
}

// DeadEntries записи, исчерпавшие попытки отправки
func (e *Engine) DeadEntries(collection string) []queue.Entry {
	return e.queue.DeadEntries(collection)
}

// Requeue возвращает мертвую запись в очередь
func (e *Engine) Requeue(ctx context.Context, collection, id string) error {
	if err := e.queue.Requeue(ctx, collection, id); err != nil {
		return err
	}
	e.Trigger()
	return nil
}

// ConflictLogs последние разрешенные конфликты, от старых к новым
func (e *Engine) ConflictLogs() []conflict.LogEntry {
	return e.conflicts.Entries()
}

// Health состояние предохранителей по коллекциям
func (e *Engine) Health() map[string]health.CollectionHealth {
	return e.health.Snapshot()
}

// remoteContext контекст удаленного вызова: не прерывается остановкой движка,
// но ограничен таймаутом
func (e *Engine) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RemoteTimeout)
}

func (e *Engine) saveClock(ctx context.Context) {
	if err := e.state.SaveClock(context.WithoutCancel(ctx), e.clock.Current()); err != nil {
		e.log.Error("failed to persist logical clock", "error", err)
	}
}
