package client

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slog"

	"assistsync/internal/app/client/config"
	"assistsync/internal/domain/clock"
	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
	"assistsync/internal/domain/health"
	"assistsync/internal/domain/queue"
	"assistsync/internal/domain/sync"
	"assistsync/internal/infrastructure/storage/postgres"
	"assistsync/internal/infrastructure/storage/sqlite"
)

// App клиентское приложение: локальная база, удаленное хранилище и движок синхронизации
type App struct {
	config    *config.Config
	log       *slog.Logger
	storage   *sqlite.Storage
	conflicts *sqlite.Conflicts
	remote    sync.RemoteStore
	listener  *postgres.Listener
	pg        *postgres.Storage
	registry  *collection.Registry
	engine    *sync.Engine
	deviceID  string
	wg        gosync.WaitGroup
}

// New открывает локальную базу, восстанавливает очередь и часы и собирает движок
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	storage, err := sqlite.New(cfg.DataPath, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации локальной базы: %w", err)
	}

	app := &App{
		config:    cfg,
		log:       log.With("component", "client_app"),
		storage:   storage,
		conflicts: storage.Conflicts(cfg.Sync.ConflictLogSize),
		registry:  collection.MustDefault(cfg.Sync.BatchSize),
	}

	if err := app.init(context.Background()); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (a *App) init(ctx context.Context) error {
	deviceID, err := a.storage.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения идентификатора устройства: %w", err)
	}
	a.deviceID = deviceID

	seed, err := a.storage.LoadClock(ctx)
	if err != nil {
		return fmt.Errorf("ошибка загрузки логических часов: %w", err)
	}

	remote, err := a.newRemote()
	if err != nil {
		return err
	}
	a.remote = remote

	engineCfg := a.config.Engine()

	var tracker conflict.FieldTracker = conflict.NewMemoryTracker()
	if a.config.PersistFieldTimestamps {
		tracker = a.storage.FieldTracker()
	}

	queueManager := queue.NewManager(a.log, queue.Config{
		MaxRetries:  engineCfg.MaxRetries,
		BackoffBase: engineCfg.BackoffBase,
		BackoffMax:  engineCfg.BackoffMax,
		Retryable:   sync.IsRetryable,
	}, a.storage.Queue())
	if err := queueManager.Load(ctx); err != nil {
		return fmt.Errorf("ошибка загрузки очереди отправки: %w", err)
	}

	a.engine, err = sync.NewEngine(sync.Deps{
		Log:       a.log,
		Local:     a.storage,
		Remote:    remote,
		State:     a.storage,
		Registry:  a.registry,
		DeviceID:  deviceID,
		Clock:     clock.New(seed),
		Tracker:   tracker,
		Queue:     queueManager,
		Conflicts: conflict.NewLog(a.log, engineCfg.ConflictLogSize, a.conflicts),
	}, engineCfg)
	if err != nil {
		return fmt.Errorf("ошибка создания движка синхронизации: %w", err)
	}

	a.log.Info("Клиент инициализирован",
		"device_id", deviceID,
		"remote_mode", a.config.RemoteMode,
		"clock", seed,
	)
	return nil
}

func (a *App) newRemote() (sync.RemoteStore, error) {
	switch a.config.RemoteMode {
	case config.RemotePostgres:
		pg, err := postgres.New(postgres.Config{DatabaseURI: a.config.DatabaseURI}, a.log)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к удаленной базе: %w", err)
		}
		a.pg = pg
		a.listener = postgres.NewListener(pg, a.log)
		return postgres.NewRemote(postgres.NewDocumentRepository(pg, a.log), a.listener, a.config.UserID), nil
	default:
		return NewHTTPRemote(a.config.BaseURL(), a.config.UserID, a.log), nil
	}
}

// Run запускает фоновую синхронизацию и блокируется до отмены ctx
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.listener != nil && a.config.Sync.Realtime {
		a.goRun(ctx, "change_listener", a.listener.Run)
	}

	if a.config.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(NewCollector(a.engine))
		a.goRun(ctx, "metrics", func(ctx context.Context) error {
			return ServeMetrics(ctx, a.config.MetricsAddr, reg, a.log)
		})
	}

	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.log.Info("Синхронизация запущена", "interval", a.config.Engine().SyncInterval)

	<-ctx.Done()

	a.engine.Stop()
	cancel()
	a.wg.Wait()
	a.log.Info("Синхронизация остановлена")

	return nil
}

func (a *App) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Фоновая задача завершилась с ошибкой", "task", name, "error", err)
		}
	}()
}

// SyncOnce выполняет один цикл pull + push
func (a *App) SyncOnce(ctx context.Context) *sync.CycleResult {
	return a.engine.SyncOnce(ctx)
}

// Pull только получает изменения с сервера
func (a *App) Pull(ctx context.Context) *sync.CycleResult {
	return a.engine.PullAllCollections(ctx)
}

// Push только отправляет очередь
func (a *App) Push(ctx context.Context) *sync.CycleResult {
	return a.engine.PushAllCollections(ctx)
}

// PutDocument сохраняет документ локально и ставит его в очередь отправки
func (a *App) PutDocument(ctx context.Context, collectionName, id string, doc document.Document) (document.Document, error) {
	if doc == nil {
		doc = document.Document{}
	}
	if doc.String(document.FieldUserID) == "" {
		doc[document.FieldUserID] = a.config.UserID
	}
	return a.engine.EnqueueLocalChange(ctx, collectionName, id, doc)
}

// DeleteDocument помечает документ удаленным и ставит изменение в очередь
func (a *App) DeleteDocument(ctx context.Context, collectionName, id string) (document.Document, error) {
	doc, err := a.storage.Read(ctx, collectionName, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("документ не найден: %s/%s", collectionName, id)
	}

	doc[document.FieldIsDeleted] = true
	delete(doc, document.FieldDeletedAt)
	return a.engine.EnqueueLocalChange(ctx, collectionName, id, doc)
}

// GetDocument возвращает документ из локальной базы
func (a *App) GetDocument(ctx context.Context, collectionName, id string) (document.Document, error) {
	if _, err := a.registry.Get(collectionName); err != nil {
		return nil, err
	}
	doc, err := a.storage.Read(ctx, collectionName, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("документ не найден: %s/%s", collectionName, id)
	}
	return doc, nil
}

// ListDocuments возвращает документы коллекции из локальной базы
func (a *App) ListDocuments(ctx context.Context, collectionName string, includeDeleted bool) ([]document.Document, error) {
	if _, err := a.registry.Get(collectionName); err != nil {
		return nil, err
	}
	return a.storage.List(ctx, collectionName, includeDeleted)
}

// CollectionStatus состояние синхронизации одной коллекции
type CollectionStatus struct {
	Name       string                  `json:"name"`
	Direction  collection.Direction    `json:"direction"`
	Strategy   string                  `json:"strategy"`
	Checkpoint int64                   `json:"checkpoint"`
	Queue      queue.Stats             `json:"queue"`
	Health     health.CollectionHealth `json:"health"`
}

// Status состояние клиента
type Status struct {
	DeviceID    string             `json:"device_id"`
	Clock       int64              `json:"logical_clock"`
	RemoteMode  string             `json:"remote_mode"`
	Collections []CollectionStatus `json:"collections"`
}

// Status собирает состояние очереди, предохранителей и контрольных точек
func (a *App) Status(ctx context.Context) (*Status, error) {
	clockValue, err := a.storage.LoadClock(ctx)
	if err != nil {
		return nil, err
	}

	stats := a.engine.QueueStats()
	breakers := a.engine.Health()

	status := &Status{
		DeviceID:   a.deviceID,
		Clock:      clockValue,
		RemoteMode: a.config.RemoteMode,
	}
	for _, cfg := range a.registry.ByPriority() {
		checkpoint, err := a.storage.LoadCheckpoint(ctx, cfg.Name)
		if err != nil {
			return nil, err
		}

		h, ok := breakers[cfg.Name]
		if !ok {
			h = health.CollectionHealth{State: health.Closed}
		}

		status.Collections = append(status.Collections, CollectionStatus{
			Name:       cfg.Name,
			Direction:  cfg.Direction,
			Strategy:   cfg.Strategy.String(),
			Checkpoint: checkpoint,
			Queue:      stats[cfg.Name],
			Health:     h,
		})
	}

	return status, nil
}

// Conflicts последние разрешенные конфликты из локального журнала
func (a *App) Conflicts(ctx context.Context, limit int) ([]conflict.LogEntry, error) {
	return a.conflicts.List(ctx, limit)
}

// DeadEntries недоставленные изменения; пустое имя означает все коллекции
func (a *App) DeadEntries(collectionName string) []queue.Entry {
	return a.engine.DeadEntries(collectionName)
}

// Requeue возвращает недоставленное изменение в очередь
func (a *App) Requeue(ctx context.Context, collectionName, id string) error {
	return a.engine.Requeue(ctx, collectionName, id)
}

// Recover ставит в очередь локальные изменения после since, которых нет в очереди
func (a *App) Recover(ctx context.Context, since time.Time) (int, error) {
	return a.engine.RecoverLocalChanges(ctx, since)
}

// CheckConnection проверяет доступность удаленного хранилища
func (a *App) CheckConnection(ctx context.Context) error {
	if r, ok := a.remote.(*HTTPRemote); ok {
		return r.HealthCheck(ctx)
	}
	if a.pg != nil {
		return a.pg.Ping(ctx)
	}
	return nil
}

// Close закрывает локальную и удаленную базы
func (a *App) Close() {
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if err := a.storage.Close(); err != nil {
		a.log.Error("Ошибка закрытия локальной базы", "error", err)
	}
}

type appKey struct{}

// WithApp кладет приложение в контекст команды
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// FromContext достает приложение из контекста команды
func FromContext(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey{}).(*App)
	if !ok || app == nil {
		return nil, errors.New("приложение не инициализировано")
	}
	return app, nil
}

// DeviceID идентификатор устройства
func (a *App) DeviceID() string {
	return a.deviceID
}

// Config текущая конфигурация клиента
func (a *App) Config() *config.Config {
	return a.config
}
