// HTTP API сервера синхронизации:
//
//GET  /api/v1/health                     # Проверка доступности
//POST /api/sync/{collection}/changes     # Изменения после контрольной точки (X-User-ID)
//POST /api/sync/{collection}/batch       # Пакетная запись документов (X-User-ID)
//GET  /api/sync/subscribe?collection=... # Уведомления об изменениях по websocket (X-User-ID)

package api

import (
	"net/http"

	healthAPI "assistsync/internal/app/server/api/http/health"
	"assistsync/internal/app/server/api/http/middleware"
	"assistsync/internal/app/server/api/http/middleware/logger"
	"assistsync/internal/app/server/api/http/middleware/scope"
	"assistsync/internal/app/server/api/http/realtime"
	syncAPI "assistsync/internal/app/server/api/http/sync"
	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/sync"
	"assistsync/internal/infrastructure/storage/postgres"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

// Options параметры сборки API
type Options struct {
	BatchSize      int
	MaxSyncRecords int
	// Listener источник уведомлений для websocket, nil отключает подписку
	Listener realtime.Source
}

type Handlers struct {
	Health   *healthAPI.Handler
	Sync     *syncAPI.Handler
	Realtime http.Handler
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register
func New(storage *postgres.Storage, opts Options, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	config := huma.DefaultConfig("Assistsync API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(storage, opts, log)
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)
	if h.Realtime != nil {
		mux.Handle(realtime.Path, h.Realtime)
	}

	return mux
}

func handlers(storage *postgres.Storage, opts Options, log *slog.Logger) *Handlers {
	scopeMW := scope.New(log)
	loggerMW := logger.New(log)
	registry := collection.MustDefault(opts.BatchSize)

	public := middleware.NewChain().
		Use(loggerMW.Middleware())
	scoped := middleware.NewChain().
		Use(loggerMW.Middleware()).
		Use(scopeMW.Middleware()).
		UseHTTP(loggerMW.Handler).
		UseHTTP(scopeMW.Handler)

	healthHandler := healthAPI.NewHandler(log, storage, registry.Names(), public.Operations())

	documentRepo := postgres.NewDocumentRepository(storage, log)
	syncService := sync.NewService(documentRepo, registry, log, &sync.ServiceConfig{
		BatchSize:      opts.BatchSize,
		MaxSyncRecords: opts.MaxSyncRecords,
	})
	syncHandler := syncAPI.NewHandler(syncService, log, scoped.Operations())

	var realtimeHandler http.Handler
	if opts.Listener != nil {
		realtimeHandler = scoped.Handler(realtime.NewHandler(opts.Listener, registry, log))
	}

	return &Handlers{
		Health:   healthHandler,
		Sync:     syncHandler,
		Realtime: realtimeHandler,
	}
}
