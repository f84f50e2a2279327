package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger проверяет доступность хранилища документов
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log         *slog.Logger
	db          Pinger
	collections []string
	middleware  huma.Middlewares
}

// NewHandler collections - имена коллекций, которые принимает API синхронизации
func NewHandler(log *slog.Logger, db Pinger, collections []string, middleware huma.Middlewares) *Handler {
	return &Handler{
		log:         log,
		db:          db,
		collections: collections,
		middleware:  middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	out := &Output{Body: Response{Status: "OK", Collections: h.collections}}
	if h.db == nil {
		return out, nil
	}

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("database ping failed", "error", err)
		return nil, huma.Error503ServiceUnavailable("database unavailable", err)
	}
	out.Body.Database = "OK"

	return out, nil
}
