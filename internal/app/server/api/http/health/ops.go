package health

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Path маршрут проверки доступности сервера синхронизации
const Path = "/api/v1/health"

func (h *Handler) healthCheckOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-health",
		Method:      http.MethodGet,
		Path:        Path,
		Summary:     "Sync server health",
		Description: "Checks the remote document store and lists the collections accepted by the sync API",
		Tags:        []string{"health"},
		Errors:      []int{http.StatusServiceUnavailable},
		Middlewares: h.middleware,
	}
}
