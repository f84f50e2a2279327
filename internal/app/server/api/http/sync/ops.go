package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) getChangesOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-get-changes",
		Method:      http.MethodPost,
		Path:        "/api/sync/{collection}/changes",
		Summary:     "Получить изменения коллекции",
		Description: "Возвращает документы, измененные после контрольной точки",
		Tags:        []string{"sync"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) batchSyncOp() huma.Operation {
	return huma.Operation{
		OperationID:   "sync-batch",
		Method:        http.MethodPost,
		Path:          "/api/sync/{collection}/batch",
		Summary:       "Пакетная запись документов",
		Description:   "Принимает пакет документов коллекции. Пакет с невалидным документом отклоняется целиком",
		Tags:          []string{"sync"},
		Middlewares:   h.middleware,
		DefaultStatus: http.StatusOK,
	}
}
