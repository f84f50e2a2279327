package sync

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/sync"
)

type Handler struct {
	service    sync.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service sync.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.getChangesOp(), h.getChanges)
	huma.Register(api, h.batchSyncOp(), h.batchSync)
}

func (h *Handler) getChanges(ctx context.Context, input *getChangesInput) (*getChangesOutput, error) {
	response, err := h.service.GetChanges(ctx, input.Collection, input.Body)
	if err != nil {
		return nil, h.statusError(input.Collection, err, nil)
	}

	return &getChangesOutput{
		Body: *response,
	}, nil
}

func (h *Handler) batchSync(ctx context.Context, input *batchSyncInput) (*batchSyncOutput, error) {
	response, err := h.service.ProcessBatch(ctx, input.Collection, input.Body)
	if err != nil {
		var details []string
		if response != nil {
			details = response.Errors
		}
		return nil, h.statusError(input.Collection, err, details)
	}

	return &batchSyncOutput{
		Body: *response,
	}, nil
}

// statusError переводит класс ошибки синхронизации в HTTP-статус:
// неизвестная коллекция 404, валидация 422, политика 403, остальное 503
func (h *Handler) statusError(collection string, err error, details []string) error {
	errs := make([]error, 0, len(details))
	for _, d := range details {
		errs = append(errs, errors.New(d))
	}

	switch {
	case errors.Is(err, sync.ErrUnknownCollection):
		return huma.Error404NotFound("unknown collection "+collection, err)
	case errors.Is(err, sync.ErrUserNotScoped):
		return huma.Error400BadRequest("user scope is required", err)
	case sync.KindOf(err) == sync.KindValidation:
		if len(errs) == 0 {
			errs = append(errs, err)
		}
		return huma.Error422UnprocessableEntity("validation failed", errs...)
	case sync.KindOf(err) == sync.KindPolicy:
		return huma.Error403Forbidden(err.Error())
	}

	h.log.Error("sync request failed", "collection", collection, "error", err)
	return huma.Error503ServiceUnavailable("document store unavailable")
}
