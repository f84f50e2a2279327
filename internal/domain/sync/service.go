package sync

import (
	"context"
	"fmt"

	"golang.org/x/exp/slog"

	"assistsync/internal/app/server/api/http/middleware/scope"
	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/document"
)

// Servicer серверная часть протокола синхронизации
type Servicer interface {
	// GetChanges возвращает изменения коллекции после контрольной точки
	GetChanges(ctx context.Context, collection string, req GetChangesRequest) (*GetChangesResponse, error)

	// ProcessBatch проверяет и записывает пакет документов
	ProcessBatch(ctx context.Context, collection string, req BatchSyncRequest) (*BatchSyncResponse, error)
}

// ServiceConfig конфигурация серверного сервиса
type ServiceConfig struct {
	BatchSize      int `json:"batch_size"`
	MaxSyncRecords int `json:"max_sync_records"`
}

// Service реализация серверного сервиса синхронизации
type Service struct {
	repo        Repository
	registry    *collection.Registry
	transformer *document.Transformer
	validator   *document.Validator
	log         *slog.Logger
	config      *ServiceConfig
}

// NewService создает новый сервис синхронизации
func NewService(repo Repository, registry *collection.Registry, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{
			BatchSize:      50,
			MaxSyncRecords: 1000,
		}
	}

	return &Service{
		repo:        repo,
		registry:    registry,
		transformer: document.NewTransformer(log, document.DefaultOverrides()),
		validator:   document.NewValidator(document.DefaultRequiredFields()),
		log:         log.With("component", "sync_service"),
		config:      config,
	}
}

// GetChanges возвращает изменения после указанной контрольной точки
func (s *Service) GetChanges(ctx context.Context, name string, req GetChangesRequest) (*GetChangesResponse, error) {
	// Получаем userID из контекста (устанавливается middleware)
	userID, ok := scope.GetUserID(ctx)
	if !ok {
		return nil, NewError("get_changes", name, KindValidation, ErrUserNotScoped)
	}

	if _, err := s.registry.Get(name); err != nil {
		return nil, NewError("get_changes", name, KindValidation, err)
	}

	// Валидация параметров
	if req.Limit <= 0 {
		req.Limit = s.config.BatchSize
	}
	if req.Limit > s.config.MaxSyncRecords {
		req.Limit = s.config.MaxSyncRecords
	}
	if req.Checkpoint < 0 {
		req.Checkpoint = 0
	}

	batch, err := s.repo.FetchChanges(ctx, userID, name, req.Checkpoint, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch changes: %w", err)
	}

	docs := batch.Documents
	if docs == nil {
		docs = []document.Document{}
	}

	return &GetChangesResponse{
		Status:     "Ok",
		Documents:  docs,
		Checkpoint: batch.Checkpoint,
		HasMore:    batch.HasMore,
	}, nil
}

// ProcessBatch проверяет документы и записывает их. Пакет отклоняется целиком,
// если хотя бы один документ не проходит проверку.
func (s *Service) ProcessBatch(ctx context.Context, name string, req BatchSyncRequest) (*BatchSyncResponse, error) {
	userID, ok := scope.GetUserID(ctx)
	if !ok {
		return nil, NewError("batch", name, KindValidation, ErrUserNotScoped)
	}

	if _, err := s.registry.Get(name); err != nil {
		return nil, NewError("batch", name, KindValidation, err)
	}

	if len(req.Documents) > s.config.MaxSyncRecords {
		return nil, NewError("batch", name, KindValidation,
			fmt.Errorf("%w: batch of %d exceeds limit %d", ErrValidation, len(req.Documents), s.config.MaxSyncRecords))
	}

	var errs []string
	docs := make([]document.Document, 0, len(req.Documents))
	for i, doc := range req.Documents {
		local := s.transformer.ToLocalFormat(name, doc)

		owner := local.String(document.FieldUserID)
		if owner == "" {
			local[document.FieldUserID] = userID
		} else if owner != userID {
			errs = append(errs, fmt.Sprintf("document %d: belongs to another user", i))
			continue
		}

		if res := s.validator.ValidateSyncDocument(name, local); !res.Valid {
			for _, e := range res.Errors {
				errs = append(errs, fmt.Sprintf("document %d: %s", i, e))
			}
			continue
		}
		docs = append(docs, s.transformer.ToRemoteFormat(name, local))
	}

	if len(errs) > 0 {
		s.log.Warn("batch rejected", "collection", name, "user_id", userID, "errors", len(errs))
		return &BatchSyncResponse{Status: "Error", Error: "validation failed", Errors: errs},
			NewError("batch", name, KindValidation, ErrValidation)
	}

	processed, err := s.repo.UpsertDocuments(ctx, userID, name, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert documents: %w", err)
	}

	s.log.Info("batch processed", "collection", name, "user_id", userID, "processed", processed)

	return &BatchSyncResponse{
		Status:    "Ok",
		Processed: processed,
	}, nil
}
