package sync

import "assistsync/internal/domain/document"

// DTO (Data Transfer Objects) для API синхронизации

// GetChangesRequest запрос на получение изменений после контрольной точки
type GetChangesRequest struct {
	Checkpoint int64 `json:"checkpoint" minimum:"0" default:"0"`
	Limit      int   `json:"limit" minimum:"1" maximum:"1000" default:"50"`
}

// GetChangesResponse ответ с изменениями
type GetChangesResponse struct {
	Status     string              `json:"status"`
	Error      string              `json:"error,omitempty"`
	Documents  []document.Document `json:"documents"`
	Checkpoint int64               `json:"checkpoint"`
	HasMore    bool                `json:"has_more"`
}

// BatchSyncRequest пакет документов для записи на сервер
type BatchSyncRequest struct {
	Documents []document.Document `json:"documents"`
}

// BatchSyncResponse ответ на пакетную запись
type BatchSyncResponse struct {
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}
