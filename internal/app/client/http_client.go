package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
	"assistsync/internal/domain/sync"
)

const headerUserID = "X-User-ID"

// HTTPRemote удаленное хранилище поверх HTTP API сервера синхронизации
type HTTPRemote struct {
	client    *http.Client
	dialer    *websocket.Dialer
	log       *slog.Logger
	baseURL   string
	userID    string
	userAgent string
}

func NewHTTPRemote(baseURL, userID string, log *slog.Logger) *HTTPRemote {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &HTTPRemote{
		client:    client,
		dialer:    websocket.DefaultDialer,
		log:       log.With("component", "http_remote"),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userID:    userID,
		userAgent: "Assistsync-Client/1.0",
	}
}

// HealthCheck проверяет доступность сервера
func (h *HTTPRemote) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("сервер недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("сервер вернул статус: %d", resp.StatusCode)
	}

	return nil
}

func (h *HTTPRemote) FetchSince(ctx context.Context, collection string, checkpoint int64, batchSize int) (*sync.Batch, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/"+url.PathEscape(collection)+"/changes",
		sync.GetChangesRequest{Checkpoint: checkpoint, Limit: batchSize})
	if err != nil {
		return nil, sync.NewError("fetch", collection, sync.KindTransient, err)
	}

	var changes sync.GetChangesResponse
	if err := h.parseResponse(resp, &changes); err != nil {
		return nil, classifyHTTP("fetch", collection, err)
	}

	return &sync.Batch{
		Documents:  changes.Documents,
		Checkpoint: changes.Checkpoint,
		HasMore:    changes.HasMore,
	}, nil
}

func (h *HTTPRemote) UpsertBatch(ctx context.Context, collection string, docs []document.Document) error {
	resp, err := h.doRequest(ctx, http.MethodPost, "/api/sync/"+url.PathEscape(collection)+"/batch",
		sync.BatchSyncRequest{Documents: docs})
	if err != nil {
		return sync.NewError("upsert", collection, sync.KindTransient, err)
	}

	var result sync.BatchSyncResponse
	if err := h.parseResponse(resp, &result); err != nil {
		return classifyHTTP("upsert", collection, err)
	}

	h.log.Debug("Пакет отправлен", "collection", collection, "processed", result.Processed)
	return nil
}

// Subscribe держит websocket-подписку на изменения коллекции до отмены ctx или обрыва
func (h *HTTPRemote) Subscribe(ctx context.Context, collection string, onChange func(sync.Change)) error {
	wsURL, err := h.subscribeURL(collection)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set(headerUserID, h.userID)
	header.Set("User-Agent", h.userAgent)

	conn, resp, err := h.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("ошибка подписки: статус %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("ошибка подписки: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var change sync.Change
		if err := conn.ReadJSON(&change); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("подписка прервана: %w", err)
		}
		onChange(change)
	}
}

func (h *HTTPRemote) subscribeURL(collection string) (string, error) {
	u, err := url.Parse(h.baseURL + "/api/sync/subscribe")
	if err != nil {
		return "", fmt.Errorf("некорректный адрес сервера: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"collection": {collection}}.Encode()
	return u.String(), nil
}

func (h *HTTPRemote) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set(headerUserID, h.userID)

	h.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	return resp, nil
}

// statusError ответ сервера с кодом ошибки
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ошибка сервера: статус %d: %s", e.Status, e.Message)
}

func (h *HTTPRemote) parseResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	h.log.Debug("Получен ответ",
		"status", resp.StatusCode,
		"size", len(body),
	)

	if resp.StatusCode >= 400 {
		return &statusError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("ошибка парсинга ответа: %w", err)
		}
	}

	return nil
}

// errorMessage извлекает описание из problem+json или из {"error": ...}
func errorMessage(body []byte) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &problem); err != nil {
		return strings.TrimSpace(string(body))
	}

	parts := make([]string, 0, len(problem.Errors)+1)
	switch {
	case problem.Detail != "":
		parts = append(parts, problem.Detail)
	case problem.Title != "":
		parts = append(parts, problem.Title)
	case problem.Error != "":
		parts = append(parts, problem.Error)
	}
	for _, e := range problem.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}

// classifyHTTP: 403 нарушение политики, остальные 4xx отклонение документа,
// 5xx, 429 и сетевые сбои повторяются
func classifyHTTP(op, collection string, err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return sync.NewError(op, collection, sync.KindTransient, err)
	}

	switch {
	case se.Status == http.StatusForbidden:
		return sync.NewError(op, collection, sync.KindPolicy, fmt.Errorf("%w: %v", sync.ErrPolicy, err))
	case se.Status == http.StatusTooManyRequests || se.Status == http.StatusRequestTimeout:
		return sync.NewError(op, collection, sync.KindTransient, err)
	case se.Status >= 400 && se.Status < 500:
		return sync.NewError(op, collection, sync.KindValidation, err)
	}
	return sync.NewError(op, collection, sync.KindTransient, err)
}
