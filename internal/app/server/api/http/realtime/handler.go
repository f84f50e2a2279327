package realtime

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"assistsync/internal/app/server/api/http/middleware/scope"
	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/sync"
)

const (
	// Path маршрут подписки на изменения
	Path = "/api/sync/subscribe"

	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Source источник уведомлений об изменениях (слушатель LISTEN/NOTIFY)
type Source interface {
	Subscribe(userID, collection string, fn func(sync.Change)) func()
}

// Handler отдает уведомления об изменениях коллекции по websocket.
// Раздел пользователя кладет в контекст scope.Handler.
type Handler struct {
	source   Source
	registry *collection.Registry
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(source Source, registry *collection.Registry, log *slog.Logger) *Handler {
	return &Handler{
		source:   source,
		registry: registry,
		log:    log.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := scope.GetUserID(r.Context())
	if !ok {
		http.Error(w, "missing "+scope.HeaderUserID+" header", http.StatusBadRequest)
		return
	}
	name := r.URL.Query().Get("collection")
	if name == "" {
		http.Error(w, "collection is required", http.StatusBadRequest)
		return
	}
	if _, err := h.registry.Get(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events := make(chan sync.Change, sendBuffer)
	unsubscribe := h.source.Subscribe(userID, name, func(c sync.Change) {
		select {
		case events <- c:
		default:
			// клиент не успевает читать: достаточно одного уведомления на цикл
		}
	})
	defer unsubscribe()

	h.log.Debug("subscriber connected", "user_id", userID, "collection", name)

	// клиент ничего не присылает, чтение нужно только для обнаружения закрытия
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.log.Debug("subscriber disconnected", "user_id", userID, "collection", name)
			return
		case <-r.Context().Done():
			return
		case c := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(c); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
