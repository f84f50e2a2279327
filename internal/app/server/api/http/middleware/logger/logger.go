package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"assistsync/internal/app/server/api/http/middleware/scope"
)

// Logger пишет в лог запросы к API синхронизации вместе с разделом
// пользователя и коллекцией
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	return &Logger{
		log: log.With(slog.String("component", "http_logger")),
	}
}

// Middleware для huma-операций; коллекция берется из параметра пути {collection}
func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		userID := strings.TrimSpace(ctx.Header(scope.HeaderUserID))
		collection := ctx.Param("collection")

		next(ctx)

		l.write(ctx.Status(), time.Since(start),
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.URL().Path),
			slog.String("user_id", userID),
			slog.String("collection", collection),
			slog.String("remote_addr", ctx.RemoteAddr()),
		)
	}
}

// Handler для обычных обработчиков; коллекция берется из query-параметра.
// Обертка сохраняет http.Hijacker, поэтому подходит для websocket.
func (l *Logger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		l.write(ww.Status(), time.Since(start),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("user_id", strings.TrimSpace(r.Header.Get(scope.HeaderUserID))),
			slog.String("collection", r.URL.Query().Get("collection")),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (l *Logger) write(status int, duration time.Duration, attrs ...any) {
	attrs = append(attrs, slog.Int("status", status), slog.Duration("duration", duration))
	if status >= http.StatusInternalServerError {
		l.log.Error("HTTP request", attrs...)
		return
	}
	l.log.Info("HTTP request", attrs...)
}
