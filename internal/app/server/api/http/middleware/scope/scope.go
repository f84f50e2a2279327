package scope

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// HeaderUserID заголовок с ключом раздела данных пользователя
const HeaderUserID = "X-User-ID"

type Scope struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Scope {
	return &Scope{
		log: log.With("component", "scope_middleware"),
	}
}

type contextKey string

const UserIDKey contextKey = "userID"

// Middleware возвращает middleware для Huma с сигнатурой func(ctx Context, next func(Context)).
// Запросы без X-User-ID отклоняются с 400.
func (s *Scope) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		userID := strings.TrimSpace(ctx.Header(HeaderUserID))

		if userID == "" {
			s.log.Warn("request without user scope", "path", ctx.URL().Path)
			ctx.SetStatus(http.StatusBadRequest)
			ctx.SetHeader("Content-Type", "application/json")

			err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{
				"status": "Error",
				"error":  "missing " + HeaderUserID + " header",
			})
			if err != nil {
				s.log.Error("json encode", "error", err)
			}
			return
		}

		newCtx := WithUserID(ctx.Context(), userID)
		next(huma.WithContext(ctx, newCtx))
	}
}

// Handler та же проверка для обычных http-обработчиков
func (s *Scope) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			s.log.Warn("request without user scope", "path", r.URL.Path)
			http.Error(w, "missing "+HeaderUserID+" header", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID кладет идентификатор пользователя в контекст
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
