package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
)

func TestChain_HandlerOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := NewChain().UseHTTP(mark("logger")).UseHTTP(mark("scope")).
		Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/subscribe", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"logger", "scope", "handler"}, order)
}

func TestChain_OperationsReturnsCopy(t *testing.T) {
	noop := func(ctx huma.Context, next func(huma.Context)) { next(ctx) }
	c := NewChain().Use(noop)

	ops := c.Operations()
	c.Use(noop)

	assert.Len(t, ops, 1)
	assert.Len(t, c.Operations(), 2)
}

func TestChain_EmptyHandlerIsUnchanged(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChain().Handler(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
