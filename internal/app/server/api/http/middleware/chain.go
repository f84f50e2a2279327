package middleware

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Chain мидлвари группы маршрутов. Huma-операции получают их через Operations,
// обычные http-обработчики (websocket подписка) оборачиваются через Handler.
type Chain struct {
	ops   huma.Middlewares
	plain []func(http.Handler) http.Handler
}

// NewChain создает пустую цепочку
func NewChain() *Chain {
	return &Chain{}
}

// Use добавляет мидлварь для huma-операций
func (c *Chain) Use(mw func(huma.Context, func(huma.Context))) *Chain {
	c.ops = append(c.ops, mw)
	return c
}

// UseHTTP добавляет мидлварь для обычных обработчиков
func (c *Chain) UseHTTP(mw func(http.Handler) http.Handler) *Chain {
	c.plain = append(c.plain, mw)
	return c
}

// Operations копия мидлварей для huma.Operation
func (c *Chain) Operations() huma.Middlewares {
	out := make(huma.Middlewares, len(c.ops))
	copy(out, c.ops)
	return out
}

// Handler оборачивает h; первая добавленная мидлварь выполняется первой
func (c *Chain) Handler(h http.Handler) http.Handler {
	for i := len(c.plain) - 1; i >= 0; i-- {
		h = c.plain[i](h)
	}
	return h
}
