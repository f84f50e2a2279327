package sync

import (
	"context"

	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
	"assistsync/internal/domain/queue"
)

type pushed struct {
	entry queue.Entry
	doc   document.Document
}

func (e *Engine) pushAll(ctx context.Context) *CycleResult {
	result := newCycleResult(e.now())

	for _, cfg := range e.registry.ByPriority() {
		if !cfg.CanPush() {
			continue
		}
		if e.queue.Ready(cfg.Name) == 0 {
			continue
		}
		res := result.collection(cfg.Name)
		if !e.health.Allow(cfg.Name) {
			res.Skipped = true
			e.log.Debug("push skipped, circuit open", "collection", cfg.Name)
			continue
		}

		if err := e.pushCollection(ctx, cfg, res); err != nil {
			res.fail(err)
			e.recordFailure(cfg.Name, err)
			e.log.Error("push failed", "collection", cfg.Name, "error", err)
			continue
		}
		e.health.RecordSuccess(cfg.Name)
	}

	e.saveClock(ctx)
	return result
}

func (e *Engine) pushCollection(ctx context.Context, cfg collection.Config, res *CollectionResult) error {
	const op = "push"
	name := cfg.Name

	strategy, err := e.strategies.For(name, cfg.Strategy)
	if err != nil {
		return NewError(op, name, KindValidation, err)
	}

	for e.queue.Ready(name) > 0 {
		var sent []pushed
		drained, err := e.queue.Drain(ctx, name, cfg.BatchSize, func(ctx context.Context, entries []queue.Entry) error {
			var sendErr error
			sent, sendErr = e.send(ctx, name, strategy, entries)
			return sendErr
		})

		res.Pushed += drained.Sent
		if n := len(drained.Dead); n > 0 {
			res.Dead += n
			e.health.RecordDead(name, n)
		}
		if err != nil {
			return classify(op, name, err)
		}
		if drained.Sent == 0 {
			return nil
		}

		e.writeBack(ctx, name, sent)
	}
	return nil
}

// send проставляет метаданные, переводит документы в удаленный формат
// и отправляет их одним пакетом
func (e *Engine) send(ctx context.Context, name string, strategy conflict.Strategy, entries []queue.Entry) ([]pushed, error) {
	out := make([]pushed, 0, len(entries))
	docs := make([]document.Document, 0, len(entries))

	for _, entry := range entries {
		prepared, err := strategy.PrepareForPush(entry.Payload)
		if err != nil {
			return nil, NewError("push", name, KindPolicy, err)
		}
		out = append(out, pushed{entry: entry, doc: prepared})
		docs = append(docs, e.transformer.TransformForPush(name, prepared))
	}

	callCtx, cancel := e.remoteContext(ctx)
	defer cancel()

	if err := e.remote.UpsertBatch(callCtx, name, docs); err != nil {
		return nil, classify("push", name, err)
	}
	return out, nil
}

// writeBack сохраняет отправленную версию локально, если локальная копия
// не менялась с момента постановки в очередь
func (e *Engine) writeBack(ctx context.Context, name string, sent []pushed) {
	for _, p := range sent {
		local, err := e.local.Read(ctx, name, p.entry.DocumentID)
		if err != nil {
			e.log.Error("failed to read local document after push",
				"collection", name, "document_id", p.entry.DocumentID, "error", err)
			continue
		}
		if local == nil || local.LogicalClock() != p.entry.Payload.LogicalClock() {
			continue
		}
		if err := e.local.Write(ctx, name, p.doc); err != nil {
			e.log.Error("failed to write back pushed document",
				"collection", name, "document_id", p.entry.DocumentID, "error", err)
		}
	}
}
