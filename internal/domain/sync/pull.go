package sync

import (
	"context"
	"fmt"

	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
)

func (e *Engine) pullAll(ctx context.Context) *CycleResult {
	result := newCycleResult(e.now())

	for _, cfg := range e.registry.ByPriority() {
		if !cfg.CanPull() {
			continue
		}
		res := result.collection(cfg.Name)
		if !e.health.Allow(cfg.Name) {
			res.Skipped = true
			e.log.Debug("pull skipped, circuit open", "collection", cfg.Name)
			continue
		}

		if err := e.pullCollection(ctx, cfg, res); err != nil {
			res.fail(err)
			e.recordFailure(cfg.Name, err)
			e.log.Error("pull failed", "collection", cfg.Name, "error", err)
			continue
		}
		e.health.RecordSuccess(cfg.Name)
	}

	e.saveClock(ctx)
	return result
}

func (e *Engine) pullCollection(ctx context.Context, cfg collection.Config, res *CollectionResult) error {
	const op = "pull"
	name := cfg.Name

	strategy, err := e.strategies.For(name, cfg.Strategy)
	if err != nil {
		return NewError(op, name, KindValidation, err)
	}

	checkpoint, err := e.state.LoadCheckpoint(ctx, name)
	if err != nil {
		return NewError(op, name, KindTransient, fmt.Errorf("load checkpoint: %w", err))
	}

	for {
		batch, err := e.fetch(ctx, name, checkpoint, cfg.BatchSize)
		if err != nil {
			return classify(op, name, err)
		}

		for _, raw := range batch.Documents {
			if err := e.applyPulled(ctx, cfg, strategy, raw, res); err != nil {
				return classify(op, name, err)
			}
		}

		// контрольная точка сдвигается только вперед и только после применения всего пакета
		if batch.Checkpoint > checkpoint {
			if err := e.state.SaveCheckpoint(ctx, name, batch.Checkpoint); err != nil {
				return NewError(op, name, KindTransient, fmt.Errorf("save checkpoint: %w", err))
			}
			checkpoint = batch.Checkpoint
		}

		if !batch.HasMore || len(batch.Documents) == 0 {
			return nil
		}
	}
}

func (e *Engine) fetch(ctx context.Context, name string, checkpoint int64, batchSize int) (*Batch, error) {
	callCtx, cancel := e.remoteContext(ctx)
	defer cancel()

	batch, err := e.remote.FetchSince(callCtx, name, checkpoint, batchSize)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return &Batch{Checkpoint: checkpoint}, nil
	}
	return batch, nil
}

func (e *Engine) applyPulled(ctx context.Context, cfg collection.Config, strategy conflict.Strategy, raw document.Document, res *CollectionResult) error {
	name := cfg.Name

	pulled, err := strategy.ProcessFromPull(e.transformer.TransformForPull(name, raw))
	if err != nil {
		return err
	}
	id := pulled.ID()
	if id == "" {
		return nil
	}

	e.clock.Observe(pulled.LogicalClock())

	local, err := e.local.Read(ctx, name, id)
	if err != nil {
		return NewError("pull", name, KindTransient, fmt.Errorf("read local %s: %w", id, err))
	}

	if local == nil {
		if err := e.local.Write(ctx, name, pulled); err != nil {
			return NewError("pull", name, KindTransient, fmt.Errorf("write local %s: %w", id, err))
		}
		res.Pulled++
		return nil
	}

	resolution, err := strategy.Resolve(local, pulled)
	if err != nil {
		return err
	}

	if resolution.ShouldLog {
		e.conflicts.Append(ctx, conflict.NewEntry(name, local, pulled, resolution, e.now()))
		res.Conflicts++
		e.log.Info("conflict resolved",
			"collection", name, "document_id", id,
			"strategy", resolution.Strategy.String(), "outcome", string(resolution.Outcome))
	}

	switch resolution.Outcome {
	case conflict.OutcomeRemote:
		if err := e.local.Write(ctx, name, resolution.Winner); err != nil {
			return NewError("pull", name, KindTransient, fmt.Errorf("write local %s: %w", id, err))
		}
		if _, err := e.queue.Discard(ctx, name, id); err != nil {
			e.log.Error("failed to discard superseded queue entry", "collection", name, "document_id", id, "error", err)
		}
		res.Pulled++
	case conflict.OutcomeMerged:
		if err := e.local.Write(ctx, name, resolution.Winner); err != nil {
			return NewError("pull", name, KindTransient, fmt.Errorf("write local %s: %w", id, err))
		}
		res.Pulled++
		fallthrough
	case conflict.OutcomeLocal:
		if cfg.CanPush() {
			if err := e.queue.Enqueue(ctx, name, id, resolution.Winner); err != nil {
				return NewError("pull", name, KindTransient, err)
			}
		}
	}
	return nil
}

func (e *Engine) recordFailure(name string, err error) {
	// ошибки политики и валидации не учитываются предохранителем,
	// но пробная попытка все равно должна завершиться
	if IsRetryable(err) {
		e.health.RecordFailure(name)
		return
	}
	e.health.Release(name)
}
