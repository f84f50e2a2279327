package sync

import (
	"context"
	"time"
)

// Start запускает фоновую синхронизацию: немедленный цикл, затем по таймеру,
// по Trigger и по уведомлениям удаленного хранилища
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	if sub, ok := e.remote.(Subscriber); ok && e.cfg.RealtimeEnabled {
		for _, cfg := range e.registry.ByPriority() {
			if !cfg.CanPull() {
				continue
			}
			e.subs.Add(1)
			go e.subscribe(runCtx, sub, cfg.Name)
		}
	}

	go e.run(runCtx)

	e.log.Info("sync engine started", "interval", e.cfg.SyncInterval, "realtime", e.cfg.RealtimeEnabled)
	return nil
}

// Stop останавливает фоновую синхронизацию и дожидается завершения текущего цикла
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.subs.Wait()

	e.log.Info("sync engine stopped")
}

// Trigger запрашивает внеочередной цикл; повторные запросы схлопываются
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// run выполняет циклы до отмены ctx. Начатый цикл доводится до конца,
// отмена проверяется только между циклами.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	cycleCtx := context.WithoutCancel(ctx)
	e.SyncOnce(cycleCtx)

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.trigger:
		}
		if ctx.Err() != nil {
			return
		}
		e.SyncOnce(cycleCtx)
	}
}

// subscribe держит подписку на изменения коллекции; при сбое синхронизация
// продолжается по таймеру, а подписка восстанавливается через интервал
func (e *Engine) subscribe(ctx context.Context, sub Subscriber, name string) {
	defer e.subs.Done()

	for {
		err := sub.Subscribe(ctx, name, func(Change) {
			e.Trigger()
		})
		if ctx.Err() != nil {
			return
		}
		e.log.Warn("realtime subscription lost, falling back to polling", "collection", name, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.SyncInterval):
		}
	}
}
