package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/sync"
)

// ChangesChannel канал NOTIFY, в который пишет триггер sync_documents
const ChangesChannel = "sync_changes"

type subscriber struct {
	userID     string
	collection string
	fn         func(sync.Change)
}

// Listener держит одно соединение с LISTEN и раздает уведомления подписчикам.
// Пустые userID или collection у подписчика означают любые значения.
type Listener struct {
	pool    *pgxpool.Pool
	log     *slog.Logger
	channel string

	mu   gosync.RWMutex
	subs map[uint64]subscriber
	next uint64
}

func NewListener(storage *Storage, log *slog.Logger) *Listener {
	return &Listener{
		pool:    storage.Pool(),
		log:     log.With("component", "change_listener"),
		channel: ChangesChannel,
		subs:    make(map[uint64]subscriber),
	}
}

// Subscribe регистрирует обработчик и возвращает функцию отписки
func (l *Listener) Subscribe(userID, collection string, fn func(sync.Change)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = subscriber{userID: userID, collection: collection, fn: fn}
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Run слушает канал до отмены ctx, переподключаясь после сбоев
func (l *Listener) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	for {
		err := l.listen(ctx, b)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := b.NextBackOff()
		l.log.Warn("listener disconnected", "error", err, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Listener) listen(ctx context.Context, b *backoff.ExponentialBackOff) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		// соединение возвращается в пул, подписку нужно снять
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	b.Reset()
	l.log.Info("listening for changes", "channel", l.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(n.Payload)
	}
}

func (l *Listener) dispatch(payload string) {
	var change sync.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.log.Warn("malformed change notification", "payload", payload, "error", err)
		return
	}

	l.mu.RLock()
	targets := make([]func(sync.Change), 0, len(l.subs))
	for _, s := range l.subs {
		if s.userID != "" && s.userID != change.UserID {
			continue
		}
		if s.collection != "" && s.collection != change.Collection {
			continue
		}
		targets = append(targets, s.fn)
	}
	l.mu.RUnlock()

	for _, fn := range targets {
		fn(change)
	}
}
