package postgres

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/sync"
)

func newTestListener() *Listener {
	return &Listener{
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		channel: ChangesChannel,
		subs:    make(map[uint64]subscriber),
	}
}

func TestListener_DispatchFiltersSubscribers(t *testing.T) {
	l := newTestListener()

	var tasks, anyCollection, otherUser []sync.Change
	l.Subscribe("u1", "tasks", func(c sync.Change) { tasks = append(tasks, c) })
	l.Subscribe("u1", "", func(c sync.Change) { anyCollection = append(anyCollection, c) })
	l.Subscribe("u2", "tasks", func(c sync.Change) { otherUser = append(otherUser, c) })

	l.dispatch(`{"collection":"tasks","document_id":"t1","user_id":"u1","seq":10}`)
	l.dispatch(`{"collection":"notes","document_id":"n1","user_id":"u1","seq":11}`)

	assert.Equal(t, []sync.Change{{Collection: "tasks", DocumentID: "t1", UserID: "u1", Seq: 10}}, tasks)
	assert.Len(t, anyCollection, 2)
	assert.Empty(t, otherUser)
}

func TestListener_Unsubscribe(t *testing.T) {
	l := newTestListener()

	calls := 0
	unsubscribe := l.Subscribe("", "", func(sync.Change) { calls++ })

	l.dispatch(`{"collection":"tasks","document_id":"t1","user_id":"u1","seq":1}`)
	unsubscribe()
	l.dispatch(`{"collection":"tasks","document_id":"t1","user_id":"u1","seq":2}`)

	assert.Equal(t, 1, calls)
}

func TestListener_MalformedPayloadIgnored(t *testing.T) {
	l := newTestListener()

	calls := 0
	l.Subscribe("", "", func(sync.Change) { calls++ })
	l.dispatch("not json")

	assert.Zero(t, calls)
}

func TestRemote_SubscribeWithoutListener(t *testing.T) {
	r := NewRemote(nil, nil, "u1")
	err := r.Subscribe(t.Context(), "tasks", func(sync.Change) {})
	assert.ErrorIs(t, err, ErrNoListener)
}

func TestNullTime(t *testing.T) {
	assert.Nil(t, nullTime(time.Time{}))
}
