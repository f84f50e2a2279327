package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/document"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Load(ctx context.Context) ([]Entry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Entry), args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) Delete(ctx context.Context, collection, documentID string, state State) error {
	args := m.Called(ctx, collection, documentID, state)
	return args.Error(0)
}

func (m *MockRepository) SaveDead(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(cfg Config, repo Repository) (*Manager, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(slog.Default(), cfg, repo).WithClock(clk.Now)
	return m, clk
}

var errTransient = errors.New("connection reset")

func TestManager_EnqueueCoalesces(t *testing.T) {
	m, _ := newTestManager(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1", "title": "v1"}))
	require.NoError(t, m.Enqueue(ctx, "tasks", "t2", document.Document{"id": "t2"}))
	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1", "title": "v2"}))

	assert.Equal(t, 2, m.Stats()["tasks"].Depth)

	var sent []Entry
	res, err := m.Drain(ctx, "tasks", 10, func(_ context.Context, entries []Entry) error {
		sent = entries
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	require.Len(t, sent, 2)
	assert.Equal(t, "t1", sent[0].DocumentID, "coalescing keeps FIFO position")
	assert.Equal(t, "v2", sent[0].Payload["title"])
	assert.Empty(t, m.Stats())
}

func TestManager_EnqueueRequiresKey(t *testing.T) {
	m, _ := newTestManager(Config{}, nil)
	assert.ErrorIs(t, m.Enqueue(context.Background(), "", "x", nil), ErrEmptyKey)
	assert.ErrorIs(t, m.Enqueue(context.Background(), "tasks", "", nil), ErrEmptyKey)
}

func TestManager_Backoff(t *testing.T) {
	m, _ := newTestManager(Config{BackoffBase: time.Second, BackoffMax: 10 * time.Second}, nil)

	assert.Equal(t, time.Second, m.Backoff(0))
	assert.Equal(t, 2*time.Second, m.Backoff(1))
	assert.Equal(t, 4*time.Second, m.Backoff(2))
	assert.Equal(t, 8*time.Second, m.Backoff(3))
	assert.Equal(t, 10*time.Second, m.Backoff(4))
	assert.Equal(t, 10*time.Second, m.Backoff(20))
}

func TestManager_BackoffGrowthIsNonDecreasingAndCapped(t *testing.T) {
	maxDelay := 5 * time.Second
	m, clk := newTestManager(Config{MaxRetries: 10, BackoffBase: 500 * time.Millisecond, BackoffMax: maxDelay}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "notes", "n1", document.Document{"id": "n1"}))

	var prev time.Duration
	for i := 0; i < 8; i++ {
		_, err := m.Drain(ctx, "notes", 10, func(context.Context, []Entry) error { return errTransient })
		require.ErrorIs(t, err, errTransient)

		e, ok := m.Pending("notes", "n1")
		require.True(t, ok)
		delay := e.NextAttemptAt.Sub(clk.Now())

		assert.GreaterOrEqual(t, delay, prev)
		assert.LessOrEqual(t, delay, maxDelay)
		prev = delay

		clk.Advance(delay)
	}
	assert.Equal(t, maxDelay, prev)
}

func TestManager_NotReadyEntriesAreSkipped(t *testing.T) {
	m, clk := newTestManager(Config{BackoffBase: time.Second, BackoffMax: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))
	_, err := m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error { return errTransient })
	require.Error(t, err)

	assert.Equal(t, 0, m.Ready("tasks"))
	res, err := m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error {
		t.Fatal("send must not be called for entries in backoff")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, res.Sent)

	clk.Advance(2 * time.Second)
	assert.Equal(t, 1, m.Ready("tasks"))
}

func TestManager_DeadAfterMaxRetries(t *testing.T) {
	m, clk := newTestManager(Config{MaxRetries: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))

	var res DrainResult
	for i := 0; i < 3; i++ {
		clk.Advance(time.Second)
		res, _ = m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error { return errTransient })
	}

	require.Len(t, res.Dead, 1)
	assert.Equal(t, 3, res.Dead[0].Attempt)
	assert.Equal(t, StateDead, res.Dead[0].State)

	_, pending := m.Pending("tasks", "t1")
	assert.False(t, pending)
	assert.Len(t, m.DeadEntries("tasks"), 1)
	assert.Equal(t, Stats{Dead: 1}, m.Stats()["tasks"])

	require.NoError(t, m.Requeue(ctx, "tasks", "t1"))
	e, pending := m.Pending("tasks", "t1")
	require.True(t, pending)
	assert.Zero(t, e.Attempt)
	assert.Empty(t, m.DeadEntries(""))

	assert.ErrorIs(t, m.Requeue(ctx, "tasks", "t1"), ErrNotFound)
}

func TestManager_NonRetryableErrorKillsImmediately(t *testing.T) {
	errInvalid := errors.New("invalid")
	m, _ := newTestManager(Config{
		MaxRetries: 5,
		Retryable:  func(err error) bool { return !errors.Is(err, errInvalid) },
	}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))
	res, err := m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error { return errInvalid })

	assert.ErrorIs(t, err, errInvalid)
	require.Len(t, res.Dead, 1)
	assert.Equal(t, 1, res.Dead[0].Attempt)
}

func TestManager_EnqueueDuringFlightSurvivesSuccess(t *testing.T) {
	m, _ := newTestManager(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "notes", "n1", document.Document{"id": "n1", "body": "old"}))

	_, err := m.Drain(ctx, "notes", 10, func(ctx context.Context, entries []Entry) error {
		assert.Equal(t, "old", entries[0].Payload["body"])
		return m.Enqueue(ctx, "notes", "n1", document.Document{"id": "n1", "body": "new"})
	})
	require.NoError(t, err)

	e, ok := m.Pending("notes", "n1")
	require.True(t, ok)
	assert.Equal(t, "new", e.Payload["body"])
}

func TestManager_EnqueueDuringFlightSurvivesFailure(t *testing.T) {
	errTransient := errors.New("timeout")
	m, clk := newTestManager(Config{MaxRetries: 1, BackoffBase: time.Minute, BackoffMax: time.Hour}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "notes", "n1", document.Document{"id": "n1", "body": "old"}))

	res, err := m.Drain(ctx, "notes", 10, func(ctx context.Context, entries []Entry) error {
		require.NoError(t, m.Enqueue(ctx, "notes", "n1", document.Document{"id": "n1", "body": "new"}))
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Empty(t, res.Dead)
	assert.Empty(t, m.DeadEntries("notes"))

	e, ok := m.Pending("notes", "n1")
	require.True(t, ok)
	assert.Equal(t, "new", e.Payload["body"])
	assert.Equal(t, 0, e.Attempt)
	assert.False(t, e.NextAttemptAt.After(clk.Now()))
	assert.Equal(t, 1, m.Ready("notes"))

	// новая версия уходит в следующем цикле
	var sent []string
	_, err = m.Drain(ctx, "notes", 10, func(_ context.Context, entries []Entry) error {
		for _, e := range entries {
			sent = append(sent, e.Payload["body"].(string))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, sent)
	_, ok = m.Pending("notes", "n1")
	assert.False(t, ok)
}

func TestManager_DrainRespectsBatchSize(t *testing.T) {
	m, _ := newTestManager(Config{}, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Enqueue(ctx, "messages", id, document.Document{"id": id}))
	}

	res, err := m.Drain(ctx, "messages", 2, func(_ context.Context, entries []Entry) error {
		assert.Len(t, entries, 2)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, m.Ready("messages"))
}

func TestManager_Discard(t *testing.T) {
	m, _ := newTestManager(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))

	ok, err := m.Discard(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Discard(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Stats(t *testing.T) {
	m, clk := newTestManager(Config{}, nil)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))
	clk.Advance(time.Minute)
	require.NoError(t, m.Enqueue(ctx, "tasks", "t2", document.Document{"id": "t2"}))
	clk.Advance(time.Minute)

	stats := m.Stats()["tasks"]
	assert.Equal(t, 2, stats.Depth)
	assert.Equal(t, 2*time.Minute, stats.OldestPendingAge)
}

func TestManager_PersistsThroughRepository(t *testing.T) {
	repo := new(MockRepository)
	m, _ := newTestManager(Config{MaxRetries: 1}, repo)
	ctx := context.Background()

	repo.On("Save", ctx, mock.MatchedBy(func(e Entry) bool { return e.DocumentID == "t1" })).Return(nil)
	repo.On("Delete", ctx, "tasks", "t1", StatePending).Return(nil)
	repo.On("Save", ctx, mock.MatchedBy(func(e Entry) bool { return e.DocumentID == "t2" })).Return(nil)
	repo.On("SaveDead", ctx, mock.MatchedBy(func(e Entry) bool { return e.DocumentID == "t2" })).Return(nil)

	require.NoError(t, m.Enqueue(ctx, "tasks", "t1", document.Document{"id": "t1"}))
	_, err := m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error { return nil })
	require.NoError(t, err)

	require.NoError(t, m.Enqueue(ctx, "tasks", "t2", document.Document{"id": "t2"}))
	_, err = m.Drain(ctx, "tasks", 10, func(context.Context, []Entry) error { return errTransient })
	require.Error(t, err)

	repo.AssertExpectations(t)
}

func TestManager_Load(t *testing.T) {
	repo := new(MockRepository)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.On("Load", mock.Anything).Return([]Entry{
		{Collection: "tasks", DocumentID: "late", EnqueuedAt: base.Add(time.Minute), State: StatePending},
		{Collection: "tasks", DocumentID: "early", EnqueuedAt: base, State: StatePending},
		{Collection: "tasks", DocumentID: "gone", EnqueuedAt: base, State: StateDead, Attempt: 3},
	}, nil)

	m, _ := newTestManager(Config{}, repo)
	require.NoError(t, m.Load(context.Background()))

	var order []string
	for _, key := range m.order["tasks"] {
		order = append(order, key.DocumentID)
	}
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Len(t, m.DeadEntries("tasks"), 1)
}

func TestManager_SaveFailureIsReturned(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	m, _ := newTestManager(Config{}, repo)
	err := m.Enqueue(context.Background(), "tasks", "t1", document.Document{"id": "t1"})
	assert.ErrorContains(t, err, "disk full")
}
