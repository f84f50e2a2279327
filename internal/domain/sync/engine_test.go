package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"assistsync/internal/domain/collection"
	"assistsync/internal/domain/conflict"
	"assistsync/internal/domain/document"
	"assistsync/internal/domain/health"
)

type testEnv struct {
	engine *Engine
	local  *memLocal
	remote *fakeRemote
	state  *memState
	now    *time.Time
}

func newTestEnv(t *testing.T, cfg Config, configs ...collection.Config) *testEnv {
	t.Helper()

	if len(configs) == 0 {
		configs = collection.Defaults()
	}
	registry, err := collection.NewRegistry(cfg.BatchSize, configs...)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	env := &testEnv{
		local:  newMemLocal(),
		remote: newFakeRemote(),
		state:  newMemState(),
		now:    &now,
	}

	env.engine, err = NewEngine(Deps{
		Log:      slog.Default(),
		Local:    env.local,
		Remote:   env.remote,
		State:    env.state,
		Registry: registry,
		DeviceID: "device-test",
		Now:      func() time.Time { return now },
	}, cfg)
	require.NoError(t, err)

	return env
}

func (e *testEnv) advance(d time.Duration) {
	*e.now = e.now.Add(d)
}

func task(id string, clk int64, updated, title string) document.Document {
	return document.Document{
		"id": id, "userId": "u1", "status": "todo",
		"logicalClock": clk, "updatedAt": updated, "title": title,
	}
}

func remoteTask(id string, clk int64, updated, title string) document.Document {
	return document.Document{
		"id": id, "user_id": "u1", "status": "todo",
		"logical_clock": clk, "updated_at": updated, "title": title,
	}
}

func TestEngine_MilkScenario(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, env.local.Write(ctx, "tasks", task("t1", 3, "2024-01-01T10:00:00Z", "Buy milk")))
	env.remote.add("tasks", remoteTask("t1", 3, "2024-01-01T11:00:00Z", "Buy oat milk"))

	res := env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())

	assert.Equal(t, "Buy oat milk", env.local.get("tasks", "t1")["title"])
	assert.Equal(t, 1, res.Collections["tasks"].Conflicts)

	logs := env.engine.ConflictLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, conflict.OutcomeRemote, logs[0].Outcome)
	assert.Equal(t, "t1", logs[0].DocumentID)
	assert.Equal(t, int64(1), env.state.checkpoints["tasks"])
}

func TestEngine_PullPaginatesAndAdvancesCheckpoint(t *testing.T) {
	env := newTestEnv(t, DefaultConfig(),
		collection.Config{Name: "notes", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 2, Priority: 1},
	)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		env.remote.add("notes", document.Document{"id": id, "user_id": "u1", "title": id, "logical_clock": 1})
	}

	res := env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())

	assert.Equal(t, 5, res.Collections["notes"].Pulled)
	assert.Equal(t, 3, env.remote.calls("notes"))
	assert.Equal(t, int64(5), env.state.checkpoints["notes"])
	assert.Equal(t, int64(6), env.engine.clock.Current(), "each observed document advances the clock")

	// повторный pull ничего не приносит и не откатывает точку
	res = env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Zero(t, res.Collections["notes"].Pulled)
	assert.Equal(t, int64(5), env.state.checkpoints["notes"])
}

func TestEngine_CheckpointNotAdvancedOnPartialBatch(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	env.remote.add("tasks",
		remoteTask("ok", 1, "2024-01-01T10:00:00Z", "fine"),
		remoteTask("broken", 1, "2024-01-01T10:00:00Z", "fails"),
	)
	env.local.failWrite["broken"] = errors.New("disk full")

	res := env.engine.PullAllCollections(ctx)

	require.Error(t, res.Collections["tasks"].Err)
	assert.Zero(t, env.state.checkpoints["tasks"])
	assert.Equal(t, health.Closed, env.engine.health.State("tasks"))
}

func TestEngine_EnqueueLocalChange_Rejections(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	_, err := env.engine.EnqueueLocalChange(ctx, "tasks", "t1", document.Document{"userId": "u1"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.False(t, IsRetryable(err))

	_, err = env.engine.EnqueueLocalChange(ctx, "calendar_events", "e1",
		document.Document{"userId": "u1", "title": "standup", "startTime": "09:00"})
	assert.ErrorIs(t, err, ErrPolicy)
	assert.Equal(t, KindPolicy, KindOf(err))

	_, err = env.engine.EnqueueLocalChange(ctx, "nope", "x", document.Document{"userId": "u1"})
	assert.ErrorIs(t, err, ErrUnknownCollection)

	assert.Empty(t, env.engine.QueueStats())
	assert.Nil(t, env.local.get("tasks", "t1"))
}

func TestEngine_PushThenEchoIsSilent(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	stamped, err := env.engine.EnqueueLocalChange(ctx, "tasks", "t9", document.Document{
		"userId": "u1", "title": "Write report", "status": "todo", "_rev": "1-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stamped.LogicalClock())
	assert.Equal(t, "device-test", stamped[document.FieldOriginDeviceID])
	assert.Equal(t, 1, env.engine.QueueStats()["tasks"].Depth)

	res := env.engine.PushAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Collections["tasks"].Pushed)
	assert.Empty(t, env.engine.QueueStats())

	require.Len(t, env.remote.upserts["tasks"], 1)
	sent := env.remote.upserts["tasks"][0][0]
	assert.Equal(t, "u1", sent["user_id"])
	assert.Equal(t, int64(2), sent["logical_clock"])
	assert.NotContains(t, sent, "_rev")

	assert.Equal(t, int64(2), env.local.get("tasks", "t9").LogicalClock(), "pushed version written back")

	res = env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Empty(t, env.engine.ConflictLogs())
	assert.Empty(t, env.engine.QueueStats())
}

func TestEngine_LocalWinnerIsRequeued(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, env.local.Write(ctx, "tasks", task("t1", 10, "2024-01-01T10:00:00Z", "local")))
	env.remote.add("tasks", remoteTask("t1", 4, "2024-01-01T12:00:00Z", "remote"))

	res := env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())

	assert.Equal(t, "local", env.local.get("tasks", "t1")["title"])
	assert.Equal(t, 1, env.engine.QueueStats()["tasks"].Depth)
	require.Len(t, env.engine.ConflictLogs(), 1)
	assert.Equal(t, conflict.OutcomeLocal, env.engine.ConflictLogs()[0].Outcome)
}

func TestEngine_RemoteWinnerDiscardsPendingChange(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	_, err := env.engine.EnqueueLocalChange(ctx, "tasks", "t1", document.Document{"userId": "u1", "title": "mine", "status": "todo"})
	require.NoError(t, err)

	env.remote.add("tasks", remoteTask("t1", 50, "2024-01-01T12:00:00Z", "theirs"))

	res := env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())

	assert.Equal(t, "theirs", env.local.get("tasks", "t1")["title"])
	assert.Empty(t, env.engine.QueueStats())
}

func TestEngine_BreakerIsolatesCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Minute

	env := newTestEnv(t, cfg,
		collection.Config{Name: "tasks", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 10, Priority: 2},
		collection.Config{Name: "notes", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 10, Priority: 1},
	)
	ctx := context.Background()
	env.remote.failFetch["tasks"] = errUnavailable

	for i := 0; i < 2; i++ {
		res := env.engine.PullAllCollections(ctx)
		assert.ErrorIs(t, res.Collections["tasks"].Err, errUnavailable)
		assert.True(t, IsRetryable(res.Collections["tasks"].Err))
	}
	assert.Equal(t, health.Open, env.engine.Health()["tasks"].State)

	env.remote.add("notes", document.Document{"id": "n1", "user_id": "u1", "title": "hi"})
	res := env.engine.PullAllCollections(ctx)

	assert.True(t, res.Collections["tasks"].Skipped)
	assert.Equal(t, 2, env.remote.calls("tasks"))
	assert.Equal(t, 1, res.Collections["notes"].Pulled)
	assert.NotNil(t, env.local.get("notes", "n1"))

	// после таймаута одна пробная попытка закрывает предохранитель
	delete(env.remote.failFetch, "tasks")
	env.advance(time.Minute)
	res = env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, health.Closed, env.engine.Health()["tasks"].State)
}

func TestEngine_NonRetryableErrorDuringHalfOpenDoesNotLockCollection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Minute

	env := newTestEnv(t, cfg,
		collection.Config{Name: "tasks", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 10, Priority: 1},
	)
	ctx := context.Background()

	env.remote.failFetch["tasks"] = errUnavailable
	env.engine.PullAllCollections(ctx)
	env.engine.PullAllCollections(ctx)
	require.Equal(t, health.Open, env.engine.Health()["tasks"].State)

	env.advance(2 * time.Minute)
	env.remote.failFetch["tasks"] = NewError("fetch", "tasks", KindValidation, errors.New("bad request"))
	res := env.engine.PullAllCollections(ctx)
	assert.Equal(t, KindValidation, KindOf(res.Collections["tasks"].Err))
	assert.Equal(t, health.Open, env.engine.Health()["tasks"].State)
	assert.Equal(t, 3, env.remote.calls("tasks"))

	delete(env.remote.failFetch, "tasks")
	env.advance(time.Hour)
	res = env.engine.PullAllCollections(ctx)

	require.NoError(t, res.Err())
	assert.False(t, res.Collections["tasks"].Skipped)
	assert.Equal(t, 4, env.remote.calls("tasks"))
	assert.Equal(t, health.Closed, env.engine.Health()["tasks"].State)
}

func TestEngine_PushRetriesThenDead(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	_, err := env.engine.EnqueueLocalChange(ctx, "tasks", "t1", document.Document{"userId": "u1", "title": "x", "status": "todo"})
	require.NoError(t, err)
	env.remote.failUpsert["tasks"] = errUnavailable

	res := env.engine.PushAllCollections(ctx)
	require.ErrorIs(t, res.Collections["tasks"].Err, errUnavailable)
	assert.Equal(t, 1, env.engine.QueueStats()["tasks"].Depth)

	// запись еще в ожидании повтора
	res = env.engine.PushAllCollections(ctx)
	assert.NotContains(t, res.Collections, "tasks")

	env.advance(10 * time.Second)
	res = env.engine.PushAllCollections(ctx)
	assert.Equal(t, 1, res.Collections["tasks"].Dead)
	assert.Len(t, env.engine.DeadEntries("tasks"), 1)
	assert.Equal(t, 1, env.engine.Health()["tasks"].DeadEntries)

	delete(env.remote.failUpsert, "tasks")
	require.NoError(t, env.engine.Requeue(ctx, "tasks", "t1"))
	res = env.engine.PushAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Collections["tasks"].Pushed)
}

func TestEngine_PushOnlyCollectionIsNeverPulled(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	env.remote.add("activity_log", document.Document{"id": "a1", "user_id": "u1"})
	_, err := env.engine.EnqueueLocalChange(ctx, "activity_log", "a2", document.Document{"userId": "u1", "action": "opened"})
	require.NoError(t, err)

	res := env.engine.SyncOnce(ctx)
	require.NoError(t, res.Err())

	assert.Zero(t, env.remote.calls("activity_log"))
	assert.Equal(t, 1, res.Collections["activity_log"].Pushed)
	assert.Nil(t, env.local.get("activity_log", "a1"))
}

func TestEngine_FieldMergeTracksLocalEdits(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, env.local.Write(ctx, "preferences", document.Document{
		"id": "p1", "userId": "u1", "key": "theme", "value": "light", "note": "a",
		"logicalClock": 1, "updatedAt": "2024-01-01T00:00:00Z",
	}))

	_, err := env.engine.EnqueueLocalChange(ctx, "preferences", "p1", document.Document{
		"userId": "u1", "key": "theme", "value": "dark", "note": "a",
	})
	require.NoError(t, err)

	env.remote.add("preferences", document.Document{
		"id": "p1", "user_id": "u1", "key": "theme", "pref_value": "light", "note": "a", "color": "blue",
		"logical_clock": 7, "updated_at": "2024-02-01T00:00:00Z",
	})

	res := env.engine.PullAllCollections(ctx)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Collections["preferences"].Conflicts)

	merged := env.local.get("preferences", "p1")
	assert.Equal(t, "dark", merged["value"])
	assert.Equal(t, "blue", merged["color"])
	assert.Equal(t, int64(8), merged.LogicalClock())
	assert.Equal(t, 1, env.engine.QueueStats()["preferences"].Depth)
}

func TestEngine_RecoverLocalChanges(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, env.local.Write(ctx, "notes", document.Document{"id": "old", "userId": "u1", "title": "x", "updatedAt": "2023-01-01T00:00:00Z"}))
	require.NoError(t, env.local.Write(ctx, "notes", document.Document{"id": "new", "userId": "u1", "title": "y", "updatedAt": "2024-06-01T00:00:00Z"}))
	require.NoError(t, env.local.Write(ctx, "calendar_events", document.Document{"id": "e", "userId": "u1", "updatedAt": "2024-06-01T00:00:00Z"}))

	n, err := env.engine.RecoverLocalChanges(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, env.engine.QueueStats()["notes"].Depth)
	assert.NotContains(t, env.engine.QueueStats(), "calendar_events")
}

func TestEngine_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour
	env := newTestEnv(t, cfg)

	require.NoError(t, env.engine.Start(context.Background()))
	assert.ErrorIs(t, env.engine.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool { return env.remote.calls("tasks") >= 1 }, time.Second, 10*time.Millisecond)

	env.engine.Trigger()
	assert.Eventually(t, func() bool { return env.remote.calls("tasks") >= 2 }, time.Second, 10*time.Millisecond)

	env.engine.Stop()
	env.engine.Stop()
}

func TestEngine_StopLetsRunningCycleFinish(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour

	registry, err := collection.NewRegistry(cfg.BatchSize,
		collection.Config{Name: "tasks", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, BatchSize: 10, Priority: 1},
	)
	require.NoError(t, err)

	local := newBlockingLocal()
	remote := newFakeRemote()
	state := newMemState()
	remote.add("tasks", remoteTask("t1", 1, "2024-03-01T08:00:00Z", "milk"))

	engine, err := NewEngine(Deps{
		Log:      slog.Default(),
		Local:    local,
		Remote:   remote,
		State:    state,
		Registry: registry,
		DeviceID: "device-test",
	}, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Start(ctx))

	select {
	case <-local.entered:
	case <-time.After(time.Second):
		t.Fatal("cycle did not reach local write")
	}

	cancel()
	close(local.release)
	engine.Stop()

	assert.NotNil(t, local.get("tasks", "t1"))
	checkpoint, err := state.LoadCheckpoint(context.Background(), "tasks")
	require.NoError(t, err)
	assert.Equal(t, int64(1), checkpoint)
	assert.Equal(t, health.Closed, engine.Health()["tasks"].State)
}

func TestEngine_RealtimeNotificationTriggersCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour
	cfg.RealtimeEnabled = true

	registry, err := collection.NewRegistry(10,
		collection.Config{Name: "notes", Direction: collection.Bidirectional, Strategy: conflict.LastWriteWins, Priority: 1},
	)
	require.NoError(t, err)

	remote := &subscribingRemote{fakeRemote: newFakeRemote(), subscribed: make(map[string]int)}
	engine, err := NewEngine(Deps{
		Log:      slog.Default(),
		Local:    newMemLocal(),
		Remote:   remote,
		State:    newMemState(),
		Registry: registry,
	}, cfg)
	require.NoError(t, err)

	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	assert.Eventually(t, func() bool { return remote.calls("notes") >= 2 }, time.Second, 10*time.Millisecond)

	remote.mu.Lock()
	assert.Equal(t, 1, remote.subscribed["notes"])
	remote.mu.Unlock()
}

func TestNewEngine_RequiresStores(t *testing.T) {
	_, err := NewEngine(Deps{}, DefaultConfig())
	assert.Error(t, err)
}
