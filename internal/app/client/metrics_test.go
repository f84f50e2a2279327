package client

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistsync/internal/domain/health"
	"assistsync/internal/domain/queue"
)

type fakeStats struct {
	queue  map[string]queue.Stats
	health map[string]health.CollectionHealth
}

func (f fakeStats) QueueStats() map[string]queue.Stats {
	return f.queue
}

func (f fakeStats) Health() map[string]health.CollectionHealth {
	return f.health
}

func TestCollector(t *testing.T) {
	source := fakeStats{
		queue: map[string]queue.Stats{
			"tasks": {Depth: 3, OldestPendingAge: 90 * time.Second, Dead: 1},
		},
		health: map[string]health.CollectionHealth{
			"tasks": {State: health.Open, ConsecutiveFailures: 5},
		},
	}

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(source)))

	expected := `
# HELP assistsync_queue_depth Pending push queue entries.
# TYPE assistsync_queue_depth gauge
assistsync_queue_depth{collection="tasks"} 3
# HELP assistsync_queue_oldest_pending_seconds Age of the oldest pending push queue entry.
# TYPE assistsync_queue_oldest_pending_seconds gauge
assistsync_queue_oldest_pending_seconds{collection="tasks"} 90
# HELP assistsync_breaker_state Circuit breaker state: 0 closed, 1 half-open, 2 open.
# TYPE assistsync_breaker_state gauge
assistsync_breaker_state{collection="tasks"} 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"assistsync_queue_depth", "assistsync_queue_oldest_pending_seconds", "assistsync_breaker_state")
	assert.NoError(t, err)

	assert.Equal(t, 5, testutil.CollectAndCount(NewCollector(source)))
}

func TestBreakerValue(t *testing.T) {
	assert.Equal(t, 0.0, breakerValue(health.Closed))
	assert.Equal(t, 1.0, breakerValue(health.HalfOpen))
	assert.Equal(t, 2.0, breakerValue(health.Open))
}
