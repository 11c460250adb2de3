package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walmartlabs/concord-sub001/internal/process"
)

func TestHeartbeatUpsert(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Heartbeat("agent-1", map[string]string{"flavor": "docker"}))
	assert.Equal(t, 1, r.Len())

	// Re-heartbeat replaces the capability set.
	assert.True(t, r.Heartbeat("agent-1", map[string]string{"flavor": "k8s"}))
	assert.Equal(t, 1, r.Len())

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "k8s", snap[0].Capabilities["flavor"])
}

func TestHeartbeatRejectsEmptyID(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Heartbeat("", nil))
}

func TestHeartbeatCapacityBound(t *testing.T) {
	r := NewRegistry(WithMaxAgents(2))

	assert.True(t, r.Heartbeat("a", nil))
	assert.True(t, r.Heartbeat("b", nil))
	assert.False(t, r.Heartbeat("c", nil))

	// Known agents still refresh when the registry is full.
	assert.True(t, r.Heartbeat("a", nil))
}

func TestTTLEviction(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	r := NewRegistry(WithTTL(10*time.Second), WithNowFunc(clock))

	require.True(t, r.Heartbeat("agent-1", map[string]string{"flavor": "docker"}))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "agent-1", r.Match(map[string]string{"flavor": "docker"}))

	now = now.Add(11 * time.Second)
	assert.Equal(t, "", r.Match(map[string]string{"flavor": "docker"}))
	assert.Equal(t, 0, r.Len())
}

func TestMatchCapabilitySuperset(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Heartbeat("big", map[string]string{"flavor": "docker", "region": "us-east", "gpu": "a100"}))

	assert.Equal(t, "big", r.Match(map[string]string{"flavor": "docker"}))
	assert.Equal(t, "big", r.Match(nil))
	assert.Equal(t, "", r.Match(map[string]string{"flavor": "k8s"}))
	assert.Equal(t, "", r.Match(map[string]string{"flavor": "docker", "arch": "arm64"}))
}

func TestMatchSkipsFullWorkChannel(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Heartbeat("agent-1", nil))

	for i := 0; i < workBuffer; i++ {
		require.True(t, r.Deliver("agent-1", Assignment{Instance: &process.Instance{ID: "i"}}))
	}
	assert.Equal(t, "", r.Match(nil))

	// Draining one slot makes the agent matchable again.
	_, ok := r.Take("agent-1")
	require.True(t, ok)
	assert.Equal(t, "agent-1", r.Match(nil))
}

func TestDeliverAndTake(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Heartbeat("agent-1", nil))

	inst := &process.Instance{ID: "inst-1"}
	assert.True(t, r.Deliver("agent-1", Assignment{Instance: inst}))

	got, ok := r.Take("agent-1")
	require.True(t, ok)
	assert.Equal(t, "inst-1", got.Instance.ID)

	_, ok = r.Take("agent-1")
	assert.False(t, ok)
}

func TestDeliverToUnknownAgent(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Deliver("ghost", Assignment{}))

	_, ok := r.Take("ghost")
	assert.False(t, ok)
}
