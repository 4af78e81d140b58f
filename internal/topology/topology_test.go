package topology_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nus-sys/neobft-artifact/internal/cluster"
	"github.com/nus-sys/neobft-artifact/internal/topology"
)

func hosts(role cluster.Role, n int) []cluster.HostEntry {
	entries := make([]cluster.HostEntry, n)
	for i := range entries {
		entries[i] = cluster.HostEntry{
			Role:     role,
			Public:   fmt.Sprintf("%s-%d.example.com", role, i),
			Internal: fmt.Sprintf("10.0.0.%d", i+1),
		}
	}
	return entries
}

func TestReplicaSliceProperties(t *testing.T) {
	for leaves := 1; leaves <= 8; leaves++ {
		for replicas := 0; replicas <= 13; replicas++ {
			next := 0
			minSize, maxSize := math.MaxInt, 0
			for i := 0; i < leaves; i++ {
				lo, hi := topology.ReplicaSlice(replicas, leaves, i)
				assert.Equalf(t, next, lo, "leaves=%d replicas=%d leaf=%d: slices must be contiguous and disjoint", leaves, replicas, i)
				assert.LessOrEqual(t, lo, hi)
				next = hi
				minSize = min(minSize, hi-lo)
				maxSize = max(maxSize, hi-lo)
			}
			assert.Equalf(t, replicas, next, "leaves=%d replicas=%d: slices must cover every replica exactly once", leaves, replicas)
			assert.LessOrEqualf(t, maxSize-minSize, 1, "leaves=%d replicas=%d: slice sizes must differ by at most one", leaves, replicas)
		}
	}
}

func TestReplicaSliceDeterministic(t *testing.T) {
	bounds := func() [][2]int {
		b := make([][2]int, 16)
		for i := range b {
			lo, hi := topology.ReplicaSlice(33, 16, i)
			b[i] = [2]int{lo, hi}
		}
		return b
	}
	assert.Equal(t, bounds(), bounds())
}

func TestPlanShape(t *testing.T) {
	relays := hosts(cluster.RoleRelay, 21)
	replicas := hosts(cluster.RoleReplica, 7)

	topo, err := topology.Plan(relays, replicas)
	assert.NoError(t, err)
	assert.Equal(t, relays[0], topo.Root)
	assert.Equal(t, relays[1:5], topo.Layer2)
	assert.Equal(t, relays[5:], topo.Leaves)
	assert.Equal(t, relays[5:9], topo.Layer2Feed[0])
	assert.Equal(t, relays[9:13], topo.Layer2Feed[1])
	assert.Equal(t, relays[13:17], topo.Layer2Feed[2])
	assert.Equal(t, relays[17:21], topo.Layer2Feed[3])

	flat := make([]cluster.HostEntry, 0, len(replicas))
	for _, slice := range topo.LeafReplicas {
		flat = append(flat, slice...)
	}
	assert.Equal(t, replicas, flat)
}

func TestPlanDeterministic(t *testing.T) {
	relays := hosts(cluster.RoleRelay, 21)
	replicas := hosts(cluster.RoleReplica, 9)

	first, err := topology.Plan(relays, replicas)
	assert.NoError(t, err)
	second, err := topology.Plan(relays, replicas)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPlanSingleReplica(t *testing.T) {
	// smallest valid shape: f=0, one replica, more leaves than replicas
	relays := hosts(cluster.RoleRelay, 8)
	replicas := hosts(cluster.RoleReplica, 1)

	topo, err := topology.Plan(relays, replicas)
	assert.NoError(t, err)
	assert.Len(t, topo.Leaves, 3)

	nonEmpty := 0
	for _, slice := range topo.LeafReplicas {
		if len(slice) > 0 {
			nonEmpty++
			assert.Equal(t, replicas, slice)
		}
	}
	assert.Equal(t, 1, nonEmpty)
}

func TestPlanFewerRelaysThanFanout(t *testing.T) {
	// six relays: one leaf, second-layer feeds partially empty
	topo, err := topology.Plan(hosts(cluster.RoleRelay, 6), hosts(cluster.RoleReplica, 3))
	assert.NoError(t, err)
	assert.Len(t, topo.Leaves, 1)
	assert.Len(t, topo.Layer2Feed[0], 1)
	assert.Empty(t, topo.Layer2Feed[1])
	assert.Equal(t, hosts(cluster.RoleReplica, 3), topo.LeafReplicas[0])
}

func TestPlanNoLeafRelay(t *testing.T) {
	for _, count := range []int{0, 1, 5} {
		_, err := topology.Plan(hosts(cluster.RoleRelay, count), hosts(cluster.RoleReplica, 3))
		assert.Error(t, err)
		var cfgErr *topology.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	}
}
