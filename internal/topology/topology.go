// Package topology computes the relay fan-out tree that carries the
// sequencer's multicast feed down to the replicas.
//
// The tree has a fixed shape: relay 0 is the root fed by the sequencer, it
// forwards to relays 1..5, each of those forwards to four more (relays
// 5..21), and every relay from index 5 on is a leaf forwarding directly to a
// slice of the replica set.
package topology

import (
	"github.com/nus-sys/neobft-artifact/internal/cluster"
)

const (
	fanout    = 4
	leafStart = 1 + fanout // first leaf relay index
)

// Topology is the relay fan-out plan of one round
type Topology struct {
	// Root receives the sequencer's multicast feed and forwards to Layer2
	Root   cluster.HostEntry
	Layer2 []cluster.HostEntry
	// Layer2Feed[i] holds the leaf relays fed by Layer2[i]
	Layer2Feed [][]cluster.HostEntry
	// Leaves are all relays from index 5 on; LeafReplicas[i] is the
	// contiguous replica slice leaf i forwards to
	Leaves       []cluster.HostEntry
	LeafReplicas [][]cluster.HostEntry
}

// ConfigError marks a topology precondition violation; it is fatal for the
// run, not retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "topology: " + e.Reason
}

// Plan builds the fan-out tree for the given relays and partitions the
// replica set across the leaf layer. At least one leaf relay is required;
// replicas may be fewer than leaves, in which case some leaves receive an
// empty slice and forward nothing.
func Plan(relays, replicas []cluster.HostEntry) (*Topology, error) {
	if len(relays) <= leafStart {
		return nil, &ConfigError{Reason: "at least one leaf relay required"}
	}

	topo := &Topology{
		Root:   relays[0],
		Layer2: relays[1:leafStart],
		Leaves: relays[leafStart:],
	}
	topo.Layer2Feed = make([][]cluster.HostEntry, len(topo.Layer2))
	for i := range topo.Layer2 {
		topo.Layer2Feed[i] = clamp(relays, leafStart+fanout*i, leafStart+fanout*(i+1))
	}
	topo.LeafReplicas = make([][]cluster.HostEntry, len(topo.Leaves))
	for i := range topo.Leaves {
		lo, hi := ReplicaSlice(len(replicas), len(topo.Leaves), i)
		topo.LeafReplicas[i] = replicas[lo:hi]
	}

	return topo, nil
}

// ReplicaSlice returns the half-open replica index range assigned to leaf i
// of leafCount. The integer-division boundaries make the slices contiguous,
// non-overlapping, covering, and within one of each other in size.
func ReplicaSlice(replicaCount, leafCount, i int) (lo, hi int) {
	return replicaCount * i / leafCount, replicaCount * (i + 1) / leafCount
}

func clamp(relays []cluster.HostEntry, lo, hi int) []cluster.HostEntry {
	if lo > len(relays) {
		lo = len(relays)
	}
	if hi > len(relays) {
		hi = len(relays)
	}
	return relays[lo:hi]
}
