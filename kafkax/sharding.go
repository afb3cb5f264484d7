package kafkax

import (
	"hash/fnv"
	"sync/atomic"
)

// Sharder picks which decode worker (0..n-1) a message from (topic,
// partition) is routed to. Implementations must be deterministic given
// the same inputs so ordering guarantees stay documentable, per spec.md
// §4.3's design note.
type Sharder interface {
	Shard(topic string, partition int32, n int) int
}

// roundRobinSharder ignores topic/partition and cycles through workers in
// order. This matches the original source exactly and gives no
// per-partition ordering guarantee beyond N=1.
type roundRobinSharder struct {
	counter atomic.Uint64
}

// RoundRobinSharder returns the default Sharder: deterministic only in the
// aggregate (every message still goes to exactly one worker), not per key.
func RoundRobinSharder() Sharder {
	return &roundRobinSharder{}
}

func (s *roundRobinSharder) Shard(_ string, _ int32, n int) int {
	return int(s.counter.Add(1)-1) % n
}

// partitionHashSharder routes by a hash of (topic, partition), so all
// messages for a given partition always land on the same worker and are
// therefore strictly ordered relative to each other. This is the
// alternative the spec's Design Notes calls out explicitly.
type partitionHashSharder struct{}

// PartitionHashSharder returns a Sharder that preserves per-partition
// ordering at the cost of even load distribution across workers.
func PartitionHashSharder() Sharder {
	return partitionHashSharder{}
}

func (partitionHashSharder) Shard(topic string, partition int32, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte{byte(partition), byte(partition >> 8), byte(partition >> 16), byte(partition >> 24)})
	return int(h.Sum32()) % n
}
