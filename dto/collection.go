package dto

import (
	"fmt"
	"sort"
	"time"

	"github.com/chogori-io/k2go/transport"
)

// PVID (Partition Version Id) is a monotonically advancing stamp on a
// partition's ownership. A mismatch between the client-stamped PVID and
// the server's current PVID drives a routing refresh.
type PVID uint64

// CollectionMetadata is the server-chosen liveness and retention policy
// for a collection.
type CollectionMetadata struct {
	HeartbeatDeadline time.Duration
	RetentionWindow   time.Duration
}

// KeyRangeAssignment assigns a [StartKey, EndKey) range of a collection's
// keyspace to a partition endpoint. EndKey == nil means "to the end of the
// keyspace".
type KeyRangeAssignment struct {
	StartKey Key
	EndKey   Key
	Endpoint transport.Endpoint
	PVID     PVID
}

func (a KeyRangeAssignment) owns(key Key) bool {
	if key.Compare(a.StartKey) < 0 {
		return false
	}
	if a.EndKey != nil && key.Compare(a.EndKey) >= 0 {
		return false
	}
	return true
}

// PartitionMap is a collection's ordered sequence of key-range
// assignments, plus the version the oracle assigned it. The client does
// not compare versions across a refresh; Version is only reported by
// Collection.String.
type PartitionMap struct {
	Version     uint64
	Assignments []KeyRangeAssignment
}

// FindOwner resolves key to the partition assignment owning it. Assignments
// are kept sorted by StartKey, so lookup is a binary search rather than a
// linear scan over the partition count.
func (m *PartitionMap) FindOwner(key Key) (KeyRangeAssignment, bool) {
	if m == nil || len(m.Assignments) == 0 {
		return KeyRangeAssignment{}, false
	}
	var assignments = m.Assignments
	var i = sort.Search(len(assignments), func(i int) bool {
		return assignments[i].EndKey == nil || key.Compare(assignments[i].EndKey) < 0
	})
	if i == len(assignments) || !assignments[i].owns(key) {
		return KeyRangeAssignment{}, false
	}
	return assignments[i], true
}

// Sort orders the assignments by StartKey in place; the CPO client sorts a
// freshly fetched partition map once before caching it.
func (m *PartitionMap) Sort() {
	sort.Slice(m.Assignments, func(i, j int) bool {
		return m.Assignments[i].StartKey.Less(m.Assignments[j].StartKey)
	})
}

// Collection is a named logical keyspace, range-partitioned across server
// nodes.
type Collection struct {
	Name         string
	Metadata     CollectionMetadata
	PartitionMap PartitionMap
}

func (c *Collection) String() string {
	return fmt.Sprintf("Collection{name=%s, partitions=%d, v=%d}",
		c.Name, len(c.PartitionMap.Assignments), c.PartitionMap.Version)
}
