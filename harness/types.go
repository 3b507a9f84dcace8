package harness

import "fmt"

// ReplicaID is the stable identity of a replica process, in [0, N).
type ReplicaID int

// View is a monotonically increasing leadership epoch. The replica whose id
// equals view mod N is the expected primary for that view.
type View int64

// KV is a single key/value pair written through the client protocol.
type KV struct {
	Key   string
	Value string
}

// ReplicaSet is a set of replica ids, used for protected/crashed sets.
type ReplicaSet map[ReplicaID]bool

// NewReplicaSet builds a ReplicaSet from the given ids.
func NewReplicaSet(ids ...ReplicaID) ReplicaSet {
	s := make(ReplicaSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Union returns a new set containing the members of s and other.
func (s ReplicaSet) Union(other ReplicaSet) ReplicaSet {
	out := make(ReplicaSet, len(s)+len(other))
	for id := range s {
		out[id] = true
	}
	for id := range other {
		out[id] = true
	}
	return out
}

// Contains reports whether id is a member of s. Safe on a nil set.
func (s ReplicaSet) Contains(id ReplicaID) bool {
	return s[id]
}

func (s ReplicaSet) String() string {
	ids := make([]ReplicaID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return fmt.Sprintf("%v", ids)
}

// AllReplicas returns the ordered ids [0, n) minus the without set.
func AllReplicas(n int, without ReplicaSet) []ReplicaID {
	out := make([]ReplicaID, 0, n)
	for i := 0; i < n; i++ {
		if !without.Contains(ReplicaID(i)) {
			out = append(out, ReplicaID(i))
		}
	}
	return out
}
