package harness

import (
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG provides isolated RNG streams per subsystem so that a single
// master seed reproduces an entire scenario run: crash-candidate sampling,
// poll-target selection, and workload key generation each draw from their own
// deterministically derived stream.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a new partitioned RNG with the given master seed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the given subsystem name.
// The subsystem RNG is created lazily and derived from the master seed;
// repeated calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, exists := p.subsystems[name]; exists {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.subsystems[name] = rng
	return rng
}

// deriveSeed derives a subsystem seed from the master seed and subsystem
// name. Hash-based derivation keeps the streams order-independent:
// subsystemSeed = masterSeed XOR hash(subsystemName).
func (p *PartitionedRNG) deriveSeed(subsystemName string) int64 {
	h := fnv.New64a()
	h.Write([]byte(subsystemName))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem name constants for the harness's randomness consumers.
const (
	SubsystemCrashPlan  = "crashplan"
	SubsystemPollTarget = "polltarget"
	SubsystemWorkload   = "workload"
)
