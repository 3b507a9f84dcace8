package harness

import "github.com/cockroachdb/errors"

// Config holds the immutable cluster sizing parameters for a scenario run.
// N is the total replica count, F the maximum tolerated faulty replicas, and
// C the maximum tolerated slow replicas affecting the fast commit path.
// The deployment under test guarantees N >= 3F + 2C + 1.
type Config struct {
	N int `yaml:"n"`
	F int `yaml:"f"`
	C int `yaml:"c"`
}

// QuorumSize returns the live replica count required for the cluster to make
// progress, 2F + 2C + 1.
func (c Config) QuorumSize() int {
	return 2*c.F + 2*c.C + 1
}

// PrimaryOf returns the replica expected to act as primary in view v.
func (c Config) PrimaryOf(v View) ReplicaID {
	return ReplicaID(int64(v) % int64(c.N))
}

// Validate checks the BFT sizing precondition. Scenario drivers call this
// once before any cluster mutation; a violation is a configuration error.
func (c Config) Validate() error {
	if c.N < 1 || c.F < 0 || c.C < 0 {
		return errors.Mark(
			errors.Newf("cluster config n=%d f=%d c=%d: counts must be non-negative and n >= 1", c.N, c.F, c.C),
			ErrConfig)
	}
	if c.N < 3*c.F+2*c.C+1 {
		return errors.Mark(
			errors.Newf("cluster config n=%d f=%d c=%d violates n >= 3f + 2c + 1", c.N, c.F, c.C),
			ErrConfig)
	}
	return nil
}
