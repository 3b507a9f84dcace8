package harness

import (
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// Injector plans and applies crash sets against the cluster. It is a
// stateless planner: every call reads the live replica set fresh from the
// controller and holds nothing across calls. Randomness comes from the
// injected seeded source so crash plans are reproducible.
type Injector struct {
	rng *rand.Rand
}

// NewInjector creates an Injector drawing crash candidates from rng.
func NewInjector(rng *rand.Rand) *Injector {
	return &Injector{rng: rng}
}

// PlanCrash computes an ordered crash set of exactly count replicas.
// The primary is always first. The remaining count-1 members are drawn
// uniformly without replacement (shuffle-then-take) from the live replicas
// minus the protected set and the primary. A pool smaller than requested is
// a configuration error, never a silent under-crash.
//
// The quorum postcondition (live count after the crash >= 2f+2c+1) belongs
// to the caller: only the scenario knows whether it expects progress.
func (in *Injector) PlanCrash(ctrl Controller, count int, primary ReplicaID, protected ReplicaSet) ([]ReplicaID, error) {
	if count < 1 {
		return nil, errors.Mark(errors.Newf("crash count %d: must be >= 1", count), ErrConfig)
	}
	if protected.Contains(primary) {
		return nil, errors.Mark(
			errors.Newf("primary %d cannot be protected from its own crash", primary), ErrConfig)
	}

	pool := ctrl.LiveReplicas(protected.Union(NewReplicaSet(primary)))
	if len(pool) < count-1 {
		return nil, errors.Mark(
			errors.Newf("crash count %d exceeds eligible pool %v (primary %d, protected %v)",
				count, pool, primary, protected),
			ErrConfig)
	}

	in.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	plan := make([]ReplicaID, 0, count)
	plan = append(plan, primary)
	plan = append(plan, pool[:count-1]...)
	return plan, nil
}

// CrashReplicas stops every replica in plan. Crashes are simultaneous from
// the protocol's perspective, so stop order does not matter.
func (in *Injector) CrashReplicas(ctrl Controller, plan []ReplicaID) error {
	for _, id := range plan {
		logrus.Infof("crashing replica %d", id)
		if err := ctrl.StopReplica(id); err != nil {
			return errors.Wrapf(err, "stopping replica %d", id)
		}
	}
	return nil
}
