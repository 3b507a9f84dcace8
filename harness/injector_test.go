package harness

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubController is a minimal Controller for planner tests: it tracks which
// replicas are live and records stop calls.
type stubController struct {
	n       int
	stopped ReplicaSet
}

func newStubController(n int) *stubController {
	return &stubController{n: n, stopped: make(ReplicaSet)}
}

func (s *stubController) StartReplica(id ReplicaID) error {
	if !s.stopped.Contains(id) {
		return assert.AnError
	}
	delete(s.stopped, id)
	return nil
}

func (s *stubController) StopReplica(id ReplicaID) error {
	s.stopped[id] = true
	return nil
}

func (s *stubController) LiveReplicas(without ReplicaSet) []ReplicaID {
	return AllReplicas(s.n, s.stopped.Union(without))
}

func (s *stubController) View(ctx context.Context, id ReplicaID) (View, error) {
	return 0, nil
}

func (s *stubController) Primary(ctx context.Context) (ReplicaID, error) {
	return 0, nil
}

func TestPlanCrash_AlwaysIncludesPrimaryFirst(t *testing.T) {
	ctrl := newStubController(7)
	in := NewInjector(rand.New(rand.NewSource(1)))

	plan, err := in.PlanCrash(ctrl, 2, 0, NewReplicaSet(1))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, ReplicaID(0), plan[0])
}

// TestPlanCrash_Properties checks the planner's candidate-pool arithmetic
// across cluster sizings and many seeds: the plan has exactly the requested
// size, contains the primary, never a protected replica, and no duplicates.
func TestPlanCrash_Properties(t *testing.T) {
	configs := []Config{
		{N: 4, F: 1, C: 0},
		{N: 6, F: 1, C: 1},
		{N: 7, F: 2, C: 0},
		{N: 9, F: 2, C: 1},
		{N: 10, F: 3, C: 0},
	}
	for _, cfg := range configs {
		for seed := int64(0); seed < 50; seed++ {
			ctrl := newStubController(cfg.N)
			in := NewInjector(rand.New(rand.NewSource(seed)))
			primary := ReplicaID(0)
			protected := NewReplicaSet(1)

			plan, err := in.PlanCrash(ctrl, cfg.F, primary, protected)
			require.NoError(t, err, "cfg=%+v seed=%d", cfg, seed)
			require.Len(t, plan, cfg.F, "cfg=%+v seed=%d", cfg, seed)

			seen := make(ReplicaSet)
			for _, id := range plan {
				assert.False(t, protected.Contains(id),
					"cfg=%+v seed=%d: plan %v contains protected replica %d", cfg, seed, plan, id)
				assert.False(t, seen.Contains(id),
					"cfg=%+v seed=%d: plan %v contains duplicate %d", cfg, seed, plan, id)
				assert.GreaterOrEqual(t, int(id), 0)
				assert.Less(t, int(id), cfg.N)
				seen[id] = true
			}
			assert.True(t, seen.Contains(primary), "plan %v must include the primary", plan)
		}
	}
}

func TestPlanCrash_DeterministicForSeed(t *testing.T) {
	plan1, err := NewInjector(rand.New(rand.NewSource(99))).PlanCrash(newStubController(10), 4, 0, NewReplicaSet(1))
	require.NoError(t, err)
	plan2, err := NewInjector(rand.New(rand.NewSource(99))).PlanCrash(newStubController(10), 4, 0, NewReplicaSet(1))
	require.NoError(t, err)
	assert.Equal(t, plan1, plan2)
}

func TestPlanCrash_PoolTooSmallFailsLoudly(t *testing.T) {
	// n=4 with primary and one protected leaves a pool of 2; asking for 4
	// crashes must error, never silently under-crash.
	ctrl := newStubController(4)
	in := NewInjector(rand.New(rand.NewSource(1)))

	_, err := in.PlanCrash(ctrl, 4, 0, NewReplicaSet(1))
	require.Error(t, err)
	assert.True(t, IsConfig(err))
}

func TestPlanCrash_RejectsBadArguments(t *testing.T) {
	ctrl := newStubController(4)
	in := NewInjector(rand.New(rand.NewSource(1)))

	_, err := in.PlanCrash(ctrl, 0, 0, nil)
	require.Error(t, err)
	assert.True(t, IsConfig(err))

	_, err = in.PlanCrash(ctrl, 1, 0, NewReplicaSet(0))
	require.Error(t, err)
	assert.True(t, IsConfig(err))
}

func TestCrashReplicas_StopsEveryPlanMember(t *testing.T) {
	ctrl := newStubController(7)
	in := NewInjector(rand.New(rand.NewSource(3)))

	plan, err := in.PlanCrash(ctrl, 3, 0, NewReplicaSet(1))
	require.NoError(t, err)
	require.NoError(t, in.CrashReplicas(ctrl, plan))

	for _, id := range plan {
		assert.True(t, ctrl.stopped.Contains(id), "replica %d not stopped", id)
	}
	assert.Len(t, ctrl.LiveReplicas(nil), 4)
}

func TestPlanCrash_IsStateless(t *testing.T) {
	// Two consecutive plans from one injector both satisfy the contract;
	// nothing carries over between calls.
	ctrl := newStubController(9)
	in := NewInjector(rand.New(rand.NewSource(5)))

	plan1, err := in.PlanCrash(ctrl, 3, 0, NewReplicaSet(1))
	require.NoError(t, err)
	require.NoError(t, in.CrashReplicas(ctrl, plan1))

	// Replica 1 is the new primary; protect its successor.
	plan2, err := in.PlanCrash(ctrl, 2, 1, NewReplicaSet(2))
	require.NoError(t, err)
	require.Len(t, plan2, 2)
	assert.Equal(t, ReplicaID(1), plan2[0])
	for _, id := range plan2[1:] {
		assert.NotContains(t, plan1, id, "second plan drew an already-crashed replica")
	}
}
