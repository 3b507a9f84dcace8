package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bftbench/bftbench/harness"
	"github.com/bftbench/bftbench/harness/internal/clustertest"
)

// testOptions shrinks every scenario tunable so a full scenario runs in well
// under a second against the simulated cluster.
func testOptions() Options {
	return Options{
		WorkloadWindow:        50 * time.Millisecond,
		WorkloadIntensity:     1,
		WorkloadRate:          5000,
		ViewWaitTimeout:       5 * time.Second,
		PerPollTimeout:        200 * time.Millisecond,
		PollInterval:          2 * time.Millisecond,
		ReadYourWritesTimeout: 3 * time.Second,
		ReadYourWritesAttempt: 200 * time.Millisecond,
		SettleDelay:           20 * time.Millisecond,
		RestartSettleDelay:    10 * time.Millisecond,
		BaselineOps:           10,
		PostVerifyOps:         20,
	}
}

func newTestOrchestrator(t *testing.T, cfg harness.Config, opts Options) (*Orchestrator, *clustertest.Cluster) {
	t.Helper()
	fake := clustertest.New(cfg)
	fake.ViewChangeDelay = 30 * time.Millisecond
	o, err := New(cfg, fake, fake, fake, 42, opts)
	require.NoError(t, err)
	return o, fake
}

func TestSingleViewChangePrimaryDown_N4F1C0(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 4, F: 1, C: 0}, testOptions())

	require.NoError(t, o.SingleViewChangePrimaryDown(context.Background()))

	// Crashing replica 0 at view 0 must elect replica 1 exactly.
	assert.Equal(t, harness.View(1), fake.CurrentView())
	assert.False(t, fake.IsLive(0))
	for _, id := range []harness.ReplicaID{1, 2, 3} {
		assert.True(t, fake.IsLive(id))
	}
}

func TestSingleViewChange_ReadYourWritesInNewView(t *testing.T) {
	cfg := harness.Config{N: 4, F: 1, C: 0}
	o, fake := newTestOrchestrator(t, cfg, testOptions())
	ctx := context.Background()

	require.NoError(t, o.SingleViewChangePrimaryDown(ctx))

	// A write in the new view must be readable from the surviving replicas.
	require.NoError(t, fake.Write(ctx, harness.KV{Key: "k1", Value: "v1"}))
	got, err := fake.Read(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
}

func TestFReplicasDown_N7F2C0(t *testing.T) {
	cfg := harness.Config{N: 7, F: 2, C: 0}
	o, fake := newTestOrchestrator(t, cfg, testOptions())

	require.NoError(t, o.FReplicasDown(context.Background()))

	assert.Equal(t, harness.View(1), fake.CurrentView())
	// The expected next primary was protected and must still be live.
	assert.True(t, fake.IsLive(1))
	// Exactly f replicas are down and the quorum survived.
	live := fake.LiveReplicas(nil)
	assert.Len(t, live, cfg.N-cfg.F)
	assert.GreaterOrEqual(t, len(live), cfg.QuorumSize())
}

// TestSkipView_N7F2C0 covers the skip-view arithmetic: with the current and
// next primaries both down at view 0, the cluster converges to view 2, never
// view 1.
func TestSkipView_N7F2C0(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 7, F: 2, C: 0}, testOptions())

	require.NoError(t, o.SkipView(context.Background()))

	assert.Equal(t, harness.View(2), fake.CurrentView())
	assert.False(t, fake.IsLive(0))
	assert.False(t, fake.IsLive(1))
}

func TestSkipView_WriteReadableOnSurvivor(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 7, F: 2, C: 0}, testOptions())
	ctx := context.Background()

	require.NoError(t, o.SkipView(ctx))

	require.NoError(t, fake.Write(ctx, harness.KV{Key: "post-skip", Value: "ok"}))
	got, err := fake.Read(ctx, "post-skip")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestNoProgressPrimaryDown_BlockUnchanged(t *testing.T) {
	opts := testOptions()
	opts.WorkloadWindow = 30 * time.Millisecond

	o, fake := newTestOrchestrator(t, harness.Config{N: 4, F: 1, C: 0}, opts)
	// The workload window must end before the view change fires, otherwise
	// post-change writes would commit inside the window.
	fake.ViewChangeDelay = 150 * time.Millisecond

	require.NoError(t, o.NoProgressPrimaryDown(context.Background()))
	assert.Equal(t, harness.View(1), fake.CurrentView())
}

func TestCatchUpAfterViewChange_N7F2C0(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 7, F: 2, C: 0}, testOptions())

	require.NoError(t, o.CatchUpAfterViewChange(context.Background()))

	// The bystander was restarted; only the crashed primary stays down.
	assert.Equal(t, harness.View(1), fake.CurrentView())
	assert.Len(t, fake.LiveReplicas(nil), 6)
	assert.False(t, fake.IsLive(0))
}

func TestRestartReplicaAfterViewChange_N4F1C0(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 4, F: 1, C: 0}, testOptions())

	require.NoError(t, o.RestartReplicaAfterViewChange(context.Background()))

	// Everyone is back up in the new view, including the old primary.
	assert.Len(t, fake.LiveReplicas(nil), 4)
	assert.GreaterOrEqual(t, fake.CurrentView(), harness.View(1))
}

func TestMultipleViewChanges_N7F2C0(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 7, F: 2, C: 0}, testOptions())

	require.NoError(t, o.MultipleViewChanges(context.Background()))

	// Two rounds with c+1=1 crash each advance the view twice.
	assert.GreaterOrEqual(t, fake.CurrentView(), harness.View(2))
	assert.Len(t, fake.LiveReplicas(nil), 7)
}

func TestScenario_DeterministicForSeed(t *testing.T) {
	// Two runs with the same seed crash the same replicas.
	run := func() []harness.ReplicaID {
		cfg := harness.Config{N: 7, F: 2, C: 0}
		fake := clustertest.New(cfg)
		fake.ViewChangeDelay = 30 * time.Millisecond
		o, err := New(cfg, fake, fake, fake, 7, testOptions())
		require.NoError(t, err)
		require.NoError(t, o.FReplicasDown(context.Background()))
		down := make([]harness.ReplicaID, 0, cfg.F)
		for _, id := range harness.AllReplicas(cfg.N, nil) {
			if !fake.IsLive(id) {
				down = append(down, id)
			}
		}
		return down
	}
	assert.Equal(t, run(), run())
}

func TestOrchestrator_New_RejectsInvalidConfig(t *testing.T) {
	fake := clustertest.New(harness.Config{N: 4, F: 1, C: 0})
	_, err := New(harness.Config{N: 4, F: 2, C: 0}, fake, fake, fake, 1, Options{})
	require.Error(t, err)
	assert.True(t, harness.IsConfig(err))
}

func TestViewMonotonicityAcrossScenario(t *testing.T) {
	o, fake := newTestOrchestrator(t, harness.Config{N: 7, F: 2, C: 0}, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sample a survivor's view concurrently with the scenario and verify it
	// never decreases.
	views := make(chan harness.View, 4096)
	go func() {
		for ctx.Err() == nil {
			if v, err := fake.View(context.Background(), 2); err == nil {
				views <- v
			}
			time.Sleep(time.Millisecond)
		}
		close(views)
	}()

	require.NoError(t, o.SkipView(ctx))
	cancel()

	last := harness.View(-1)
	for v := range views {
		require.GreaterOrEqual(t, v, last, "view regressed on a surviving replica")
		last = v
	}
}
