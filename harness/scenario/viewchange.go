package scenario

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/bftbench/bftbench/harness"
)

// SingleViewChangePrimaryDown validates the most basic view change: crash
// only the primary, inject writes, and converge to the next view.
func (o *Orchestrator) SingleViewChangePrimaryDown(ctx context.Context) error {
	return o.viewChangeWithConsecutiveFailures(ctx, 1)
}

// SkipView validates the skip-view scenario: both the primary and the
// expected next primary are down, so the first view change never completes
// and the replicas' timers carry the cluster directly to view+2.
func (o *Orchestrator) SkipView(ctx context.Context) error {
	return o.viewChangeWithConsecutiveFailures(ctx, 2)
}

// viewChangeWithConsecutiveFailures crashes k consecutive primaries starting
// at the current one and waits for the view to advance by exactly k. The
// expected view is computed explicitly; a single-step transition is never
// assumed.
func (o *Orchestrator) viewChangeWithConsecutiveFailures(ctx context.Context, k int) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}

	initialPrimary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	initialView, err := o.currentViewOn(ctx, initialPrimary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}

	toStop := make([]harness.ReplicaID, 0, k)
	for i := 0; i < k; i++ {
		toStop = append(toStop, o.cfg.PrimaryOf(initialView+harness.View(i)))
	}
	expectedView := initialView + harness.View(k)

	if err := o.sendRandomWrites(ctx); err != nil {
		return err
	}
	if _, err := o.waitForViewOn(ctx, initialPrimary,
		func(v harness.View) bool { return v == initialView },
		"initial view stable before crashing the primary"); err != nil {
		return err
	}

	for _, id := range toStop {
		if err := o.ctrl.StopReplica(id); err != nil {
			return errors.Wrapf(err, "stopping replica %d", id)
		}
	}
	logrus.Infof("crashed %d consecutive primaries %v, expecting view %d", k, toStop, expectedView)

	if err := o.sendRandomWrites(ctx); err != nil {
		return err
	}

	survivor := o.randomSurvivor(harness.NewReplicaSet(toStop...))
	if _, err := o.waitForViewOn(ctx, survivor,
		func(v harness.View) bool { return v == expectedView },
		"view change triggered"); err != nil {
		return err
	}

	if err := o.waitForReadYourWrites(ctx); err != nil {
		return err
	}
	return errors.Wrap(o.tracker.RunConcurrentOps(ctx, o.opts.PostVerifyOps),
		"post-convergence tracked ops")
}

// FReplicasDown crashes f replicas including the primary, protecting the
// expected next primary, and validates a single view change with the cluster
// at its fault budget.
func (o *Orchestrator) FReplicasDown(ctx context.Context) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}

	primary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	initialView, err := o.currentViewOn(ctx, primary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}
	nextPrimary := o.cfg.PrimaryOf(initialView + 1)

	crashed, err := o.crashPrimaryAnd(o.cfg.F, primary, harness.NewReplicaSet(nextPrimary))
	if err != nil {
		return err
	}
	for _, id := range crashed {
		if id == nextPrimary {
			return errors.Newf("crash plan %v includes the protected next primary %d", crashed, nextPrimary)
		}
	}

	if err := o.sendRandomWrites(ctx); err != nil {
		return err
	}

	survivor := o.randomSurvivor(harness.NewReplicaSet(crashed...))
	if _, err := o.waitForViewOn(ctx, survivor,
		func(v harness.View) bool { return v == initialView+1 },
		"view change triggered"); err != nil {
		return err
	}

	if err := o.waitForReadYourWrites(ctx); err != nil {
		return err
	}
	return errors.Wrap(o.tracker.RunConcurrentOps(ctx, o.opts.PostVerifyOps),
		"post-convergence tracked ops")
}

// NoProgressPrimaryDown validates the negative property: with only the
// primary down and a workload window deliberately shorter than the
// view-change timeout, no new block may be committed. The cluster must
// refuse unsafe progress, not merely make some progress eventually.
func (o *Orchestrator) NoProgressPrimaryDown(ctx context.Context) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}

	kv, err := o.workload.WriteKnownKV(ctx)
	if err != nil {
		return err
	}
	got, err := o.client.Read(ctx, kv.Key)
	if err != nil {
		return errors.Wrapf(err, "reading back baseline key %q", kv.Key)
	}
	if got != kv.Value {
		return errors.Newf("baseline write not executed: key %q: wrote %q, read %q", kv.Key, kv.Value, got)
	}

	primary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	initialView, err := o.currentViewOn(ctx, primary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}

	lastBlock, err := o.client.LastBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading last block before the crash")
	}

	if err := o.ctrl.StopReplica(primary); err != nil {
		return errors.Wrapf(err, "stopping primary %d", primary)
	}
	if err := o.workload.RunBounded(ctx, o.opts.WorkloadWindow, o.opts.WorkloadIntensity); err != nil {
		return err
	}

	survivor := o.randomSurvivor(harness.NewReplicaSet(primary))
	if _, err := o.waitForViewOn(ctx, survivor,
		func(v harness.View) bool { return v == initialView+1 },
		"view change triggered"); err != nil {
		return err
	}

	newLastBlock, err := o.client.LastBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "reading last block after the view change")
	}
	if newLastBlock != lastBlock {
		return errors.Newf("block committed while the primary was down: last block %d, was %d",
			newLastBlock, lastBlock)
	}
	return nil
}

// CatchUpAfterViewChange validates that a replica which missed a view change
// while crashed catches up and serves the new view once restarted. Requires
// f >= 2: the bystander and the primary are down simultaneously.
func (o *Orchestrator) CatchUpAfterViewChange(ctx context.Context) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}
	if err := o.tracker.RunConcurrentOps(ctx, o.opts.BaselineOps); err != nil {
		return errors.Wrap(err, "baseline tracked ops")
	}

	primary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	initialView, err := o.currentViewOn(ctx, primary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}
	nextPrimary := o.cfg.PrimaryOf(initialView + 1)

	bystander := o.randomSurvivor(harness.NewReplicaSet(primary, nextPrimary))
	if _, err := o.waitForViewOn(ctx, bystander,
		func(v harness.View) bool { return v == initialView },
		"bystander works in the initial view"); err != nil {
		return err
	}

	logrus.Infof("crashing bystander replica %d before the view change", bystander)
	if err := o.ctrl.StopReplica(bystander); err != nil {
		return errors.Wrapf(err, "stopping bystander %d", bystander)
	}
	if err := o.ctrl.StopReplica(primary); err != nil {
		return errors.Wrapf(err, "stopping primary %d", primary)
	}
	if err := o.sendRandomWrites(ctx); err != nil {
		return err
	}

	survivor := o.randomSurvivor(harness.NewReplicaSet(primary, bystander))
	if _, err := o.waitForViewOn(ctx, survivor,
		func(v harness.View) bool { return v == initialView+1 },
		"view change triggered"); err != nil {
		return err
	}

	// Let the new view's working window rebuild before exercising the
	// restarted replica.
	if err := o.settle(ctx, o.opts.SettleDelay); err != nil {
		return err
	}
	if err := o.ctrl.StartReplica(bystander); err != nil {
		return errors.Wrapf(err, "restarting bystander %d", bystander)
	}
	if err := o.tracker.RunConcurrentOps(ctx, o.opts.BaselineOps); err != nil {
		return errors.Wrap(err, "tracked ops after restart")
	}

	_, err = o.waitForViewOn(ctx, bystander,
		func(v harness.View) bool { return v == initialView+1 },
		"restarted replica works in the new view")
	return err
}

// RestartReplicaAfterViewChange validates that replicas restart safely after
// a view change: the old primary rejoins, and a random other replica
// survives a stop/start cycle in the new view.
func (o *Orchestrator) RestartReplicaAfterViewChange(ctx context.Context) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}
	if err := o.tracker.RunConcurrentOps(ctx, o.opts.BaselineOps); err != nil {
		return errors.Wrap(err, "baseline tracked ops")
	}

	primary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	initialView, err := o.currentViewOn(ctx, primary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}

	if err := o.ctrl.StopReplica(primary); err != nil {
		return errors.Wrapf(err, "stopping primary %d", primary)
	}
	if err := o.sendRandomWrites(ctx); err != nil {
		return err
	}

	survivor := o.randomSurvivor(harness.NewReplicaSet(primary))
	if _, err := o.waitForViewOn(ctx, survivor,
		func(v harness.View) bool { return v == initialView+1 },
		"view change triggered"); err != nil {
		return err
	}
	newPrimary := o.cfg.PrimaryOf(initialView + 1)

	if err := o.ctrl.StartReplica(primary); err != nil {
		return errors.Wrapf(err, "restarting old primary %d", primary)
	}
	if err := o.settle(ctx, o.opts.SettleDelay); err != nil {
		return err
	}

	unstable := o.randomSurvivor(harness.NewReplicaSet(primary, newPrimary))
	logrus.Infof("restarting replica %d after the view change", unstable)
	if err := o.ctrl.StopReplica(unstable); err != nil {
		return errors.Wrapf(err, "stopping replica %d", unstable)
	}
	if err := o.ctrl.StartReplica(unstable); err != nil {
		return errors.Wrapf(err, "restarting replica %d", unstable)
	}
	if err := o.settle(ctx, o.opts.RestartSettleDelay); err != nil {
		return err
	}
	if err := o.tracker.RunConcurrentOps(ctx, o.opts.BaselineOps); err != nil {
		return errors.Wrap(err, "tracked ops after restarts")
	}

	// Views may have advanced past the first change while the replicas were
	// bouncing, so both waits accept any later view.
	if _, err := o.waitForViewOn(ctx, unstable,
		func(v harness.View) bool { return v >= initialView+1 },
		"restarted replica works in the new view"); err != nil {
		return err
	}
	_, err = o.waitForViewOn(ctx, primary,
		func(v harness.View) bool { return v >= initialView+1 },
		"old primary activates the new view")
	return err
}

// MultipleViewChanges drives two consecutive view-change rounds, each
// crashing c+1 replicas including the current primary, restarting the
// crashed set between rounds and confirming read-your-writes throughout.
// Requires c < f so the surviving set still reaches the view-change quorum.
func (o *Orchestrator) MultipleViewChanges(ctx context.Context) error {
	if err := o.startAllReplicas(); err != nil {
		return err
	}

	currentPrimary, err := o.ctrl.Primary(ctx)
	if err != nil {
		return errors.Wrap(err, "querying initial primary")
	}
	view, err := o.currentViewOn(ctx, currentPrimary)
	if err != nil {
		return errors.Wrap(err, "querying initial view")
	}

	const rounds = 2
	for round := 0; round < rounds; round++ {
		if live := len(o.ctrl.LiveReplicas(nil)); live != o.cfg.N {
			return errors.Newf("round %d: expected all %d replicas up, have %d", round, o.cfg.N, live)
		}
		primary := o.cfg.PrimaryOf(view)
		nextPrimary := o.cfg.PrimaryOf(view + 1)

		crashed, err := o.crashPrimaryAnd(o.cfg.C+1, primary, harness.NewReplicaSet(nextPrimary))
		if err != nil {
			return errors.Wrapf(err, "round %d", round)
		}
		if err := o.sendRandomWrites(ctx); err != nil {
			return err
		}

		survivor := o.randomSurvivor(harness.NewReplicaSet(crashed...))
		expected := view + 1
		newView, err := o.waitForViewOn(ctx, survivor,
			func(v harness.View) bool { return v >= expected },
			"view change triggered")
		if err != nil {
			return errors.Wrapf(err, "round %d", round)
		}
		view = newView

		for _, id := range crashed {
			if err := o.ctrl.StartReplica(id); err != nil {
				return errors.Wrapf(err, "round %d: restarting replica %d", round, id)
			}
		}
	}

	if err := o.waitForReadYourWrites(ctx); err != nil {
		return err
	}
	// All replicas are back; wait until the final view is active on the
	// replica expected to lead it before the last consistency check.
	if _, err := o.waitForViewOn(ctx, o.cfg.PrimaryOf(view),
		func(v harness.View) bool { return v >= view },
		"ongoing view changes completed"); err != nil {
		return err
	}
	return o.waitForReadYourWrites(ctx)
}
