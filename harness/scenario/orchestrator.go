// Package scenario composes the harness primitives into named failure
// scenarios: crash subsets of replicas including the primary, inject bounded
// client workload to force the liveness timers, wait for the cluster to
// converge to the expected view, then verify the cluster is fully live.
//
// Each scenario is a strictly sequenced pipeline: a crash action always
// precedes the workload window that depends on it, and a convergence wait
// always precedes the assertions that consume its result. A scenario run has
// exclusive use of the cluster; no two scenarios share a cluster instance.
package scenario

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bftbench/bftbench/harness"
)

// Options are the scenario-level tunables. They are test parameters, not
// protocol guarantees; the defaults match the timings used against real
// clusters and tests shrink them aggressively.
type Options struct {
	// WorkloadWindow bounds each burst of view-change-triggering writes.
	WorkloadWindow time.Duration
	// WorkloadIntensity is the number of tracked ops in flight per window.
	WorkloadIntensity int
	// WorkloadRate paces untracked workload writes (ops per second).
	WorkloadRate rate.Limit
	// ViewWaitTimeout bounds each convergence wait on a view predicate.
	ViewWaitTimeout time.Duration
	// PerPollTimeout bounds a single view query attempt.
	PerPollTimeout time.Duration
	// PollInterval is the fixed delay between view query attempts.
	PollInterval time.Duration
	// ReadYourWritesTimeout bounds the whole post-convergence
	// read-your-writes confirmation loop.
	ReadYourWritesTimeout time.Duration
	// ReadYourWritesAttempt bounds one attempt within that loop.
	ReadYourWritesAttempt time.Duration
	// SettleDelay is observed after a view change before exercising a
	// restarted or previously-down replica, covering state transfer.
	SettleDelay time.Duration
	// RestartSettleDelay is observed after restarting an already-caught-up
	// replica mid-scenario.
	RestartSettleDelay time.Duration
	// BaselineOps is the tracked op count used to establish a stable view.
	BaselineOps int
	// PostVerifyOps is the tracked op count confirming liveness after
	// convergence.
	PostVerifyOps int
}

func (o Options) withDefaults() Options {
	if o.WorkloadWindow <= 0 {
		o.WorkloadWindow = time.Second
	}
	if o.WorkloadIntensity < 1 {
		o.WorkloadIntensity = 1
	}
	if o.WorkloadRate <= 0 {
		o.WorkloadRate = harness.DefaultWorkloadRate
	}
	if o.ViewWaitTimeout <= 0 {
		o.ViewWaitTimeout = harness.DefaultPollTimeout
	}
	if o.PerPollTimeout <= 0 {
		o.PerPollTimeout = harness.DefaultPerPollTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = harness.DefaultPollInterval
	}
	if o.ReadYourWritesTimeout <= 0 {
		o.ReadYourWritesTimeout = 60 * time.Second
	}
	if o.ReadYourWritesAttempt <= 0 {
		o.ReadYourWritesAttempt = 5 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 10 * time.Second
	}
	if o.RestartSettleDelay <= 0 {
		o.RestartSettleDelay = 5 * time.Second
	}
	if o.BaselineOps < 1 {
		o.BaselineOps = 50
	}
	if o.PostVerifyOps < 1 {
		o.PostVerifyOps = 100
	}
	return o
}

// Orchestrator drives one cluster instance through failure scenarios. It
// owns no replica state itself; the controller owns process lifecycle and
// every mutation goes through it.
type Orchestrator struct {
	cfg      harness.Config
	ctrl     harness.Controller
	client   harness.Client
	tracker  harness.Tracker
	rng      *harness.PartitionedRNG
	injector *harness.Injector
	workload *harness.Workload
	opts     Options
}

// New creates an Orchestrator for the given cluster collaborators. The seed
// reproduces every random choice of the run: crash candidates, poll targets
// and workload keys each draw from an isolated stream derived from it.
func New(cfg harness.Config, ctrl harness.Controller, client harness.Client,
	tracker harness.Tracker, seed int64, opts Options) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	rng := harness.NewPartitionedRNG(seed)
	return &Orchestrator{
		cfg:      cfg,
		ctrl:     ctrl,
		client:   client,
		tracker:  tracker,
		rng:      rng,
		injector: harness.NewInjector(rng.ForSubsystem(harness.SubsystemCrashPlan)),
		workload: harness.NewWorkload(client, rng.ForSubsystem(harness.SubsystemWorkload), opts.WorkloadRate),
		opts:     opts,
	}, nil
}

// Config returns the cluster sizing the orchestrator runs against.
func (o *Orchestrator) Config() harness.Config {
	return o.cfg
}

func (o *Orchestrator) pollOptions() harness.PollOptions {
	return harness.PollOptions{
		Timeout:        o.opts.ViewWaitTimeout,
		PerPollTimeout: o.opts.PerPollTimeout,
		Interval:       o.opts.PollInterval,
	}
}

// startAllReplicas brings the full replica set up and verifies the count.
func (o *Orchestrator) startAllReplicas() error {
	for _, id := range harness.AllReplicas(o.cfg.N, nil) {
		if err := o.ctrl.StartReplica(id); err != nil {
			return errors.Wrapf(err, "starting replica %d", id)
		}
	}
	if live := len(o.ctrl.LiveReplicas(nil)); live != o.cfg.N {
		return errors.Newf("expected all %d replicas up initially, have %d", o.cfg.N, live)
	}
	return nil
}

// waitForViewOn polls replica id until its view satisfies pred. The context
// string labels the wait in the failure message, apollo-style.
func (o *Orchestrator) waitForViewOn(ctx context.Context, id harness.ReplicaID,
	pred func(harness.View) bool, what string) (harness.View, error) {
	v, err := harness.WaitForView(ctx, o.ctrl, id, pred, o.pollOptions())
	if err != nil {
		return v, errors.Wrapf(err, "%s (replica %d)", what, id)
	}
	logrus.Infof("%s: replica %d observes view %d", what, id, v)
	return v, nil
}

// currentViewOn reads the view from replica id, retrying transient errors
// but accepting the first successful observation.
func (o *Orchestrator) currentViewOn(ctx context.Context, id harness.ReplicaID) (harness.View, error) {
	return harness.WaitForView(ctx, o.ctrl, id,
		func(harness.View) bool { return true }, o.pollOptions())
}

// randomSurvivor picks a seeded-random replica outside the without set, used
// as the observation point for convergence waits.
func (o *Orchestrator) randomSurvivor(without harness.ReplicaSet) harness.ReplicaID {
	candidates := harness.AllReplicas(o.cfg.N, without)
	return candidates[o.rng.ForSubsystem(harness.SubsystemPollTarget).Intn(len(candidates))]
}

// crashPrimaryAnd plans and applies a crash of count replicas including
// primary, excluding protected, then verifies the quorum postcondition: the
// surviving set must still allow a successful view change.
func (o *Orchestrator) crashPrimaryAnd(count int, primary harness.ReplicaID,
	protected harness.ReplicaSet) ([]harness.ReplicaID, error) {
	plan, err := o.injector.PlanCrash(o.ctrl, count, primary, protected)
	if err != nil {
		return nil, err
	}
	if err := o.injector.CrashReplicas(o.ctrl, plan); err != nil {
		return nil, err
	}
	if live := len(o.ctrl.LiveReplicas(nil)); live < o.cfg.QuorumSize() {
		return plan, errors.Newf(
			"crash of %v left %d live replicas, below the %d needed for a view change",
			plan, live, o.cfg.QuorumSize())
	}
	return plan, nil
}

// sendRandomWrites injects tracked writes for one bounded window. The
// expiring window is the intended exit, not a failure.
func (o *Orchestrator) sendRandomWrites(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, o.opts.WorkloadWindow)
	defer cancel()
	if err := o.tracker.SendIndefiniteOps(wctx, o.opts.WorkloadIntensity); err != nil && wctx.Err() == nil {
		return errors.Wrap(err, "tracked workload window")
	}
	return nil
}

// waitForReadYourWrites retries the tracked read-your-writes check until it
// succeeds or the overall deadline elapses. Each attempt runs under its own
// timeout and only transient failures are retried; a genuine history
// violation fails immediately.
func (o *Orchestrator) waitForReadYourWrites(ctx context.Context) error {
	deadline, cancel := context.WithTimeout(ctx, o.opts.ReadYourWritesTimeout)
	defer cancel()
	for {
		attemptCtx, attemptCancel := context.WithTimeout(deadline, o.opts.ReadYourWritesAttempt)
		err := o.tracker.ReadYourWrites(attemptCtx)
		attemptCancel()
		if err == nil {
			return nil
		}
		if !harness.IsTransient(err) && !errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(err, "read-your-writes check")
		}
		select {
		case <-deadline.Done():
			return errors.Wrapf(err, "read-your-writes did not succeed within %s",
				o.opts.ReadYourWritesTimeout)
		case <-time.After(o.opts.PollInterval):
		}
	}
}

// settle sleeps for d unless the scenario context is cancelled first.
func (o *Orchestrator) settle(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
