package scenario

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/bftbench/bftbench/harness"
)

// Spec names one failure scenario together with the cluster sizing it
// requires. Preconditions are checked before any replica is touched;
// violating them is a configuration error, not a scenario failure.
type Spec struct {
	Name        string
	Description string
	// MinF is the minimum fault budget the scenario needs. Skip-view needs
	// f >= 2 because two replicas are down at once.
	MinF int
	// RequiresCLessThanF marks scenarios that crash c+1 replicas and still
	// need the view-change quorum of 2f+2c+1 survivors.
	RequiresCLessThanF bool
	Run                func(ctx context.Context, o *Orchestrator) error
}

// Check validates cfg against the scenario's preconditions.
func (s Spec) Check(cfg harness.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.F < s.MinF {
		return errors.Mark(
			errors.Newf("scenario %q requires f >= %d, cluster has f=%d", s.Name, s.MinF, cfg.F),
			harness.ErrConfig)
	}
	if s.RequiresCLessThanF && cfg.C >= cfg.F {
		return errors.Mark(
			errors.Newf("scenario %q requires c < f, cluster has c=%d f=%d", s.Name, cfg.C, cfg.F),
			harness.ErrConfig)
	}
	return nil
}

// Registry holds the named scenarios a driver can run.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Add registers spec. Duplicate names panic: they are a programming error in
// scenario registration, not runtime input.
func (r *Registry) Add(spec Spec) {
	if _, ok := r.specs[spec.Name]; ok {
		panic("scenario registered twice: " + spec.Name)
	}
	r.specs[spec.Name] = spec
}

// Get returns the scenario registered under name.
func (r *Registry) Get(name string) (Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Names returns the registered scenario names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the built-in scenario set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Add(Spec{
		Name:        "single-vc-primary-down",
		Description: "crash only the primary and converge to the next view",
		MinF:        1,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.SingleViewChangePrimaryDown(ctx)
		},
	})
	r.Add(Spec{
		Name:        "vc-f-replicas-down",
		Description: "crash f replicas including the primary, protect the next primary",
		MinF:        1,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.FReplicasDown(ctx)
		},
	})
	r.Add(Spec{
		Name:        "skip-view",
		Description: "crash the current and next primaries, converge to view+2",
		MinF:        2,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.SkipView(ctx)
		},
	})
	r.Add(Spec{
		Name:        "no-progress-primary-down",
		Description: "with the primary down and a short workload window, no block may be committed",
		MinF:        1,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.NoProgressPrimaryDown(ctx)
		},
	})
	r.Add(Spec{
		Name:        "catch-up-after-vc",
		Description: "a replica that missed a view change catches up after restart",
		MinF:        2,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.CatchUpAfterViewChange(ctx)
		},
	})
	r.Add(Spec{
		Name:        "restart-replica-after-vc",
		Description: "replicas restart safely in the new view after a view change",
		MinF:        1,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.RestartReplicaAfterViewChange(ctx)
		},
	})
	r.Add(Spec{
		Name:               "multiple-vc",
		Description:        "two consecutive view-change rounds crashing c+1 replicas each",
		MinF:               1,
		RequiresCLessThanF: true,
		Run: func(ctx context.Context, o *Orchestrator) error {
			return o.MultipleViewChanges(ctx)
		},
	})
	return r
}

// RunScenario checks spec's preconditions against the orchestrator's cluster
// config and executes it. The duration is logged either way.
func (o *Orchestrator) RunScenario(ctx context.Context, spec Spec) error {
	if err := spec.Check(o.cfg); err != nil {
		return err
	}
	logrus.Infof("running scenario %q against n=%d f=%d c=%d", spec.Name, o.cfg.N, o.cfg.F, o.cfg.C)
	start := time.Now()
	err := spec.Run(ctx, o)
	if err != nil {
		logrus.Errorf("scenario %q failed after %s: %v", spec.Name, time.Since(start), err)
		return errors.Wrapf(err, "scenario %q", spec.Name)
	}
	logrus.Infof("scenario %q passed in %s", spec.Name, time.Since(start))
	return nil
}
