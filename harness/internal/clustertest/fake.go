// Package clustertest provides an in-memory simulated BFT cluster used by
// harness and scenario tests. It models just enough protocol behavior for
// the orchestration logic to be exercised: crash-aware view changes with a
// configurable trigger delay, a committed-block counter, and an in-memory
// KV store. It is not a consensus implementation.
package clustertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bftbench/bftbench/harness"
)

// DefaultViewChangeDelay is the simulated gap between the first client
// pressure against a dead primary and the resulting view change. Tests that
// assert no-progress use an injection window shorter than this.
const DefaultViewChangeDelay = 100 * time.Millisecond

// Cluster implements harness.Controller, harness.Client and harness.Tracker
// against simulated replicas sharing a single view.
type Cluster struct {
	cfg harness.Config

	// ViewChangeDelay may be overridden before the cluster is used.
	ViewChangeDelay time.Duration

	mu      sync.Mutex
	live    map[harness.ReplicaID]bool
	view    harness.View
	blocks  uint64
	store   map[string]string
	armed   bool
	armedAt time.Time
	seq     int
}

// New creates a simulated cluster with all replicas stopped.
func New(cfg harness.Config) *Cluster {
	return &Cluster{
		cfg:             cfg,
		ViewChangeDelay: DefaultViewChangeDelay,
		live:            make(map[harness.ReplicaID]bool, cfg.N),
		store:           make(map[string]string),
	}
}

// StartReplica implements harness.Controller. Double-start is an error.
func (c *Cluster) StartReplica(id harness.ReplicaID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live[id] {
		return errors.Newf("replica %d is already running", id)
	}
	// A restarted replica catches up immediately in the simulation; real
	// state transfer latency is what the scenario settle delay covers.
	c.live[id] = true
	return nil
}

// StopReplica implements harness.Controller. Stopping a stopped replica is a
// no-op.
func (c *Cluster) StopReplica(id harness.ReplicaID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, id)
	return nil
}

// LiveReplicas implements harness.Controller.
func (c *Cluster) LiveReplicas(without harness.ReplicaSet) []harness.ReplicaID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(without)
}

func (c *Cluster) liveLocked(without harness.ReplicaSet) []harness.ReplicaID {
	out := make([]harness.ReplicaID, 0, len(c.live))
	for _, id := range harness.AllReplicas(c.cfg.N, without) {
		if c.live[id] {
			out = append(out, id)
		}
	}
	return out
}

// View implements harness.Controller. A stopped replica is unreachable.
func (c *Cluster) View(ctx context.Context, id harness.ReplicaID) (harness.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeAdvanceViewLocked()
	if !c.live[id] {
		return 0, harness.MarkTransient(errors.Newf("replica %d unreachable", id))
	}
	return c.view, nil
}

// Primary implements harness.Controller.
func (c *Cluster) Primary(ctx context.Context) (harness.ReplicaID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeAdvanceViewLocked()
	return c.cfg.PrimaryOf(c.view), nil
}

// maybeAdvanceViewLocked performs the simulated view change once the trigger
// delay has elapsed and a quorum of replicas is live. Consecutive dead
// primaries are skipped in one jump, so k consecutively crashed leaders
// advance the view by exactly k.
func (c *Cluster) maybeAdvanceViewLocked() {
	if !c.armed || time.Since(c.armedAt) < c.ViewChangeDelay {
		return
	}
	if len(c.liveLocked(nil)) < c.cfg.QuorumSize() {
		return
	}
	v := c.view + 1
	for !c.live[c.cfg.PrimaryOf(v)] {
		v++
	}
	c.view = v
	c.armed = false
}

// Write implements harness.Client. Writes against a dead primary fail with a
// transient error and arm the view-change timer, mirroring how client
// pressure drives liveness timers in the real protocol.
func (c *Cluster) Write(ctx context.Context, kv harness.KV) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(kv)
}

func (c *Cluster) writeLocked(kv harness.KV) error {
	c.maybeAdvanceViewLocked()
	if len(c.liveLocked(nil)) < c.cfg.QuorumSize() {
		return harness.MarkTransient(errors.Newf("no quorum: %d live, need %d",
			len(c.liveLocked(nil)), c.cfg.QuorumSize()))
	}
	primary := c.cfg.PrimaryOf(c.view)
	if !c.live[primary] {
		if !c.armed {
			c.armed = true
			c.armedAt = time.Now()
		}
		return harness.MarkTransient(errors.Newf("write timed out: primary %d is down", primary))
	}
	c.store[kv.Key] = kv.Value
	c.blocks++
	return nil
}

// Read implements harness.Client.
func (c *Cluster) Read(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeAdvanceViewLocked()
	if len(c.liveLocked(nil)) == 0 {
		return "", harness.MarkTransient(errors.New("no live replicas"))
	}
	v, ok := c.store[key]
	if !ok {
		return "", errors.Newf("key %q not found", key)
	}
	return v, nil
}

// LastBlock implements harness.Client.
func (c *Cluster) LastBlock(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeAdvanceViewLocked()
	if len(c.liveLocked(nil)) == 0 {
		return 0, harness.MarkTransient(errors.New("no live replicas"))
	}
	return c.blocks, nil
}

// RunConcurrentOps implements harness.Tracker. The simulated history check is
// trivial: every op must commit while the cluster is healthy.
func (c *Cluster) RunConcurrentOps(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mu.Lock()
		err := c.writeLocked(c.nextKVLocked())
		c.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "tracked op %d/%d", i+1, n)
		}
	}
	return nil
}

// ReadYourWrites implements harness.Tracker.
func (c *Cluster) ReadYourWrites(ctx context.Context) error {
	c.mu.Lock()
	kv := c.nextKVLocked()
	err := c.writeLocked(kv)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	got, err := c.Read(ctx, kv.Key)
	if err != nil {
		return err
	}
	if got != kv.Value {
		return errors.Newf("read-your-writes: key %q: wrote %q, read %q", kv.Key, kv.Value, got)
	}
	return nil
}

// SendIndefiniteOps implements harness.Tracker. Operation failures are
// swallowed; cancellation is the normal exit.
func (c *Cluster) SendIndefiniteOps(ctx context.Context, intensity int) error {
	for {
		for i := 0; i < intensity; i++ {
			c.mu.Lock()
			_ = c.writeLocked(c.nextKVLocked()) // failures expected mid-fault
			c.mu.Unlock()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}
}

func (c *Cluster) nextKVLocked() harness.KV {
	c.seq++
	return harness.KV{
		Key:   fmt.Sprintf("tracked_%d", c.seq),
		Value: fmt.Sprintf("tracked_value_%d", c.seq),
	}
}

// CommittedBlocks returns the committed block counter, for test assertions.
func (c *Cluster) CommittedBlocks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks
}

// CurrentView returns the cluster-wide view, bypassing reachability checks.
func (c *Cluster) CurrentView() harness.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeAdvanceViewLocked()
	return c.view
}

// IsLive reports whether replica id is running.
func (c *Cluster) IsLive(id harness.ReplicaID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live[id]
}
