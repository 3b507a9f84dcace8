package harness

import "context"

// Controller is the replica process-control facade the harness drives.
// Side effects are external process signals; the harness treats them as
// synchronous. Stopping an already-stopped replica is a no-op; starting an
// already-started replica is an error surfaced to the caller.
type Controller interface {
	// StartReplica launches the replica process for id.
	StartReplica(id ReplicaID) error
	// StopReplica kills the replica process for id.
	StopReplica(id ReplicaID) error
	// LiveReplicas returns the currently running replicas, in id order,
	// minus the without set.
	LiveReplicas(without ReplicaSet) []ReplicaID
	// View returns the current view as observed by replica id. Fails with a
	// transient error when the replica is unreachable.
	View(ctx context.Context, id ReplicaID) (View, error)
	// Primary returns the replica currently believed to be primary.
	Primary(ctx context.Context) (ReplicaID, error)
}

// Client is the KV protocol client the workload generator writes through.
// Wire encoding is owned by the driver, not the harness.
type Client interface {
	// Write commits kv to the cluster. Request timeouts while the primary is
	// down surface as transient errors.
	Write(ctx context.Context, kv KV) error
	// Read returns the value stored under key.
	Read(ctx context.Context, key string) (string, error)
	// LastBlock returns the id of the last committed block, used for
	// no-progress assertions across a fault window.
	LastBlock(ctx context.Context) (uint64, error)
}

// Tracker is the linearizability-history collaborator. The harness only
// consumes success or failure; history data stays opaque.
type Tracker interface {
	// RunConcurrentOps issues n tracked concurrent reads/writes and verifies
	// the resulting history.
	RunConcurrentOps(ctx context.Context, n int) error
	// ReadYourWrites performs one tracked write-then-read check.
	ReadYourWrites(ctx context.Context) error
	// SendIndefiniteOps issues tracked writes until ctx is cancelled, with at
	// most intensity operations in flight. Cancellation is the normal exit.
	SendIndefiniteOps(ctx context.Context, intensity int) error
}

// NewClusterFunc is set by the process-control driver package to construct
// the concrete collaborators for a cluster config. The cmd layer fails fast
// when no driver has registered.
var NewClusterFunc func(cfg Config) (Controller, Client, Tracker, error)
