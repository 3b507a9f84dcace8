// Package harness provides the orchestration primitives for driving a
// replicated BFT key-value cluster through controlled failure scenarios.
//
// # Reading Guide
//
// Start with these three files to understand the core:
//   - cluster.go: the Controller/Client/Tracker interfaces the harness drives
//   - injector.go: quorum-aware crash planning (always includes the primary)
//   - poller.go: deadline-bounded convergence polling with transient retry
//
// # Architecture
//
// The harness package defines leaf primitives and collaborator interfaces;
// composition lives in sub-packages:
//   - harness/scenario/: named failure scenarios (single view change,
//     skip-view, crash-then-recover) composed from the primitives here
//   - harness/internal/clustertest/: an in-memory simulated cluster used by
//     the package tests
//
// The replica process controller, the KV wire client, and the linearizability
// tracker are external collaborators. A driver package registers concrete
// implementations via the NewClusterFunc factory variable.
//
// # Error taxonomy
//
// Observation errors against a live distributed system fall into four kinds:
// transient (retried by the poller and workload layers, see MarkTransient),
// deadline (the overall wait elapsed, a reportable failure), configuration
// (tagged ErrConfig, rejected before any cluster mutation), and assertion
// (expected/observed mismatches, always fatal to the scenario).
package harness
