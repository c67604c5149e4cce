// Package engine implements the Weft reactive dataflow core.
//
// The engine turns a tree of reactive combinator expressions into a
// live, incrementally-updated value graph: it gives every expression
// instance a stable slot address, routes external inputs through the
// graph deterministically, recomputes only what changed, and exposes
// change as minimal ordered deltas to a downstream consumer.
//
// ARCHITECTURE:
//
// Single-Writer Tick Loop:
// All evaluation happens in a single goroutine driven by discrete
// ticks. Each tick runs the same four phases:
//
//  1. ingest    - drain queued external inputs, assign arrival order
//  2. propagate - deliver inputs one wave at a time, re-evaluating
//     dirty slots in stable (SlotKey, arrival) order until quiescence
//  3. finalize  - free scopes scheduled for removal (never mid-tick)
//  4. flush     - hand ordered diffs and version bumps to the sink
//
// This ensures identical ordered input produces an identical ordered
// output-diff sequence, every run.
//
// CRITICAL PATTERNS:
//
// CP-1: Slot Identity
// Every live reactive cell is addressed by SlotKey = (ScopeId, ExprId).
// ScopeId derivation is a pure function of allocation history, so
// re-execution reproduces identical addresses. At most one cell exists
// per SlotKey at any time; collisions are fatal, never tolerated.
//
// CP-2: Deferred Finalization
// Scopes are never deallocated synchronously during propagation -
// removal marks the scope and an explicit end-of-tick pass frees it.
// This eliminates writes into already-freed consumers by construction.
//
// CP-3: Notify-Coalescing Subscriptions
// Node subscriptions separate notification from delivery: a capacity-1
// channel carries "something changed", the subscriber re-reads the
// current versioned value. Slow consumers see the latest value, never
// a queue of superseded ones; memory per subscriber is O(1).
//
// CP-4: Hold Permit
// A stateful accumulation body may only be evaluated once until its
// state write commits. Input waves are delivered sequentially, so three
// simultaneous pulses into a counter yield 3, not 1.
package engine
