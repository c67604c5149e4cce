// Package value defines the runtime value taxonomy of the dataflow core.
//
// Two control-flow values are first-class and are NOT errors:
//
//   - Skip: "no event this tick". Skip propagates silently through every
//     combinator - field access on Skip yields Skip, arithmetic and
//     comparison on Skip yield Skip.
//   - Flushed: the fail-fast marker. Downstream nodes check and forward
//     it opaquely without computing; it unwraps at defined boundaries
//     (variable binding, block output).
//
// Aggregate values (Object, List) are treated as immutable once built:
// mutation happens by constructing a new value, never in place. This is
// what makes versioned snapshot-reads safe for concurrent readers.
package value
