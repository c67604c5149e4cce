// Package harness provides scenario-driven conformance testing for
// weft programs.
//
// A scenario compiles a program, feeds it scripted input batches tick
// by tick, and validates final values plus the full output trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: counter_basic
//	description: "Two increments reach 2"
//	program: programs/counter.cue
//	ticks:
//	  - events:
//	      - port: increment.press
//	        payload: null
//	  - events:
//	      - port: increment.press
//	        payload: null
//	expect:
//	  - binding: count
//	    value: 2
//
// # Deterministic Execution
//
// Every scenario runs with fixed batch tokens ("batch-000001", ...),
// so tick output is byte-identical across runs and suitable for golden
// file comparison via goldie. An incoming event batch maps to exactly
// one tick; the initial value-establishing tick runs before the first
// scripted batch.
package harness
