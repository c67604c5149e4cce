// Package compiler parses CUE program definitions into executable
// dataflow programs.
//
// A program is a CUE struct with a bindings list; each binding pairs a
// name with an expression tree. Expressions are structs discriminated
// by a "kind" field:
//
//	bindings: [{
//		name: "count"
//		expr: {
//			kind: "hold"
//			initial: {kind: "int", value: 0}
//			state:   "n"
//			body: {
//				kind:  "then"
//				input: {kind: "link", alias: "increment.press"}
//				body: {
//					kind:   "pipe"
//					input:  {kind: "var", name: "n"}
//					method: "add"
//					args: [{kind: "int", value: 1}]
//				}
//			}
//		}
//	}]
//
// Compilation uses the CUE SDK's Go API directly, never a CLI
// subprocess. Expression ids are assigned in source order during the
// walk, which is what makes cell addresses stable across runs of the
// same program.
package compiler
