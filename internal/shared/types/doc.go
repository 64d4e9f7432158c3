// Package types provides shared data structures for the jsbench backend.
//
// This package defines the benchmark data model exchanged between the
// controller, the execution harness and the HTTP/websocket surfaces.
//
// Core Types:
//   - Dependency: external script or module loaded before user code
//   - TestCase: one benchmarkable snippet plus its dependencies and flags
//   - Config: shared settings for a set of test cases
//   - Suite: a Config paired with its test cases
//
// State Types:
//   - TestState: throughput run lifecycle and result
//   - ReplState: single instrumented run lifecycle and result
//   - TimeMarker, LogEntry: REPL instrumentation
//
// Errors:
//   - RunError: every failure delivered to the controller, tagged with an ErrorKind
//
// Example Usage:
//
//	tc := types.TestCase{
//	    ID:   string(id.NewCaseID()),
//	    Code: "return [1, 2, 3].map(x => x * 2)",
//	}
package types
