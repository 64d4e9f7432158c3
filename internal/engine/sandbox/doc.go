/*
Package sandbox is the execution harness: it runs assembled benchmark
programs inside isolated goja JavaScript runtimes.

# Overview

Each Runtime is one execution context with its own global scope. A run
proceeds in two phases:

 1. Setup: the assembled program runs once. The dependency prelude loads
    scripts (importScripts) or modules (require, after an ESM to CommonJS
    transform), shared setup code runs, and the test case registers its
    entry point function.
 2. Measurement: the entry point is invoked either repeatedly (Benchmark)
    or exactly once with console and marker capture (Repl).

Async entry points are awaited per invocation by driving the runtime's
event loop (setTimeout, setInterval, promise jobs) until the returned
promise settles.

# Termination

User code may never return. Cancellation and the optional Timeout are
enforced with goja's Interrupt, which aborts running JavaScript at the
next instruction, plus a stop channel that unblocks the event loop.
Terminate is the only method safe to call from another goroutine.

# Isolation

Dependencies evaluated in one Runtime are never visible to another. The
Pool recreates the underlying VM between runs, so consecutive test cases
sharing a pool slot start from a clean global scope.

# Usage

	rt, err := sandbox.New(sandbox.DefaultConfig(), fetcher, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	program, err := assembler.Build(assembler.Input{TestCase: tc})
	if err != nil {
		return err
	}
	result, err := rt.Benchmark(ctx, program)
*/
package sandbox
