package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

func testConfig() Config {
	config := DefaultConfig()
	config.Timeout = 5 * time.Second
	config.WarmupIterations = 2
	config.WarmupDuration = 10 * time.Millisecond
	config.MinSampleDuration = 20 * time.Millisecond
	config.MinBatchDuration = time.Millisecond
	config.CDNURL = "https://cdn.test/npm"
	return config
}

func newRuntime(t *testing.T, config Config, fetcher loader.Fetcher) *Runtime {
	t.Helper()
	if fetcher == nil {
		fetcher = loader.Static{}
	}
	rt, err := New(config, fetcher, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func build(t *testing.T, tc types.TestCase) assembler.Program {
	t.Helper()
	program, err := assembler.Build(assembler.Input{TestCase: tc})
	require.NoError(t, err)
	return program
}

func requireKind(t *testing.T, err error, kind *types.RunError) *types.RunError {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "got %v", err)
	var re *types.RunError
	require.True(t, errors.As(err, &re))
	return re
}

func TestBenchmarkSimpleSnippet(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	result, err := rt.Benchmark(context.Background(), build(t, types.TestCase{ID: "a", Code: "return 1 + 1"}))
	require.NoError(t, err)

	assert.Greater(t, result.OpsPerSecond, 0.0)
	assert.Greater(t, result.AverageTime, 0.0)
	assert.NotEmpty(t, result.AverageTimeFormatted)
	assert.Greater(t, result.Iterations, int64(0))
	assert.Greater(t, result.Samples, 0)
}

func TestBenchmarkSetupRunsOnce(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	program, err := assembler.Build(assembler.Input{
		TestCase: types.TestCase{ID: "a", Code: "if (data.length !== 3) throw new Error('bad setup')"},
		Setup:    "var setups = (globalThis.setups || 0) + 1; globalThis.setups = setups; var data = [1, 2, 3];",
	})
	require.NoError(t, err)

	_, err = rt.Benchmark(context.Background(), program)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rt.vm.Get("setups").ToInteger())
}

func TestBenchmarkThrowIsRuntimeError(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	result, err := rt.Benchmark(context.Background(), build(t, types.TestCase{ID: "a", Code: "throw new Error('boom')"}))
	assert.Nil(t, result)

	re := requireKind(t, err, types.ErrRuntime)
	assert.Contains(t, re.Message, "boom")
	assert.Contains(t, re.Value, "boom")
}

func TestBenchmarkSyntaxErrorIsCompileError(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	_, err := rt.Benchmark(context.Background(), build(t, types.TestCase{ID: "a", Code: "return ("}))
	requireKind(t, err, types.ErrCompile)
}

func TestBenchmarkAsync(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{
		ID:    "a",
		Async: true,
		Code:  "await new Promise(resolve => setTimeout(resolve, 1)); return 1",
	}
	result, err := rt.Benchmark(context.Background(), build(t, tc))
	require.NoError(t, err)

	// every iteration waits for its own timer
	assert.GreaterOrEqual(t, result.AverageTime, 1.0)
}

func TestBenchmarkAsyncRejection(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Async: true, Code: "await Promise.resolve(); throw new TypeError('nope')"}
	_, err := rt.Benchmark(context.Background(), build(t, tc))

	re := requireKind(t, err, types.ErrRuntime)
	assert.Contains(t, re.Value, "nope")
}

func TestBenchmarkAsyncNeverSettles(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Async: true, Code: "await new Promise(() => {})"}
	_, err := rt.Benchmark(context.Background(), build(t, tc))

	re := requireKind(t, err, types.ErrRuntime)
	assert.Contains(t, re.Message, "never settled")
}

func TestTerminateInfiniteLoop(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		rt.Terminate()
	}()

	_, err := rt.Benchmark(context.Background(), build(t, types.TestCase{ID: "a", Code: "while (true) {}"}))
	requireKind(t, err, types.ErrCancelled)
	assert.True(t, rt.Terminated())
}

func TestTerminateDuringAsyncWait(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		rt.Terminate()
	}()

	tc := types.TestCase{ID: "a", Async: true, Code: "await new Promise(resolve => setTimeout(resolve, 60000))"}
	_, err := rt.Repl(context.Background(), build(t, tc))
	requireKind(t, err, types.ErrCancelled)
}

func TestContextCancelIsCancelled(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := rt.Benchmark(ctx, build(t, types.TestCase{ID: "a", Code: "while (true) {}"}))
	requireKind(t, err, types.ErrCancelled)
}

func TestTimeoutIsRuntimeError(t *testing.T) {
	config := testConfig()
	config.Timeout = 50 * time.Millisecond
	rt := newRuntime(t, config, nil)

	_, err := rt.Benchmark(context.Background(), build(t, types.TestCase{ID: "a", Code: "while (true) {}"}))
	re := requireKind(t, err, types.ErrRuntime)
	assert.Contains(t, re.Message, "timeout")
}

func TestTimeoutAfterSamplesKeepsThem(t *testing.T) {
	config := testConfig()
	config.Timeout = 300 * time.Millisecond
	config.WarmupIterations = 0
	config.MinSampleDuration = time.Minute

	for _, tc := range []types.TestCase{
		{ID: "sync", Code: "const end = Date.now() + 20; while (Date.now() < end) {}"},
		{ID: "async", Async: true, Code: "await new Promise(resolve => setTimeout(resolve, 20))"},
	} {
		t.Run(tc.ID, func(t *testing.T) {
			rt := newRuntime(t, config, nil)

			result, err := rt.Benchmark(context.Background(), build(t, tc))
			require.NoError(t, err)
			assert.Positive(t, result.Iterations)
			assert.Positive(t, result.Samples)
			assert.Greater(t, result.AverageTime, 15.0)
			assert.Less(t, result.OpsPerSecond, 70.0)
		})
	}
}

func TestReplCapturesConsole(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Code: `
console.log("hi", 1);
mark("a");
console.warn({ a: 1 });
performance.mark("b");
console.error(undefined, null, [1, 2]);
`}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)

	require.Len(t, result.Logs, 3)
	assert.Equal(t, "hi 1", result.Logs[0].Value)
	assert.Equal(t, "log", result.Logs[0].Level)
	assert.Equal(t, `{"a":1}`, result.Logs[1].Value)
	assert.Equal(t, "warn", result.Logs[1].Level)
	assert.Equal(t, "undefined null [1,2]", result.Logs[2].Value)
	assert.Equal(t, "error", result.Logs[2].Level)

	require.Len(t, result.Markers, 2)
	assert.Equal(t, "a", result.Markers[0].Name)
	assert.Equal(t, "b", result.Markers[1].Name)
	assert.LessOrEqual(t, result.Markers[0].Time, result.Markers[1].Time)

	sum := 0.0
	for _, m := range result.Markers {
		sum += m.DurationPercentage
	}
	assert.LessOrEqual(t, sum, 100.0)
	assert.GreaterOrEqual(t, result.Duration, result.Markers[1].Time)
}

func TestReplIgnoresSetupOutput(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	program, err := assembler.Build(assembler.Input{
		TestCase: types.TestCase{ID: "a", Code: "console.log('run')"},
		Setup:    "console.log('setup'); mark('setup');",
	})
	require.NoError(t, err)

	result, err := rt.Repl(context.Background(), program)
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "run", result.Logs[0].Value)
	assert.Empty(t, result.Markers)
}

func TestReplLogLimit(t *testing.T) {
	config := testConfig()
	config.MaxLogEntries = 3
	rt := newRuntime(t, config, nil)

	result, err := rt.Repl(context.Background(), build(t, types.TestCase{ID: "a", Code: "for (let i = 0; i < 10; i++) console.log(i)"}))
	require.NoError(t, err)
	assert.Len(t, result.Logs, 3)
}

func TestReplDiscardsCaptureOnError(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	result, err := rt.Repl(context.Background(), build(t, types.TestCase{ID: "a", Code: "console.log('x'); mark('m'); null.boom"}))
	assert.Nil(t, result)
	requireKind(t, err, types.ErrRuntime)
}

func TestReplAsyncDurationSpansAwait(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Async: true, Code: "await new Promise(r => setTimeout(r, 20)); mark('done')"}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Duration, 20.0)
	require.Len(t, result.Markers, 1)
	assert.GreaterOrEqual(t, result.Markers[0].Time, 20.0)
}

func TestWorkerGlobals(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Code: "console.log(typeof require, typeof process, self === globalThis, typeof queueMicrotask)"}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "undefined undefined true function", result.Logs[0].Value)
}

func TestTimersOrdering(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	tc := types.TestCase{ID: "a", Async: true, Code: `
const seen = [];
await new Promise(resolve => {
	setTimeout(() => seen.push("b"), 10);
	setTimeout(() => seen.push("a"), 0);
	const cleared = setTimeout(() => seen.push("x"), 5);
	clearTimeout(cleared);
	let n = 0;
	const iv = setInterval(() => { if (++n === 3) { clearInterval(iv); seen.push("i"); resolve(); } }, 1);
	queueMicrotask(() => seen.push("m"));
});
await new Promise(r => setTimeout(r, 15));
console.log(seen.join(","));
`}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "m,a,i,b", result.Logs[0].Value)
}

func TestClassicDependencies(t *testing.T) {
	fetcher := loader.Static{
		"https://cdn.test/a.js": "var LIB = { twice: function (x) { return x * 2; } };",
		"https://cdn.test/b.js": "var LIB2 = { quad: function (x) { return LIB.twice(LIB.twice(x)); } };",
	}
	rt := newRuntime(t, testConfig(), fetcher)

	tc := types.TestCase{
		ID:   "a",
		Code: "console.log(LIB2.quad(5))",
		Dependencies: []types.Dependency{
			{URL: "https://cdn.test/a.js"},
			{URL: "https://cdn.test/b.js"},
		},
	}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "20", result.Logs[0].Value)
}

func TestClassicDependencyFailFast(t *testing.T) {
	fetcher := loader.Static{
		"https://cdn.test/a.js": "globalThis.evaluated = true;",
	}
	rt := newRuntime(t, testConfig(), fetcher)

	tc := types.TestCase{
		ID:   "a",
		Code: "return 1",
		Dependencies: []types.Dependency{
			{URL: "https://cdn.test/a.js"},
			{URL: "https://cdn.test/missing.js"},
		},
	}
	_, err := rt.Benchmark(context.Background(), build(t, tc))
	re := requireKind(t, err, types.ErrDependencyLoad)
	assert.Contains(t, re.Message, "missing.js")

	// nothing was evaluated because a later fetch failed
	assert.True(t, rt.vm.Get("evaluated") == nil)
}

func TestDependencyLoadErrorNotSwallowed(t *testing.T) {
	rt := newRuntime(t, testConfig(), loader.Static{})

	program, err := assembler.Build(assembler.Input{
		TestCase: types.TestCase{ID: "a", Code: "return 1"},
		Setup:    "try { importScripts('https://cdn.test/missing.js'); } catch (e) {}",
	})
	require.NoError(t, err)

	_, err = rt.Benchmark(context.Background(), program)
	requireKind(t, err, types.ErrDependencyLoad)
}

func TestModuleDependencies(t *testing.T) {
	fetcher := loader.Static{
		"https://cdn.test/add.js":  "export default function add(a, b) { return a + b; }",
		"https://cdn.test/math.js": "import add from './add.js';\nexport const sum = (xs) => xs.reduce(add, 0);\nexport const PI = 3;",
		"https://cdn.test/side.js": "globalThis.sideLoaded = 'yes';",
	}
	rt := newRuntime(t, testConfig(), fetcher)

	tc := types.TestCase{
		ID:   "a",
		ESM:  true,
		Code: "console.log(DEP_0(2, 3), M.sum([1, 2, 3]), M.PI, sideLoaded)",
		Dependencies: []types.Dependency{
			{URL: "https://cdn.test/add.js", ESM: true},
			{URL: "https://cdn.test/math.js", Name: "M", ESM: true},
			{URL: "https://cdn.test/side.js"},
		},
	}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "5 6 3 yes", result.Logs[0].Value)
}

func TestModuleBareSpecifier(t *testing.T) {
	fetcher := loader.Static{
		"https://cdn.test/npm/tiny/+esm": "export const tiny = 't';",
		"https://cdn.test/entry.js":      "import { tiny } from 'tiny';\nexport default tiny + tiny;",
	}
	rt := newRuntime(t, testConfig(), fetcher)

	tc := types.TestCase{
		ID:           "a",
		ESM:          true,
		Code:         "console.log(DEP_0)",
		Dependencies: []types.Dependency{{URL: "https://cdn.test/entry.js", ESM: true}},
	}
	result, err := rt.Repl(context.Background(), build(t, tc))
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
	assert.Equal(t, "tt", result.Logs[0].Value)
}

func TestModuleDependencyEvaluationFailure(t *testing.T) {
	fetcher := loader.Static{
		"https://cdn.test/bad.js": "export const x = 1;\nthrow new Error('init failed');",
	}
	rt := newRuntime(t, testConfig(), fetcher)

	tc := types.TestCase{
		ID:           "a",
		ESM:          true,
		Code:         "return 1",
		Dependencies: []types.Dependency{{URL: "https://cdn.test/bad.js", ESM: true}},
	}
	_, err := rt.Benchmark(context.Background(), build(t, tc))
	re := requireKind(t, err, types.ErrDependencyLoad)
	assert.Contains(t, re.Message, "init failed")
}

func TestResetDropsGlobals(t *testing.T) {
	rt := newRuntime(t, testConfig(), nil)

	_, err := rt.Repl(context.Background(), build(t, types.TestCase{ID: "a", Code: "globalThis.leak = 1"}))
	require.NoError(t, err)
	require.NoError(t, rt.Reset())

	result, err := rt.Repl(context.Background(), build(t, types.TestCase{ID: "b", Code: "console.log(typeof leak)"}))
	require.NoError(t, err)
	assert.Equal(t, "undefined", result.Logs[0].Value)
}

func TestFinalizeMarkers(t *testing.T) {
	markers := []types.TimeMarker{
		{Name: "a", Time: 10},
		{Name: "b", Time: 30},
	}

	out := FinalizeMarkers(markers, 40)
	require.Len(t, out, 2)
	assert.InDelta(t, 10, out[0].Duration, 1e-9)
	assert.InDelta(t, 20, out[1].Duration, 1e-9)
	assert.InDelta(t, 25, out[0].DurationPercentage, 1e-9)
	assert.InDelta(t, 50, out[1].DurationPercentage, 1e-9)

	// input is untouched
	assert.Zero(t, markers[0].Duration)
}

func TestFinalizeMarkersZeroTotal(t *testing.T) {
	out := FinalizeMarkers([]types.TimeMarker{{Name: "a", Time: 0}}, 0)
	assert.Zero(t, out[0].DurationPercentage)
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{0.0000005, "0.50 ns"},
		{0.00042, "420.00 ns"},
		{0.0125, "12.50 µs"},
		{1.5, "1.50 ms"},
		{999.994, "999.99 ms"},
		{2500, "2.50 s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.ms))
	}
}
