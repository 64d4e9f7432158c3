package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	cfg.Harness.PoolSize = 2
	cfg.Harness.Timeout = 5 * time.Second
	cfg.Harness.WarmupIterations = 1
	cfg.Harness.MinSampleDuration = 20 * time.Millisecond
	cfg.Harness.MinBatchDuration = time.Millisecond
	cfg.Server.PublicURL = "https://jsbench.example/"
	return cfg
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const suiteYAML = `config:
  name: arrays
  dataCode: const xs = [3, 1, 2]
cases:
  - id: sort
    code: xs.slice().sort()
  - id: reverse
    code: xs.slice().reverse()
`

func TestRunBenchmark(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bench/arrays.yaml", suiteYAML)

	out, err := execute(t, testConfig(), "run", filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "arrays")
	assert.Contains(t, out, "sort")
	assert.Contains(t, out, "reverse")
	assert.Contains(t, out, "ops/sec")
}

func TestRunReplJSON(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "logs.toml", `[config]
name = "logging"

[[cases]]
id = "hello"
code = "console.log('hi'); mark('done')"
`)

	out, err := execute(t, testConfig(), "run", "--repl", "--json", p)
	require.NoError(t, err, out)

	var results []fileResult
	require.NoError(t, sonic.UnmarshalString(out, &results))
	require.Len(t, results, 1)
	require.Len(t, results[0].Results, 1)

	ev := results[0].Results[0]
	require.NotNil(t, ev.Repl)
	require.NotNil(t, ev.Repl.Result)
	require.Len(t, ev.Repl.Result.Logs, 1)
	assert.Equal(t, "hi", ev.Repl.Result.Logs[0].Value)
	require.Len(t, ev.Repl.Result.Markers, 1)
	assert.Equal(t, "done", ev.Repl.Result.Markers[0].Name)
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "broken.json", `{"config":{"name":"broken"},"cases":[{"id":"throws","code":"throw new Error('nope')"}]}`)

	out, err := execute(t, testConfig(), "run", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 cases failed")
	assert.Contains(t, out, string(types.KindRuntime))
}

func TestRunNoMatches(t *testing.T) {
	_, err := execute(t, testConfig(), "run", filepath.Join(t.TempDir(), "*.yaml"))
	assert.Error(t, err)
}

func TestShareRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "arrays.yaml", suiteYAML)

	for _, compact := range []bool{false, true} {
		args := []string{"share", p}
		if compact {
			args = append(args, "--compact")
		}
		link, err := execute(t, testConfig(), args...)
		require.NoError(t, err)
		link = strings.TrimSpace(link)
		assert.True(t, strings.HasPrefix(link, "https://jsbench.example/#"), link)

		out, err := execute(t, testConfig(), "unshare", link)
		require.NoError(t, err)

		var cfg types.Config
		require.NoError(t, sonic.UnmarshalString(out, &cfg))
		assert.Equal(t, "arrays", cfg.Name)
		assert.Equal(t, "const xs = [3, 1, 2]", cfg.DataCode)
	}
}

func TestUnshareInvalid(t *testing.T) {
	_, err := execute(t, testConfig(), "unshare", "!!!not-base64")
	assert.Error(t, err)

	_, err = execute(t, testConfig(), "unshare", "https://jsbench.example/about")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config")
}

func TestRelative(t *testing.T) {
	assert.Equal(t, "fastest", relative(100, 100))
	assert.Equal(t, "fastest", relative(5, 0))
	assert.Equal(t, "25.0% slower", relative(75, 100))
}

func TestReportRanksCases(t *testing.T) {
	results := []fileResult{{
		Path: "a.yaml",
		Name: "ranked",
		Results: []controller.Event{
			{ID: "fast", Mode: types.ModeBenchmark, Benchmark: &types.TestState{
				Status: types.StatusSuccess,
				Result: &types.BenchmarkResult{OpsPerSecond: 200, AverageTimeFormatted: "5.00 ms"},
			}},
			{ID: "slow", Mode: types.ModeBenchmark, Benchmark: &types.TestState{
				Status: types.StatusSuccess,
				Result: &types.BenchmarkResult{OpsPerSecond: 100, AverageTimeFormatted: "10.00 ms"},
			}},
			{ID: "bad", Mode: types.ModeBenchmark, Benchmark: &types.TestState{
				Status: types.StatusError,
				Error:  types.NewRuntimeError("Uncaught boom"),
			}},
		},
	}}

	var out bytes.Buffer
	require.NoError(t, report(&out, results))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ranked (a.yaml)", lines[0])
	assert.Contains(t, lines[1], "fastest")
	assert.Contains(t, lines[2], "50.0% slower")
	assert.Contains(t, lines[3], "RuntimeError")
	assert.Error(t, failures(results))
}
