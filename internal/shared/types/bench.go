package types

// Status is the lifecycle position of a run
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition happens without resubmission
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Mode selects how the harness executes a test case
type Mode string

const (
	ModeBenchmark Mode = "benchmark"
	ModeRepl      Mode = "repl"
)

// Valid reports whether the mode is known
func (m Mode) Valid() bool {
	return m == ModeBenchmark || m == ModeRepl
}

// Dependency is an external script or module loaded before user code.
// Order within a slice is load order.
type Dependency struct {
	URL  string `json:"url" yaml:"url" toml:"url"`
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	ESM  bool   `json:"esm,omitempty" yaml:"esm,omitempty" toml:"esm,omitempty"`
}

// TestCase is one benchmarkable snippet
type TestCase struct {
	ID           string       `json:"id" yaml:"id" toml:"id"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Code         string       `json:"code" yaml:"code" toml:"code"`
	ESM          bool         `json:"esm,omitempty" yaml:"esm,omitempty" toml:"esm,omitempty"`
	Async        bool         `json:"async,omitempty" yaml:"async,omitempty" toml:"async,omitempty"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
}

// Label returns the display name, falling back to the id
func (tc TestCase) Label() string {
	if tc.Name != "" {
		return tc.Name
	}
	return tc.ID
}

// Config holds settings shared by every test case of a benchmark
type Config struct {
	Name             string   `json:"name" yaml:"name" toml:"name"`
	Parallel         bool     `json:"parallel" yaml:"parallel" toml:"parallel"`
	GlobalTestConfig TestCase `json:"globalTestConfig" yaml:"globalTestConfig" toml:"globalTestConfig"`
	DataCode         string   `json:"dataCode" yaml:"dataCode" toml:"dataCode"`
}

// Suite pairs a Config with the test cases it applies to
type Suite struct {
	Config Config     `json:"config" yaml:"config" toml:"config"`
	Cases  []TestCase `json:"cases" yaml:"cases" toml:"cases"`
}

// BenchmarkResult is the outcome of a throughput run.
// Times are in milliseconds.
type BenchmarkResult struct {
	OpsPerSecond         float64 `json:"opsPerSecond"`
	AverageTime          float64 `json:"averageTime"`
	AverageTimeFormatted string  `json:"averageTimeFormatted"`
	Samples              int     `json:"samples,omitempty"`
	Iterations           int64   `json:"iterations,omitempty"`
	RelativeMargin       float64 `json:"relativeMargin,omitempty"` // percent
}

// TestState tracks one test case in benchmark mode
type TestState struct {
	Status Status           `json:"status"`
	Error  *RunError        `json:"error,omitempty"`
	Result *BenchmarkResult `json:"result,omitempty"`
}

// TimeMarker is a named checkpoint recorded during a REPL run.
// Time and Duration are milliseconds since run start; DurationPercentage is 0..100.
type TimeMarker struct {
	Name               string  `json:"name"`
	Time               float64 `json:"time"`
	Duration           float64 `json:"duration,omitempty"`
	DurationPercentage float64 `json:"durationPercentage,omitempty"`
}

// LogEntry is captured console output
type LogEntry struct {
	Value string  `json:"value"`
	Time  float64 `json:"time"`
	Level string  `json:"level,omitempty"`
}

// ReplResult is the outcome of a single instrumented run
type ReplResult struct {
	Duration float64      `json:"duration,omitempty"`
	Markers  []TimeMarker `json:"markers"`
	Logs     []LogEntry   `json:"logs"`
}

// ReplState tracks one test case in REPL mode
type ReplState struct {
	Status Status      `json:"status"`
	Error  *RunError   `json:"error,omitempty"`
	Result *ReplResult `json:"result,omitempty"`
}
