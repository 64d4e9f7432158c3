package sandbox

import (
	"time"
)

// Config defines execution context limits and sampling policy
type Config struct {
	Timeout          time.Duration // Hard limit per run, 0 disables
	MaxCallStackSize int           // goja call stack limit

	WarmupIterations  int           // Unmeasured calls before sampling
	WarmupDuration    time.Duration // Upper bound on warm-up time
	MinSampleDuration time.Duration // Sampling stops once this much time was measured
	MinBatchDuration  time.Duration // Batch size doubles until a batch takes this long

	MaxLogEntries int    // REPL console entries kept per run
	CDNURL        string // Base for bare module specifiers
}

// DefaultConfig returns the sampling policy used by the server
func DefaultConfig() Config {
	return Config{
		Timeout:           60 * time.Second,
		MaxCallStackSize:  1024,
		WarmupIterations:  5,
		WarmupDuration:    100 * time.Millisecond,
		MinSampleDuration: 500 * time.Millisecond,
		MinBatchDuration:  10 * time.Millisecond,
		MaxLogEntries:     1000,
		CDNURL:            "https://cdn.jsdelivr.net/npm",
	}
}

const maxBatchSize = 1 << 20
