package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Repl runs the program's entry point exactly once with console and marker
// capture. Capture covers the invocation only; setup output is not recorded.
// On failure everything captured is discarded.
func (r *Runtime) Repl(ctx context.Context, program assembler.Program) (*types.ReplResult, error) {
	runCtx, end := r.begin(ctx)
	defer end()

	fn, err := r.prepare(program)
	if err != nil {
		return nil, r.classify(ctx, runCtx, err)
	}

	r.start = time.Now()
	r.capture = true
	err = r.invoke(fn, program.Async)
	total := r.elapsed()
	r.capture = false

	if err != nil {
		return nil, r.classify(ctx, runCtx, err)
	}

	if r.dropped > 0 {
		r.logger.Warn("Console output truncated",
			zap.Int("kept", len(r.logs)),
			zap.Int("dropped", r.dropped),
		)
	}

	logs := r.logs
	if logs == nil {
		logs = []types.LogEntry{}
	}
	return &types.ReplResult{
		Duration: total,
		Markers:  FinalizeMarkers(r.markers, total),
		Logs:     logs,
	}, nil
}

// FinalizeMarkers fills in each marker's duration since the previous marker
// (or run start) and its share of total, in percent
func FinalizeMarkers(markers []types.TimeMarker, total float64) []types.TimeMarker {
	out := make([]types.TimeMarker, len(markers))
	prev := 0.0
	for i, m := range markers {
		m.Duration = m.Time - prev
		if m.Duration < 0 {
			m.Duration = 0
		}
		if total > 0 {
			m.DurationPercentage = m.Duration / total * 100
		} else {
			m.DurationPercentage = 0
		}
		prev = m.Time
		out[i] = m
	}
	return out
}
