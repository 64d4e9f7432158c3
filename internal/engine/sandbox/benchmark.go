package sandbox

import (
	"context"
	"math"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// z-score for a 95% confidence interval
const confidence95 = 1.96

// Benchmark runs the program's setup once, then invokes its entry point
// repeatedly and reports throughput. Any thrown exception aborts the run and
// discards every measurement taken so far. Reaching Timeout after at least
// one completed batch ends sampling early with the batches measured so far.
func (r *Runtime) Benchmark(ctx context.Context, program assembler.Program) (*types.BenchmarkResult, error) {
	runCtx, end := r.begin(ctx)
	defer end()

	fn, err := r.prepare(program)
	if err != nil {
		return nil, r.classify(ctx, runCtx, err)
	}

	if err := r.warmup(runCtx, fn, program.Async); err != nil {
		return nil, r.classify(ctx, runCtx, err)
	}

	s, err := r.sample(runCtx, fn, program.Async)
	if err != nil {
		if !r.timedOut(ctx, runCtx) || s.iterations == 0 {
			return nil, r.classify(ctx, runCtx, err)
		}
		r.logger.Info("Sampling cut short by timeout",
			zap.Duration("timeout", r.config.Timeout),
			zap.Int("samples", len(s.samples)),
		)
	}
	if s.iterations == 0 || s.elapsed <= 0 {
		return nil, types.NewRuntimeError("no iterations completed")
	}

	result := s.result()
	r.logger.Debug("Benchmark complete",
		zap.Float64("ops_per_sec", result.OpsPerSecond),
		zap.Int64("iterations", result.Iterations),
		zap.Int("samples", result.Samples),
	)
	return result, nil
}

// warmup calls fn without measuring, up to WarmupIterations times or until
// WarmupDuration has passed
func (r *Runtime) warmup(ctx context.Context, fn goja.Callable, async bool) error {
	deadline := time.Now().Add(r.config.WarmupDuration)
	for i := 0; i < r.config.WarmupIterations; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.invoke(fn, async); err != nil {
			return err
		}
		if !time.Now().Before(deadline) {
			break
		}
	}
	return nil
}

type sampling struct {
	samples    []float64 // per-iteration milliseconds, one per batch
	iterations int64
	elapsed    time.Duration
}

// sample runs batches of sequential calls until MinSampleDuration of measured
// time has accumulated. Batch size doubles while batches are shorter than
// MinBatchDuration so timer resolution does not dominate fast snippets.
// On error the completed batches are still returned; the interrupted one is
// not counted.
func (r *Runtime) sample(ctx context.Context, fn goja.Callable, async bool) (*sampling, error) {
	s := &sampling{}
	batch := 1

	for s.iterations == 0 || s.elapsed < r.config.MinSampleDuration {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}

		start := time.Now()
		for i := 0; i < batch; i++ {
			if err := r.invoke(fn, async); err != nil {
				return s, err
			}
		}
		took := time.Since(start)

		s.iterations += int64(batch)
		s.elapsed += took
		s.samples = append(s.samples, toMillis(took)/float64(batch))

		if took < r.config.MinBatchDuration && batch < maxBatchSize {
			batch *= 2
		}
	}
	return s, nil
}

func (s *sampling) result() *types.BenchmarkResult {
	seconds := s.elapsed.Seconds()
	average := toMillis(s.elapsed) / float64(s.iterations)

	result := &types.BenchmarkResult{
		OpsPerSecond:         float64(s.iterations) / seconds,
		AverageTime:          average,
		AverageTimeFormatted: FormatTime(average),
		Samples:              len(s.samples),
		Iterations:           s.iterations,
	}

	if len(s.samples) > 1 {
		mean, std := stat.MeanStdDev(s.samples, nil)
		if mean > 0 {
			sem := std / math.Sqrt(float64(len(s.samples)))
			result.RelativeMargin = confidence95 * sem / mean * 100
		}
	}
	return result
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
