package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/engine/sandbox"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

var (
	ErrDuplicateRequest = errors.New("a request with this id is already in flight")
	ErrHarnessClosed    = errors.New("harness is closed")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Harness runs requests on a pool of execution contexts, one goroutine per
// accepted request
type Harness struct {
	pool      *sandbox.Pool
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	responses chan Response
	done      chan struct{}

	mu      sync.Mutex
	running map[string]*job
	closed  bool
	wg      sync.WaitGroup
}

type job struct {
	attempt   int
	cancel    context.CancelFunc
	rt        *sandbox.Runtime
	cancelled bool
}

// NewHarness creates a harness serving requests from pool
func NewHarness(pool *sandbox.Pool, logger *zap.Logger) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harness{
		pool:      pool,
		logger:    logger,
		responses: make(chan Response, 64),
		done:      make(chan struct{}),
		running:   make(map[string]*job),
	}
}

// WithMetrics reports execution context availability
func (h *Harness) WithMetrics(metrics *monitoring.Metrics) *Harness {
	h.metrics = metrics
	h.reportPool()
	return h
}

func (h *Harness) reportPool() {
	if h.metrics != nil {
		h.metrics.SetContextsAvailable(h.pool.Stats().Available)
	}
}

// Send accepts a request and starts it in the background
func (h *Harness) Send(req Request) error {
	if req.ID == "" || !req.Mode.Valid() {
		return fmt.Errorf("%w: id %q mode %q", ErrInvalidRequest, req.ID, req.Mode)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHarnessClosed
	}
	if _, ok := h.running[req.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{attempt: req.Attempt, cancel: cancel}
	h.running[req.ID] = j

	h.wg.Add(1)
	go h.serve(ctx, req, j)
	return nil
}

// Cancel terminates the request for c.ID, if any and if its attempt
// matches. No response for the cancelled attempt is emitted afterwards.
func (h *Harness) Cancel(c Cancel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	j, ok := h.running[c.ID]
	if !ok || (c.Attempt != 0 && c.Attempt != j.attempt) {
		return false
	}
	delete(h.running, c.ID)
	h.abort(j)

	h.logger.Info("Run cancelled", logging.CaseID(c.ID), zap.Int("attempt", j.attempt))
	return true
}

// abort must be called with h.mu held
func (h *Harness) abort(j *job) {
	j.cancelled = true
	j.cancel()
	if j.rt != nil {
		j.rt.Terminate()
	}
}

// Responses delivers terminal responses. Closed by Close.
func (h *Harness) Responses() <-chan Response {
	return h.responses
}

// InFlight returns the number of requests being served
func (h *Harness) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.running)
}

// Stats reports execution context usage
func (h *Harness) Stats() sandbox.PoolStats {
	return h.pool.Stats()
}

// Close cancels everything in flight, waits for workers and closes the pool
func (h *Harness) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, j := range h.running {
		delete(h.running, id)
		h.abort(j)
	}
	close(h.done)
	h.mu.Unlock()

	h.wg.Wait()
	close(h.responses)
	return h.pool.Close()
}

func (h *Harness) serve(ctx context.Context, req Request, j *job) {
	defer h.wg.Done()
	defer j.cancel()

	log := h.logger.With(logging.Run(req.ID, string(req.Mode), req.Attempt)...)

	rt, err := h.pool.Acquire(ctx)
	if err != nil {
		h.finish(req, j, failure(req, types.NewRuntimeError("no execution context available: %v", err)))
		return
	}

	h.mu.Lock()
	if j.cancelled {
		h.mu.Unlock()
		h.pool.Release(rt)
		return
	}
	j.rt = rt
	h.mu.Unlock()
	h.reportPool()

	start := time.Now()
	resp := h.execute(ctx, rt, req)

	h.mu.Lock()
	j.rt = nil
	h.mu.Unlock()
	if err := h.pool.Release(rt); err != nil {
		log.Warn("Failed to recycle execution context", zap.Error(err))
	}
	h.reportPool()

	if resp.Error != nil {
		log.Info("Run failed",
			zap.String("kind", string(resp.Error.Kind)),
			zap.String("error", resp.Error.Message),
			zap.Duration("elapsed", time.Since(start)),
		)
	} else {
		log.Info("Run succeeded", zap.Duration("elapsed", time.Since(start)))
	}
	h.finish(req, j, resp)
}

func (h *Harness) execute(ctx context.Context, rt *sandbox.Runtime, req Request) Response {
	program, err := assembler.Build(assembler.Input{
		TestCase:   req.TestCase,
		Setup:      req.Setup,
		TypeScript: req.TypeScript,
	})
	if err != nil {
		return failure(req, err)
	}

	resp := success(req)
	switch req.Mode {
	case types.ModeRepl:
		resp.Repl, err = rt.Repl(ctx, program)
	default:
		resp.Benchmark, err = rt.Benchmark(ctx, program)
	}
	if err != nil {
		return failure(req, err)
	}
	return resp
}

// finish emits resp unless the job was cancelled
func (h *Harness) finish(req Request, j *job, resp Response) {
	h.mu.Lock()
	if h.running[req.ID] == j {
		delete(h.running, req.ID)
	}
	cancelled := j.cancelled
	h.mu.Unlock()

	if cancelled {
		return
	}
	select {
	case h.responses <- resp:
	case <-h.done:
	}
}
