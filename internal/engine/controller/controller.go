// Package controller owns the per-case state machines. It turns user
// submissions into channel requests and harness responses into state
// transitions that observers can follow.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/channel"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

var (
	ErrAlreadyRunning = errors.New("test case is already running")
	ErrNotRunning     = errors.New("test case is not running")
	ErrUnknownCase    = errors.New("unknown test case")
	ErrInvalidCase    = errors.New("invalid test case")
	ErrClosed         = errors.New("controller is closed")
)

// Options carries per-submission settings
type Options struct {
	Setup      string // shared setup code, run once before the case
	TypeScript bool
}

// Event is a snapshot of one case's state, published on every transition
type Event struct {
	ID        string           `json:"id"`
	Mode      types.Mode       `json:"mode"`
	Attempt   int              `json:"attempt"`
	Benchmark *types.TestState `json:"benchmark,omitempty"`
	Repl      *types.ReplState `json:"repl,omitempty"`
}

// Status returns the status of whichever state the event carries
func (e Event) Status() types.Status {
	switch {
	case e.Benchmark != nil:
		return e.Benchmark.Status
	case e.Repl != nil:
		return e.Repl.Status
	default:
		return types.StatusIdle
	}
}

// Err returns the run error, if the case failed
func (e Event) Err() *types.RunError {
	switch {
	case e.Benchmark != nil:
		return e.Benchmark.Error
	case e.Repl != nil:
		return e.Repl.Error
	default:
		return nil
	}
}

type entry struct {
	mode     types.Mode
	attempt  int
	testCase types.TestCase
	bench    types.TestState
	repl     types.ReplState
	done     chan struct{} // closed on reaching a terminal state
	timer    *monitoring.Timer
}

func (e *entry) status() types.Status {
	if e.mode == types.ModeRepl {
		return e.repl.Status
	}
	return e.bench.Status
}

func (e *entry) event(id string) Event {
	ev := Event{ID: id, Mode: e.mode, Attempt: e.attempt}
	if e.mode == types.ModeRepl {
		repl := e.repl
		ev.Repl = &repl
	} else {
		bench := e.bench
		ev.Benchmark = &bench
	}
	return ev
}

// Controller tracks test cases by id
type Controller struct {
	transport channel.Transport
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	mu      sync.RWMutex
	cases   map[string]*entry
	subs    map[int]chan Event
	nextSub int
	closed  bool

	stopped chan struct{}
}

// New creates a controller and starts consuming transport responses
func New(transport channel.Transport, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		transport: transport,
		logger:    logger,
		cases:     make(map[string]*entry),
		subs:      make(map[int]chan Event),
		stopped:   make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// WithMetrics adds metrics tracking to the controller
func (c *Controller) WithMetrics(metrics *monitoring.Metrics) *Controller {
	c.metrics = metrics
	return c
}

// Submit starts a run of tc in mode. A case that is already running is
// rejected; a terminal case is reset to running.
func (c *Controller) Submit(mode types.Mode, tc types.TestCase, opts Options) error {
	if tc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidCase)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidCase, mode)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	e, ok := c.cases[tc.ID]
	if ok && e.status() == types.StatusRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, tc.ID)
	}
	if !ok {
		e = &entry{}
		c.cases[tc.ID] = e
	}
	e.mode = mode
	e.attempt++
	e.testCase = tc
	e.bench = types.TestState{Status: types.StatusRunning}
	e.repl = types.ReplState{Status: types.StatusRunning}
	e.done = make(chan struct{})
	if c.metrics != nil {
		e.timer = monitoring.NewTimer(c.metrics, string(mode))
	}
	req := channel.Request{
		ID:         tc.ID,
		Attempt:    e.attempt,
		Mode:       mode,
		TestCase:   tc,
		Setup:      opts.Setup,
		TypeScript: opts.TypeScript,
	}
	running := e.event(tc.ID)

	// Send and Cancel reach the harness under c.mu so they arrive in the
	// order the state machine saw them
	sendErr := c.transport.Send(req)
	if sendErr != nil {
		c.terminate(e, channel.Response{
			ID:      tc.ID,
			Attempt: req.Attempt,
			Mode:    mode,
			Status:  types.StatusError,
			Error:   types.NewRuntimeError("harness rejected request: %v", sendErr),
		})
	}
	failed := e.event(tc.ID)
	c.mu.Unlock()

	c.publish(running)
	if sendErr != nil {
		c.logger.Error("Harness rejected request", logging.CaseID(tc.ID), zap.Error(sendErr))
		c.publish(failed)
		return sendErr
	}

	c.logger.Debug("Run submitted", logging.Run(tc.ID, string(mode), req.Attempt)...)
	return nil
}

// Cancel stops a running case. Its state becomes error with a Cancelled
// payload and any late response for the attempt is dropped.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	e, ok := c.cases[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}
	if e.status() != types.StatusRunning {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}
	c.terminate(e, channel.Response{
		ID:      id,
		Attempt: e.attempt,
		Mode:    e.mode,
		Status:  types.StatusError,
		Error:   types.NewCancelled("cancelled by user"),
	})
	ev := e.event(id)
	c.transport.Cancel(channel.Cancel{ID: id, Attempt: ev.Attempt})
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncCancels()
	}
	c.logger.Info("Run cancelled", logging.CaseID(id), zap.Int("attempt", ev.Attempt))
	c.publish(ev)
	return nil
}

// State returns the current snapshot for id
func (c *Controller) State(id string) (Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.cases[id]
	if !ok {
		return Event{}, false
	}
	return e.event(id), true
}

// TestState returns the benchmark-mode state for id
func (c *Controller) TestState(id string) (types.TestState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.cases[id]
	if !ok || e.mode != types.ModeBenchmark {
		return types.TestState{Status: types.StatusIdle}, ok
	}
	return e.bench, true
}

// ReplState returns the REPL-mode state for id
func (c *Controller) ReplState(id string) (types.ReplState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.cases[id]
	if !ok || e.mode != types.ModeRepl {
		return types.ReplState{Status: types.StatusIdle}, ok
	}
	return e.repl, true
}

// List returns snapshots of every known case
func (c *Controller) List() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	events := make([]Event, 0, len(c.cases))
	for id, e := range c.cases {
		events = append(events, e.event(id))
	}
	return events
}

// Wait blocks until the current attempt of id reaches a terminal state
func (c *Controller) Wait(ctx context.Context, id string) (Event, error) {
	c.mu.RLock()
	e, ok := c.cases[id]
	if !ok {
		c.mu.RUnlock()
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}
	done := e.done
	c.mu.RUnlock()

	select {
	case <-done:
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}

	ev, _ := c.State(id)
	return ev, nil
}

// Forget drops a terminal case
func (c *Controller) Forget(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cases[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCase, id)
	}
	if e.status() == types.StatusRunning {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	delete(c.cases, id)
	return nil
}

// Subscribe returns a channel of state transitions and a function that
// ends the subscription. Slow subscribers miss events rather than block.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 64)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Close stops dispatching and ends all subscriptions. The transport is not closed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
	c.mu.Unlock()
	close(c.stopped)
}

func (c *Controller) dispatch() {
	responses := c.transport.Responses()
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			c.apply(resp)
		case <-c.stopped:
			return
		}
	}
}

// apply moves a running case to the response's terminal state. Responses
// for other attempts or non-running cases are stale and dropped.
func (c *Controller) apply(resp channel.Response) {
	c.mu.Lock()
	e, ok := c.cases[resp.ID]
	if !ok || e.attempt != resp.Attempt || e.status() != types.StatusRunning {
		c.mu.Unlock()
		c.logger.Debug("Dropping stale response",
			logging.CaseID(resp.ID),
			zap.Int("attempt", resp.Attempt),
		)
		return
	}
	c.terminate(e, resp)
	ev := e.event(resp.ID)
	c.mu.Unlock()

	if resp.Benchmark != nil {
		c.logger.Info("Benchmark finished",
			logging.CaseID(resp.ID),
			zap.Float64("ops_per_sec", resp.Benchmark.OpsPerSecond),
			zap.String("avg", resp.Benchmark.AverageTimeFormatted),
		)
	}
	c.publish(ev)
}

// terminate must be called with c.mu held
func (c *Controller) terminate(e *entry, resp channel.Response) {
	status := resp.Status
	if status != types.StatusSuccess {
		status = types.StatusError
	}

	if e.mode == types.ModeRepl {
		e.repl = types.ReplState{Status: status, Error: resp.Error, Result: resp.Repl}
	} else {
		e.bench = types.TestState{Status: status, Error: resp.Error, Result: resp.Benchmark}
	}
	close(e.done)

	if e.timer != nil {
		kind := ""
		if resp.Error != nil {
			kind = string(resp.Error.Kind)
		}
		e.timer.Stop(string(status), kind)
		e.timer = nil
	}
	if c.metrics != nil && resp.Benchmark != nil {
		c.metrics.ObserveThroughput(resp.Benchmark.OpsPerSecond)
	}
}

func (c *Controller) publish(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			c.logger.Warn("Subscriber lagging, event dropped", logging.CaseID(ev.ID))
		}
	}
}
