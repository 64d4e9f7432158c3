package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/assembler"
	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

var errTerminated = errors.New("execution context terminated")

// Runtime wraps one goja VM: a single execution context
type Runtime struct {
	vm      *goja.Runtime
	config  Config
	fetcher loader.Fetcher
	logger  *zap.Logger
	mu      sync.Mutex

	// Per-run state, touched only by the goroutine driving the run
	ctx       context.Context
	loop      *eventLoop
	modules   map[string]*goja.Object
	loadErr   error
	start     time.Time
	capture   bool
	logs      []types.LogEntry
	dropped   int
	markers   []types.TimeMarker
	stringify goja.Callable

	stop       chan struct{}
	stopOnce   *sync.Once
	terminated atomic.Bool
}

// New creates a new execution context
func New(config Config, fetcher loader.Fetcher, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runtime{
		config:  config,
		fetcher: fetcher,
		logger:  logger,
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init() error {
	r.vm = goja.New()
	if r.config.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}
	r.loop = newEventLoop()
	r.modules = make(map[string]*goja.Object)
	r.stop = make(chan struct{})
	r.stopOnce = &sync.Once{}
	r.terminated.Store(false)
	return r.setupGlobals()
}

// setupGlobals configures the worker-like global scope
func (r *Runtime) setupGlobals() error {
	vm := r.vm

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if err := vm.Set("self", vm.GlobalObject()); err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	performance := vm.NewObject()
	if err := performance.Set("now", func() float64 { return r.elapsed() }); err != nil {
		return err
	}
	if err := performance.Set("mark", r.mark); err != nil {
		return err
	}
	if err := vm.Set("performance", performance); err != nil {
		return err
	}
	if err := vm.Set("mark", r.mark); err != nil {
		return err
	}

	if err := r.loop.install(vm); err != nil {
		return err
	}

	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}
	r.stringify = stringify
	return nil
}

// begin prepares per-run state and starts the interrupt watcher
func (r *Runtime) begin(ctx context.Context) (context.Context, func()) {
	base, cancelTimeout := ctx, context.CancelFunc(func() {})
	if r.config.Timeout > 0 {
		base, cancelTimeout = context.WithTimeout(ctx, r.config.Timeout)
	}
	runCtx, cancelRun := context.WithCancel(base)

	r.vm.ClearInterrupt()
	r.loop.reset()
	r.ctx = runCtx
	r.loadErr = nil
	r.capture = false
	r.logs = nil
	r.dropped = 0
	r.markers = nil
	r.start = time.Now()

	done := make(chan struct{})
	vm, stop := r.vm, r.stop
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt(runCtx.Err())
		case <-stop:
			cancelRun()
			vm.Interrupt(errTerminated)
		case <-done:
		}
	}()

	return runCtx, func() {
		close(done)
		cancelRun()
		cancelTimeout()
		r.ctx = nil
	}
}

// prepare runs the setup phase and returns the registered entry point
func (r *Runtime) prepare(program assembler.Program) (goja.Callable, error) {
	var err error
	if program.Mode == assembler.ModeModule {
		err = r.runModule(program.Source)
	} else {
		err = r.runScript(program.Source)
	}
	if err != nil {
		return nil, err
	}
	if r.loadErr != nil {
		return nil, r.loadErr
	}

	fn, ok := goja.AssertFunction(r.vm.Get(assembler.EntryPoint))
	if !ok {
		return nil, types.NewRuntimeError("test case did not register an entry point")
	}
	return fn, nil
}

func (r *Runtime) runScript(source string) error {
	if err := r.vm.Set("importScripts", r.importScripts); err != nil {
		return err
	}
	compiled, err := goja.Compile("case.js", source, false)
	if err != nil {
		return err
	}
	_, err = r.vm.RunProgram(compiled)
	return err
}

// runModule evaluates source as the entry module, with its own scope
func (r *Runtime) runModule(source string) error {
	if err := r.vm.Set("importScripts", r.unsupported("importScripts is not available in module mode")); err != nil {
		return err
	}
	code, err := toCommonJS(source, "case.js")
	if err != nil {
		return types.NewCompileError("%v", err)
	}
	compiled, err := goja.Compile("case.js", moduleWrapper(code), false)
	if err != nil {
		return err
	}
	wrapper, err := r.vm.RunProgram(compiled)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return types.NewRuntimeError("module wrapper is not callable")
	}

	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	_ = module.Set("exports", exports)
	_, err = fn(goja.Undefined(), exports, r.vm.ToValue(r.requireFrom("")), module)
	return err
}

// invoke calls fn once, awaiting its promise when async
func (r *Runtime) invoke(fn goja.Callable, async bool) error {
	v, err := fn(goja.Undefined())
	if err != nil {
		return err
	}
	if !async || v == nil {
		return nil
	}
	return r.await(v)
}

// await drives the event loop until the promise in v settles
func (r *Runtime) await(v goja.Value) error {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return nil
	}
	err := r.loop.runUntil(r.ctx, r.stop, func() bool {
		return p.State() != goja.PromiseStatePending
	})
	if errors.Is(err, errStalled) {
		return types.NewRuntimeError("async test case never settled: promise pending with no timers left")
	}
	if err != nil {
		return err
	}
	if p.State() == goja.PromiseStateRejected {
		return r.thrown(p.Result(), "")
	}
	return nil
}

// classify maps any failure of a run to the error taxonomy
func (r *Runtime) classify(parent, runCtx context.Context, err error) error {
	if r.terminated.Load() || parent.Err() != nil {
		return types.NewCancelled("execution context terminated")
	}
	if r.timedOut(parent, runCtx) {
		return types.NewRuntimeError("execution timeout exceeded (%s)", r.config.Timeout)
	}
	if r.loadErr != nil {
		return r.loadErr
	}

	var re *types.RunError
	if errors.As(err, &re) {
		return re
	}
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewCompileError("%s", syntaxErr.Error())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return r.thrown(ex.Value(), ex.String())
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return types.NewCancelled("execution interrupted: %v", interrupted.Value())
	}
	return types.NewRuntimeError("%v", err)
}

// timedOut reports whether the run hit Timeout, as opposed to being
// cancelled or terminated
func (r *Runtime) timedOut(parent, runCtx context.Context) bool {
	return !r.terminated.Load() && parent.Err() == nil &&
		errors.Is(runCtx.Err(), context.DeadlineExceeded)
}

// thrown converts a thrown or rejected JS value into a RuntimeError
func (r *Runtime) thrown(v goja.Value, stack string) *types.RunError {
	value := r.inspect(v)
	re := types.NewRuntimeError("Uncaught %s", value)
	re.Value = value
	re.Stack = stack
	return re
}

// throwLoad records a dependency failure and aborts the current JS call
func (r *Runtime) throwLoad(err error) {
	if r.loadErr == nil {
		r.loadErr = err
	}
	panic(r.vm.NewGoError(err))
}

func (r *Runtime) unsupported(msg string) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		panic(r.vm.NewTypeError(msg))
	}
}

// makeConsoleFunc creates a console function that records entries while capturing
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !r.capture {
			return goja.Undefined()
		}
		if r.config.MaxLogEntries > 0 && len(r.logs) >= r.config.MaxLogEntries {
			r.dropped++
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = r.inspect(arg)
		}
		r.logs = append(r.logs, types.LogEntry{
			Value: strings.Join(parts, " "),
			Time:  r.elapsed(),
			Level: level,
		})
		return goja.Undefined()
	}
}

// mark records a named time marker while capturing
func (r *Runtime) mark(call goja.FunctionCall) goja.Value {
	if !r.capture {
		return goja.Undefined()
	}
	name := fmt.Sprintf("mark %d", len(r.markers)+1)
	if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		name = arg.String()
	}
	r.markers = append(r.markers, types.TimeMarker{Name: name, Time: r.elapsed()})
	return goja.Undefined()
}

// inspect renders a JS value the way a console would
func (r *Runtime) inspect(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFn := goja.AssertFunction(obj); isFn || obj.ClassName() == "Error" {
		return obj.String()
	}
	if out, err := r.stringify(goja.Undefined(), obj); err == nil && !goja.IsUndefined(out) {
		return out.String()
	}
	return obj.String()
}

// elapsed returns milliseconds since the current run started
func (r *Runtime) elapsed() float64 {
	return float64(time.Since(r.start)) / float64(time.Millisecond)
}

// Terminate hard-stops the context. Safe to call from any goroutine.
func (r *Runtime) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return
	}
	r.terminated.Store(true)
	r.stopOnce.Do(func() { close(r.stop) })
	r.vm.Interrupt(errTerminated)
}

// Terminated reports whether Terminate was called since the last reset
func (r *Runtime) Terminated() bool {
	return r.terminated.Load()
}

// Reset replaces the VM with a fresh one, dropping all globals and modules
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.modules = nil
	r.logs = nil
	return nil
}
