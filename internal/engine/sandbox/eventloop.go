package sandbox

import (
	"container/heap"
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"
)

var errStalled = errors.New("event loop stalled")

type timer struct {
	id       int64
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       goja.Callable
	args     []goja.Value
	index    int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// eventLoop schedules timer callbacks for one VM. Microtasks are drained by
// goja itself after every outermost call.
type eventLoop struct {
	vm     *goja.Runtime
	timers timerHeap
	byID   map[int64]*timer
	nextID int64
}

func newEventLoop() *eventLoop {
	return &eventLoop{byID: make(map[int64]*timer)}
}

// install exposes the timer functions on the VM's global object
func (l *eventLoop) install(vm *goja.Runtime) error {
	l.vm = vm
	if err := vm.Set("setTimeout", l.schedule(false)); err != nil {
		return err
	}
	if err := vm.Set("setInterval", l.schedule(true)); err != nil {
		return err
	}
	if err := vm.Set("clearTimeout", l.clear); err != nil {
		return err
	}
	if err := vm.Set("clearInterval", l.clear); err != nil {
		return err
	}
	_, err := vm.RunString(`globalThis.queueMicrotask = function queueMicrotask(cb) {
	if (typeof cb !== "function") throw new TypeError("queueMicrotask requires a function");
	Promise.resolve().then(function () { cb(); });
};`)
	return err
}

func (l *eventLoop) schedule(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(l.vm.NewTypeError("timer callback must be a function"))
		}
		delay := time.Duration(call.Argument(1).ToFloat() * float64(time.Millisecond))
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		l.nextID++
		t := &timer{
			id:       l.nextID,
			due:      time.Now().Add(delay),
			interval: delay,
			repeat:   repeat,
			fn:       fn,
			args:     args,
		}
		heap.Push(&l.timers, t)
		l.byID[t.id] = t
		return l.vm.ToValue(t.id)
	}
}

func (l *eventLoop) clear(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := l.byID[id]; ok {
		if t.index >= 0 {
			heap.Remove(&l.timers, t.index)
		}
		delete(l.byID, id)
	}
	return goja.Undefined()
}

// runUntil fires timers in due order until settled reports true. It returns
// errStalled when nothing is left that could settle it.
func (l *eventLoop) runUntil(ctx context.Context, stop <-chan struct{}, settled func() bool) error {
	for {
		if settled() {
			return nil
		}
		if l.timers.Len() == 0 {
			return errStalled
		}

		next := l.timers[0]
		if wait := time.Until(next.due); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-stop:
				t.Stop()
				return errTerminated
			case <-t.C:
			}
		}

		heap.Pop(&l.timers)
		if next.repeat {
			interval := next.interval
			if interval <= 0 {
				interval = time.Millisecond
			}
			next.due = time.Now().Add(interval)
			heap.Push(&l.timers, next)
		} else {
			delete(l.byID, next.id)
		}

		if _, err := next.fn(goja.Undefined(), next.args...); err != nil {
			return err
		}
	}
}

// reset drops every scheduled timer
func (l *eventLoop) reset() {
	l.timers = nil
	l.byID = make(map[int64]*timer)
}
