package sandbox

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/compiler"
	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// toCommonJS rewrites ESM import/export syntax into require calls goja can run
func toCommonJS(source, sourcefile string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Target:     api.ES2020,
		Sourcefile: sourcefile,
	})
	if len(result.Errors) > 0 {
		return "", errors.New(compiler.FormatMessages(result.Errors))
	}
	return string(result.Code), nil
}

// moduleWrapper gives CommonJS code its own scope and module bindings
func moduleWrapper(code string) string {
	return "(function (exports, require, module) {" + code + "\n})"
}

// importScripts fetches every URL before evaluating any of them, in order,
// in the global scope
func (r *Runtime) importScripts(call goja.FunctionCall) goja.Value {
	urls := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		urls[i] = arg.String()
	}

	sources := make([][]byte, len(urls))
	for i, u := range urls {
		src, err := r.fetcher.Fetch(r.ctx, u)
		if err != nil {
			r.throwLoad(loadError(u, err))
		}
		sources[i] = src
	}

	for i, u := range urls {
		r.evalScript(u, string(sources[i]))
	}
	return goja.Undefined()
}

// requireFrom returns a require function resolving specifiers against base
func (r *Runtime) requireFrom(base string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		spec := call.Argument(0).String()
		target, err := loader.Resolve(base, spec, r.config.CDNURL)
		if err != nil {
			r.throwLoad(types.NewDependencyLoadError(err, "failed to resolve %q: %v", spec, err))
		}

		if module, ok := r.modules[target]; ok {
			return module.Get("exports")
		}

		src, err := r.fetcher.Fetch(r.ctx, target)
		if err != nil {
			r.throwLoad(loadError(target, err))
		}
		return r.evalModule(target, string(src))
	}
}

// evalModule evaluates a dependency and returns its exports. Sources that
// parse as classic scripts run globally and export nothing.
func (r *Runtime) evalModule(target, src string) goja.Value {
	module := r.vm.NewObject()
	_ = module.Set("exports", r.vm.NewObject())
	r.modules[target] = module

	if prg, err := goja.Compile(target, src, false); err == nil {
		r.logger.Debug("Evaluating dependency as script", zap.String("url", target))
		r.run(target, prg)
		return module.Get("exports")
	}

	code, err := toCommonJS(src, target)
	if err != nil {
		r.throwLoad(types.NewDependencyLoadError(err, "failed to load %s: %v", target, err))
	}
	prg, err := goja.Compile(target, moduleWrapper(code), false)
	if err != nil {
		r.throwLoad(types.NewDependencyLoadError(err, "failed to load %s: %v", target, err))
	}

	r.logger.Debug("Evaluating dependency as module", zap.String("url", target))
	wrapper := r.run(target, prg)
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		r.throwLoad(types.NewDependencyLoadError(nil, "failed to load %s: module wrapper is not callable", target))
	}
	if _, err := fn(goja.Undefined(), module.Get("exports"), r.vm.ToValue(r.requireFrom(target)), module); err != nil {
		r.rethrow(target, err)
	}
	return module.Get("exports")
}

// evalScript compiles and runs src in the global scope
func (r *Runtime) evalScript(target, src string) {
	prg, err := goja.Compile(target, src, false)
	if err != nil {
		r.throwLoad(types.NewDependencyLoadError(err, "failed to load %s: %v", target, err))
	}
	r.run(target, prg)
}

func (r *Runtime) run(target string, prg *goja.Program) goja.Value {
	v, err := r.vm.RunProgram(prg)
	if err != nil {
		r.rethrow(target, err)
	}
	return v
}

// rethrow propagates a failure raised while evaluating a dependency. An
// interrupt is re-armed so user code cannot swallow it.
func (r *Runtime) rethrow(target string, err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		r.vm.Interrupt(interrupted.Value())
		panic(r.vm.NewGoError(err))
	}
	if r.loadErr != nil {
		panic(r.vm.NewGoError(r.loadErr))
	}
	msg := err.Error()
	var ex *goja.Exception
	if errors.As(err, &ex) {
		msg = r.inspect(ex.Value())
	}
	r.throwLoad(types.NewDependencyLoadError(err, "failed to evaluate %s: %s", target, strings.TrimSpace(msg)))
}

func loadError(target string, err error) error {
	if errors.Is(err, types.ErrDependencyLoad) {
		return err
	}
	return types.NewDependencyLoadError(err, "failed to load %s: %v", target, err)
}
