// Package assembler builds the single executable unit run by the harness:
// dependency prelude first, then compiled user code.
package assembler

import (
	"strings"

	"github.com/GriffinCanCode/jsbench/internal/engine/compiler"
	"github.com/GriffinCanCode/jsbench/internal/engine/deps"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// EntryPoint is the global the wrapped test case is registered under
const EntryPoint = "__jsbench_case__"

// Mode selects how the program is loaded
type Mode int

const (
	// ModeClassic runs the program as a script; dependencies come from importScripts
	ModeClassic Mode = iota
	// ModeModule runs the program as an ECMAScript module
	ModeModule
)

func (m Mode) String() string {
	if m == ModeModule {
		return "module"
	}
	return "classic"
}

// Program is an assembled, executable unit
type Program struct {
	Source string
	Mode   Mode
	Async  bool
}

// Input is everything needed to build a program for one test case
type Input struct {
	TestCase   types.TestCase
	Setup      string // shared setup code, run once before timing
	TypeScript bool
}

// Assemble concatenates prelude and code in that order
func Assemble(prelude, code string, mode Mode) Program {
	if prelude == "" {
		return Program{Source: code, Mode: mode}
	}
	return Program{Source: prelude + "\n" + code, Mode: mode}
}

// Wrap places setup at the top level and registers code as the body of the
// entry point function. Async cases get an async function so their result
// can be awaited per invocation.
func Wrap(setup, code string, async bool) string {
	var b strings.Builder
	if strings.TrimSpace(setup) != "" {
		b.WriteString(setup)
		b.WriteString("\n;\n")
	}
	b.WriteString("globalThis.")
	b.WriteString(EntryPoint)
	if async {
		b.WriteString(" = async function () {\n")
	} else {
		b.WriteString(" = function () {\n")
	}
	b.WriteString(code)
	b.WriteString("\n};\n")
	return b.String()
}

// Build resolves dependencies, wraps and compiles user code, then assembles
func Build(in Input) (Program, error) {
	tc := in.TestCase
	mode := ModeClassic
	if tc.ESM {
		mode = ModeModule
	}

	prelude, err := deps.Resolve(tc.Dependencies, tc.ESM)
	if err != nil {
		return Program{}, err
	}

	code, err := compiler.Select(in.TypeScript).Compile(Wrap(in.Setup, tc.Code, tc.Async))
	if err != nil {
		return Program{}, err
	}

	program := Assemble(prelude, code, mode)
	program.Async = tc.Async
	return program, nil
}

// Merge applies a Config to a test case: global dependencies load first,
// module mode and async are inherited when set globally, and the returned
// setup holds dataCode followed by the global setup code.
func Merge(cfg types.Config, tc types.TestCase) (types.TestCase, string) {
	global := cfg.GlobalTestConfig
	merged := tc
	merged.Dependencies = deps.Merge(global.Dependencies, tc.Dependencies)
	merged.ESM = tc.ESM || global.ESM
	merged.Async = tc.Async || global.Async

	var setup []string
	for _, part := range []string{cfg.DataCode, global.Code} {
		if strings.TrimSpace(part) != "" {
			setup = append(setup, part)
		}
	}
	return merged, strings.Join(setup, "\n;\n")
}
