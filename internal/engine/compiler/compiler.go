// Package compiler translates user source into executable JavaScript.
//
// The identity compiler is used unless TypeScript support is requested, in
// which case esbuild strips type annotations without type-checking.
package compiler

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Compiler turns source into executable JavaScript
type Compiler interface {
	Compile(code string) (string, error)
}

// Func adapts a function to Compiler
type Func func(code string) (string, error)

// Compile calls f
func (f Func) Compile(code string) (string, error) {
	return f(code)
}

// Identity returns source unchanged
var Identity Compiler = Func(func(code string) (string, error) {
	return code, nil
})

// TypeScript strips types and emits ES2022 module-compatible code
var TypeScript Compiler = Func(compileTypeScript)

// Select returns the compiler for the caller's TypeScript preference
func Select(typescript bool) Compiler {
	if typescript {
		return TypeScript
	}
	return Identity
}

func compileTypeScript(code string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:     api.LoaderTS,
		Format:     api.FormatESModule,
		Target:     api.ES2022,
		Sourcefile: "case.ts",
	})
	if len(result.Errors) > 0 {
		return "", types.NewCompileError("%s", FormatMessages(result.Errors))
	}
	return string(result.Code), nil
}

// FormatMessages renders esbuild diagnostics as "line:col: text" lines
func FormatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location == nil {
			lines = append(lines, m.Text)
			continue
		}
		lines = append(lines, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text))
	}
	return strings.Join(lines, "\n")
}
