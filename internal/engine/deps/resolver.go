// Package deps turns declared dependencies into a prelude: source text that,
// when executed ahead of user code, populates the global scope with them.
package deps

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/jsbench/internal/shared/types"
)

// Resolve builds the prelude for deps. With esm=false every URL is loaded by
// a single importScripts call; with esm=true one import statement is emitted
// per dependency and esm-flagged namespaces are bound into globalThis.
func Resolve(deps []types.Dependency, esm bool) (string, error) {
	if len(deps) == 0 {
		return "", nil
	}

	for i, dep := range deps {
		if strings.TrimSpace(dep.URL) == "" {
			return "", types.NewDependencyLoadError(nil, "dependency %d has an empty url", i)
		}
	}

	if !esm {
		urls := make([]string, len(deps))
		for i, dep := range deps {
			urls[i] = quote(dep.URL)
		}
		return fmt.Sprintf("importScripts(%s);", strings.Join(urls, ", ")), nil
	}

	var b strings.Builder
	for i, dep := range deps {
		if i > 0 {
			b.WriteByte('\n')
		}
		if !dep.ESM {
			fmt.Fprintf(&b, "import %s;", quote(dep.URL))
			continue
		}

		name, err := BindingName(dep, i)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "import * as %s from %s;\n", name, quote(dep.URL))
		fmt.Fprintf(&b, "globalThis.%[1]s = Object.keys(%[1]s).length === 1 && \"default\" in %[1]s ? %[1]s.default : %[1]s;", name)
	}
	return b.String(), nil
}

// BindingName returns the global identifier an esm dependency is bound to
func BindingName(dep types.Dependency, index int) (string, error) {
	name := dep.Name
	if name == "" {
		name = fmt.Sprintf("DEP_%d", index)
	}
	if !IsIdentifier(name) {
		return "", types.NewDependencyLoadError(nil, "dependency name %q is not a valid identifier", name)
	}
	return name, nil
}

// Merge returns global dependencies followed by local ones, keeping the
// first occurrence of each URL.
func Merge(global, local []types.Dependency) []types.Dependency {
	merged := make([]types.Dependency, 0, len(global)+len(local))
	seen := make(map[string]bool, len(global)+len(local))
	for _, list := range [][]types.Dependency{global, local} {
		for _, dep := range list {
			if seen[dep.URL] {
				continue
			}
			seen[dep.URL] = true
			merged = append(merged, dep)
		}
	}
	return merged
}

// quote renders s as a JS string literal
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
