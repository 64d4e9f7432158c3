package assembler

import (
	"errors"
	"strings"
	"testing"

	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleOrder(t *testing.T) {
	p := Assemble("importScripts(\"a\");", "run();", ModeClassic)
	assert.Equal(t, "importScripts(\"a\");\nrun();", p.Source)

	p = Assemble("", "run();", ModeModule)
	assert.Equal(t, "run();", p.Source)
	assert.Equal(t, ModeModule, p.Mode)
}

func TestWrap(t *testing.T) {
	src := Wrap("const data = [1, 2, 3];", "return data.length", false)
	assert.True(t, strings.HasPrefix(src, "const data = [1, 2, 3];"))
	assert.Contains(t, src, "globalThis.__jsbench_case__ = function () {\nreturn data.length\n};")

	src = Wrap("", "await 1", true)
	assert.True(t, strings.HasPrefix(src, "globalThis.__jsbench_case__ = async function () {"))
}

func TestBuildDependenciesPrecedeUserCode(t *testing.T) {
	p, err := Build(Input{
		TestCase: types.TestCase{
			ID:   "a",
			Code: "return USER_TOKEN",
			Dependencies: []types.Dependency{
				{URL: "https://cdn.example/one.js"},
				{URL: "https://cdn.example/two.js"},
			},
		},
	})
	require.NoError(t, err)

	load := strings.Index(p.Source, "importScripts(")
	user := strings.Index(p.Source, "USER_TOKEN")
	require.GreaterOrEqual(t, load, 0)
	assert.Less(t, load, user)
	assert.Less(t, strings.Index(p.Source, "one.js"), strings.Index(p.Source, "two.js"))
	assert.Equal(t, ModeClassic, p.Mode)
}

func TestBuildTypeScript(t *testing.T) {
	p, err := Build(Input{
		TestCase:   types.TestCase{ID: "ts", Code: "const n: number = 2; return n * 2", ESM: true},
		TypeScript: true,
	})
	require.NoError(t, err)
	assert.NotContains(t, p.Source, ": number")
	assert.Equal(t, ModeModule, p.Mode)
}

func TestBuildFailsBeforeExecution(t *testing.T) {
	_, err := Build(Input{
		TestCase:   types.TestCase{ID: "bad", Code: "let x: = 1"},
		TypeScript: true,
	})
	assert.True(t, errors.Is(err, types.ErrCompile))

	_, err = Build(Input{
		TestCase: types.TestCase{ID: "dep", Code: "1", ESM: true, Dependencies: []types.Dependency{{URL: "x", ESM: true, Name: "a.b"}}},
	})
	assert.True(t, errors.Is(err, types.ErrDependencyLoad))
}

func TestMerge(t *testing.T) {
	cfg := types.Config{
		DataCode: "const data = 1;",
		GlobalTestConfig: types.TestCase{
			Code:         "const shared = 2;",
			ESM:          true,
			Dependencies: []types.Dependency{{URL: "g"}},
		},
	}
	tc := types.TestCase{ID: "x", Code: "return data + shared", Dependencies: []types.Dependency{{URL: "l"}}}

	merged, setup := Merge(cfg, tc)
	assert.True(t, merged.ESM)
	assert.Equal(t, []types.Dependency{{URL: "g"}, {URL: "l"}}, merged.Dependencies)
	assert.Equal(t, "const data = 1;\n;\nconst shared = 2;", setup)
	assert.Empty(t, tc.Dependencies[0].Name, "input must not be mutated")
}
