package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

const counterSrc = `
bindings: [{
	name: "counter"
	expr: {
		kind:    "hold"
		initial: {kind: "int", value: 0}
		state:   "n"
		body: {
			kind:  "then"
			input: {kind: "link", alias: "increment.press"}
			body: {
				kind: "call"
				name: "add"
				args: [{kind: "var", name: "n"}, {kind: "int", value: 1}]
			}
		}
	}
}]
`

func TestCompileString_Counter(t *testing.T) {
	p, err := CompileString(counterSrc)
	require.NoError(t, err)
	require.Len(t, p.Bindings, 1)
	assert.Equal(t, "counter", p.Bindings[0].Name)

	hold, ok := p.Bindings[0].Expr.Kind.(lang.HoldExpr)
	require.True(t, ok)
	assert.Equal(t, "n", hold.StateName)

	lit, ok := hold.Initial.Kind.(lang.LiteralExpr)
	require.True(t, ok)
	assert.Equal(t, value.Int(0), lit.Value)

	then, ok := hold.Body.Kind.(lang.ThenExpr)
	require.True(t, ok)
	link, ok := then.Input.Kind.(lang.LinkExpr)
	require.True(t, ok)
	assert.Equal(t, "increment.press", link.Alias)
}

func TestCompileString_StableIdsAcrossRecompiles(t *testing.T) {
	p1, err := CompileString(counterSrc)
	require.NoError(t, err)
	p2, err := CompileString(counterSrc)
	require.NoError(t, err)

	assert.Equal(t, p1.Bindings[0].Expr.ID, p2.Bindings[0].Expr.ID)
	assert.Equal(t, p1.ExprCount(), p2.ExprCount())
}

func TestCompileString_MatchArms(t *testing.T) {
	src := `
bindings: [{
	name: "route"
	expr: {
		kind:  "when"
		input: {kind: "link", alias: "cmd"}
		arms: [{
			pattern: {kind: "literal", value: 1}
			body: {kind: "text", value: "one"}
		}, {
			pattern: {kind: "object", fields: [{
				name:    "dx"
				pattern: {kind: "bind", name: "x"}
			}]}
			body: {kind: "var", name: "x"}
		}, {
			pattern: {kind: "wildcard"}
			body: {kind: "text", value: "other"}
		}]
	}
}]
`
	p, err := CompileString(src)
	require.NoError(t, err)

	when, ok := p.Bindings[0].Expr.Kind.(lang.WhenExpr)
	require.True(t, ok)
	require.Len(t, when.Arms, 3)
	assert.Equal(t, lang.LiteralPattern{Value: value.Int(1)}, when.Arms[0].Pattern)
	obj, ok := when.Arms[1].Pattern.(lang.ObjectPattern)
	require.True(t, ok)
	require.Len(t, obj.Fields, 1)
	assert.Equal(t, lang.BindPattern{Name: "x"}, obj.Fields[0].Pattern)
	assert.Equal(t, lang.WildcardPattern{}, when.Arms[2].Pattern)
}

func TestCompileString_Errors(t *testing.T) {
	cases := map[string]string{
		"missing bindings": `other: 1`,
		"empty bindings":   `bindings: []`,
		"unnamed binding":  `bindings: [{expr: {kind: "int", value: 1}}]`,
		"missing expr":     `bindings: [{name: "x"}]`,
		"unknown kind":     `bindings: [{name: "x", expr: {kind: "bogus"}}]`,
		"duplicate names": `bindings: [
			{name: "x", expr: {kind: "int", value: 1}},
			{name: "x", expr: {kind: "int", value: 2}},
		]`,
		"empty latest": `bindings: [{name: "x", expr: {kind: "latest", inputs: []}}]`,
		"unresolved var": `bindings: [{name: "x", expr: {kind: "var", name: "ghost"}}]`,
		"bind to non-link": `bindings: [{name: "x", expr: {
			kind:  "bind"
			link:  {kind: "int", value: 1}
			input: {kind: "int", value: 2}
		}}]`,
		"when without arms": `bindings: [{name: "x", expr: {
			kind:  "when"
			input: {kind: "link", alias: "p"}
			arms: []
		}}]`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CompileString(src)
			assert.Error(t, err)
		})
	}
}

func TestCompileString_BlockScoping(t *testing.T) {
	src := `
bindings: [{
	name: "result"
	expr: {
		kind: "block"
		let: [{
			name:  "x"
			value: {kind: "int", value: 2}
		}]
		output: {kind: "var", name: "x"}
	}
}]
`
	p, err := CompileString(src)
	require.NoError(t, err)
	blk, ok := p.Bindings[0].Expr.Kind.(lang.BlockExpr)
	require.True(t, ok)
	require.Len(t, blk.Bindings, 1)
	assert.Equal(t, "x", blk.Bindings[0].Name)
}

func TestCompileString_LetUseBeforeDefinitionFails(t *testing.T) {
	src := `
bindings: [{
	name: "result"
	expr: {
		kind: "block"
		let: [{
			name:  "y"
			value: {kind: "var", name: "x"}
		}, {
			name:  "x"
			value: {kind: "int", value: 1}
		}]
		output: {kind: "var", name: "y"}
	}
}]
`
	_, err := CompileString(src)
	assert.Error(t, err, "lets bind in order, later names are not visible earlier")
}

func TestValidate_HoldStateNameInScope(t *testing.T) {
	b := lang.NewBuilder()
	expr := b.Hold(b.Int(0), "n", b.Var("n"))
	p, err := lang.NewProgram([]lang.Binding{{Name: "ok", Expr: expr}})
	require.NoError(t, err)
	assert.NoError(t, Validate(p))

	b2 := lang.NewBuilder()
	leak := b2.Call("add", b2.Hold(b2.Int(0), "n", b2.Var("n")), b2.Var("n"))
	p2, err := lang.NewProgram([]lang.Binding{{Name: "bad", Expr: leak}})
	require.NoError(t, err)
	assert.Error(t, Validate(p2), "state names do not escape their hold body")
}

func TestCompileFile_MissingFile(t *testing.T) {
	_, err := CompileFile("/nonexistent/program.cue")
	assert.Error(t, err)
}
