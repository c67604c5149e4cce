package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/value"
)

func TestBuilder_AssignsSequentialIds(t *testing.T) {
	b := NewBuilder()
	x := b.Int(1)
	y := b.Var("x")
	z := b.Call("add", x, y)

	assert.Equal(t, ExprId(0), x.ID)
	assert.Equal(t, ExprId(1), y.ID)
	assert.Equal(t, ExprId(2), z.ID)
}

func TestNewProgram_IndexesEveryExpression(t *testing.T) {
	b := NewBuilder()
	body := b.Call("add", b.Var("n"), b.Int(1))
	expr := b.Hold(b.Int(0), "n", b.Then(b.Link("press"), body))

	p, err := NewProgram([]Binding{{Name: "counter", Expr: expr}})
	require.NoError(t, err)

	assert.Equal(t, 7, p.ExprCount())
	got, ok := p.Lookup(body.ID)
	require.True(t, ok)
	assert.Same(t, body, got)

	resolved, ok := p.Resolve("counter")
	require.True(t, ok)
	assert.Same(t, expr, resolved)

	_, ok = p.Resolve("missing")
	assert.False(t, ok)
}

func TestNewProgram_RejectsDuplicateIds(t *testing.T) {
	b := NewBuilder()
	shared := b.Int(1)
	dup := b.Call("add", shared, shared)

	_, err := NewProgram([]Binding{{Name: "bad", Expr: dup}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate expression id")
}

func TestChildren_CoversCompositeKinds(t *testing.T) {
	b := NewBuilder()

	hold := b.Hold(b.Int(0), "s", b.Var("s"))
	hk := hold.Kind.(HoldExpr)
	assert.Equal(t, []*Expr{hk.Initial, hk.Body}, Children(hold))

	when := b.When(b.Link("p"),
		Arm(LiteralPattern{Value: value.Int(1)}, b.Text("one")),
		Arm(WildcardPattern{}, b.Text("other")),
	)
	assert.Len(t, Children(when), 3, "input plus one body per arm")

	blk := b.Block([]BlockBinding{Let("x", b.Int(1))}, b.Var("x"))
	kids := Children(blk)
	require.Len(t, kids, 2)
	assert.Equal(t, blk.Kind.(BlockExpr).Output, kids[1])

	lit := b.Int(9)
	assert.Nil(t, Children(lit))
}

func TestMatches_SkipNeverMatches(t *testing.T) {
	_, ok := Matches(WildcardPattern{}, value.Skip{})
	assert.False(t, ok)
	_, ok = Matches(BindPattern{Name: "x"}, value.Skip{})
	assert.False(t, ok)
}

func TestMatches_BindCaptures(t *testing.T) {
	binds, ok := Matches(BindPattern{Name: "x"}, value.Int(5))
	require.True(t, ok)
	assert.Equal(t, value.Int(5), binds["x"])
}

func TestMatches_Literal(t *testing.T) {
	_, ok := Matches(LiteralPattern{Value: value.Text("go")}, value.Text("go"))
	assert.True(t, ok)
	_, ok = Matches(LiteralPattern{Value: value.Text("go")}, value.Text("stop"))
	assert.False(t, ok)
	_, ok = Matches(LiteralPattern{Value: value.Int(1)}, value.Float(1))
	assert.False(t, ok, "no cross-type literal matching")
}

func TestMatches_ObjectPattern(t *testing.T) {
	v := value.NewObject(map[string]value.Value{
		"kind": value.Text("move"),
		"dx":   value.Int(3),
		"dy":   value.Int(4),
	})
	pat := ObjectPattern{Fields: []ObjectFieldPattern{
		{Name: "kind", Pattern: LiteralPattern{Value: value.Text("move")}},
		{Name: "dx", Pattern: BindPattern{Name: "x"}},
	}}

	binds, ok := Matches(pat, v)
	require.True(t, ok)
	assert.Equal(t, value.Int(3), binds["x"])

	_, ok = Matches(pat, value.NewObject(map[string]value.Value{"kind": value.Text("stop")}))
	assert.False(t, ok)

	_, ok = Matches(pat, value.Int(1))
	assert.False(t, ok, "object patterns only match objects")

	missing := ObjectPattern{Fields: []ObjectFieldPattern{
		{Name: "absent", Pattern: WildcardPattern{}},
	}}
	_, ok = Matches(missing, v)
	assert.False(t, ok)
}
