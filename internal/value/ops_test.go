package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd_NumericPromotion(t *testing.T) {
	assert.Equal(t, Int(5), Add(Int(2), Int(3)))
	assert.Equal(t, Float(5.5), Add(Int(2), Float(3.5)))
	assert.Equal(t, Float(5.5), Add(Float(2.5), Int(3)))
	assert.Equal(t, Text("ab"), Add(Text("a"), Text("b")))
}

func TestAdd_IncompatibleOperandsYieldSkip(t *testing.T) {
	assert.Equal(t, Skip{}, Add(Text("a"), Int(1)))
	assert.Equal(t, Skip{}, Add(Bool(true), Bool(false)))
}

func TestOps_SkipPropagates(t *testing.T) {
	assert.Equal(t, Skip{}, Add(Skip{}, Int(1)))
	assert.Equal(t, Skip{}, Multiply(Int(2), Skip{}))
	assert.Equal(t, Skip{}, Compare("<", Skip{}, Int(1)))
	assert.Equal(t, Skip{}, Not(Skip{}))
}

func TestOps_FlushedForwardsBeforeComputing(t *testing.T) {
	f := Flushed{Inner: Text("abort")}
	assert.Equal(t, f, Add(f, Int(1)))
	assert.Equal(t, f, Add(Int(1), f))
	assert.Equal(t, f, Compare("==", f, Int(1)))
	assert.Equal(t, f, Not(f))
	assert.Equal(t, f, GetField(f, "x"))

	// The marker on the left wins when both operands carry one.
	g := Flushed{Inner: Text("other")}
	assert.Equal(t, f, Add(f, g))
}

func TestDivide_ByZeroYieldsSkip(t *testing.T) {
	assert.Equal(t, Skip{}, Divide(Int(1), Int(0)))
	assert.Equal(t, Skip{}, Divide(Float(1), Float(0)))
}

func TestDivide_ExactIntStaysInt(t *testing.T) {
	assert.Equal(t, Int(3), Divide(Int(6), Int(2)))
	assert.Equal(t, Float(3.5), Divide(Int(7), Int(2)))
}

func TestCompare_Ordering(t *testing.T) {
	assert.Equal(t, Bool(true), Compare("<", Int(1), Int(2)))
	assert.Equal(t, Bool(true), Compare("<", Int(1), Float(1.5)))
	assert.Equal(t, Bool(false), Compare(">", Text("a"), Text("b")))
	assert.Equal(t, Bool(true), Compare(">=", Text("b"), Text("b")))
	assert.Equal(t, Skip{}, Compare("<", Bool(true), Bool(false)),
		"order comparison is undefined on booleans")
	assert.Equal(t, Skip{}, Compare("<", Text("a"), Int(1)))
}

func TestCompare_Equality(t *testing.T) {
	assert.Equal(t, Bool(true), Compare("==", Unit{}, Unit{}))
	assert.Equal(t, Bool(true), Compare("!=", Int(1), Text("1")))
}

func TestGetField(t *testing.T) {
	obj := NewObject(map[string]Value{"name": Text("ada")})
	assert.Equal(t, Text("ada"), GetField(obj, "name"))
	assert.Equal(t, Skip{}, GetField(obj, "missing"))
	assert.Equal(t, Skip{}, GetField(Int(1), "name"))
}

func TestEqual_Structural(t *testing.T) {
	a := NewObject(map[string]Value{"x": Int(1), "y": NewList([]ListItem{{Key: 0, Value: Text("a")}})})
	b := NewObject(map[string]Value{"y": NewList([]ListItem{{Key: 0, Value: Text("a")}}), "x": Int(1)})
	assert.True(t, Equal(a, b))

	c := NewObject(map[string]Value{"x": Int(1), "y": NewList([]ListItem{{Key: 1, Value: Text("a")}})})
	assert.False(t, Equal(a, c), "item keys participate in equality")

	assert.True(t, Equal(Skip{}, Skip{}))
	assert.False(t, Equal(Skip{}, Unit{}))
	assert.False(t, Equal(Int(1), Float(1)), "no cross-type numeric equality")
}

func TestObject_WithIsImmutable(t *testing.T) {
	a := NewObject(map[string]Value{"x": Int(1)})
	b := a.With("x", Int(2))

	got, _ := a.Get("x")
	assert.Equal(t, Int(1), got)
	got, _ = b.Get("x")
	assert.Equal(t, Int(2), got)
}

func TestUnwrap(t *testing.T) {
	assert.Equal(t, Int(1), Unwrap(Flushed{Inner: Int(1)}))
	assert.Equal(t, Int(1), Unwrap(Int(1)))
}
