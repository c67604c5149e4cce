package value

// Skip-propagating operations. Every operation forwards the fail-fast
// marker before computing and yields Skip when an operand is Skip or has
// an incompatible type. There is no "type error" at runtime: the static
// checker is an external collaborator, and the engine degrades to Skip.

// Add returns a + b.
func Add(a, b Value) Value {
	if v, short := shortCircuit(a, b); short {
		return v
	}
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av + bv
		case Float:
			return Float(float64(av)) + bv
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return av + Float(float64(bv))
		case Float:
			return av + bv
		}
	case Text:
		if bv, ok := b.(Text); ok {
			return av + bv
		}
	}
	return Skip{}
}

// Subtract returns a - b.
func Subtract(a, b Value) Value {
	if v, short := shortCircuit(a, b); short {
		return v
	}
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av - bv
		case Float:
			return Float(float64(av)) - bv
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return av - Float(float64(bv))
		case Float:
			return av - bv
		}
	}
	return Skip{}
}

// Multiply returns a * b.
func Multiply(a, b Value) Value {
	if v, short := shortCircuit(a, b); short {
		return v
	}
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av * bv
		case Float:
			return Float(float64(av)) * bv
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return av * Float(float64(bv))
		case Float:
			return av * bv
		}
	}
	return Skip{}
}

// Divide returns a / b. Division by zero yields Skip.
func Divide(a, b Value) Value {
	if v, short := shortCircuit(a, b); short {
		return v
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok || bf == 0 {
		return Skip{}
	}
	if ai, ok := a.(Int); ok {
		if bi, ok := b.(Int); ok && bi != 0 && ai%bi == 0 {
			return ai / bi
		}
	}
	return Float(af / bf)
}

// Compare returns Bool for the six comparison operators. Order
// comparisons on non-numeric, non-text operands yield Skip.
func Compare(op string, a, b Value) Value {
	if v, short := shortCircuit(a, b); short {
		return v
	}
	switch op {
	case "==":
		return Bool(Equal(a, b))
	case "!=":
		return Bool(!Equal(a, b))
	}
	if at, ok := a.(Text); ok {
		if bt, ok := b.(Text); ok {
			return orderResult(op, compareText(at, bt))
		}
		return Skip{}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return Skip{}
	}
	switch {
	case af < bf:
		return orderResult(op, -1)
	case af > bf:
		return orderResult(op, 1)
	default:
		return orderResult(op, 0)
	}
}

// Not negates a boolean; anything else yields Skip.
func Not(v Value) Value {
	if IsFlushed(v) {
		return v
	}
	if b, ok := v.(Bool); ok {
		return !b
	}
	return Skip{}
}

// GetField accesses a field; field access on Skip yields Skip.
func GetField(v Value, name string) Value {
	if IsFlushed(v) {
		return v
	}
	obj, ok := v.(Object)
	if !ok {
		return Skip{}
	}
	fv, ok := obj.Get(name)
	if !ok {
		return Skip{}
	}
	return fv
}

func shortCircuit(a, b Value) (Value, bool) {
	if IsFlushed(a) {
		return a, true
	}
	if IsFlushed(b) {
		return b, true
	}
	if IsSkip(a) || IsSkip(b) {
		return Skip{}, true
	}
	return nil, false
}

func asFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Float:
		return float64(n), true
	default:
		return 0, false
	}
}

func compareText(a, b Text) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func orderResult(op string, cmp int) Value {
	switch op {
	case "<":
		return Bool(cmp < 0)
	case "<=":
		return Bool(cmp <= 0)
	case ">":
		return Bool(cmp > 0)
	case ">=":
		return Bool(cmp >= 0)
	default:
		return Skip{}
	}
}
