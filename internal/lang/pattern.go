package lang

import "github.com/weftlang/weft/internal/value"

// Pattern is a sealed interface over match patterns for WHEN/WHILE arms.
// Patterns are tried in declaration order; the first match wins. A
// wildcard, when present, must be last (enforced by the compiler, but
// the evaluator tolerates non-exhaustive arms by reporting a diagnostic
// and yielding Skip).
type Pattern interface {
	pattern()
}

// BindPattern matches anything and captures the value under Name.
type BindPattern struct {
	Name string
}

// LiteralPattern matches an exact value.
type LiteralPattern struct {
	Value value.Value
}

// ObjectPattern matches an object with the given field patterns.
// Fields not named by the pattern are ignored.
type ObjectPattern struct {
	Fields []ObjectFieldPattern
}

// ObjectFieldPattern is one field constraint of an ObjectPattern.
type ObjectFieldPattern struct {
	Name    string
	Pattern Pattern
}

// WildcardPattern matches anything without capturing.
type WildcardPattern struct{}

func (BindPattern) pattern()     {}
func (LiteralPattern) pattern()  {}
func (ObjectPattern) pattern()   {}
func (WildcardPattern) pattern() {}

// Matches reports whether the pattern matches v, and returns any
// captured bindings. Skip never matches any pattern.
func Matches(p Pattern, v value.Value) (map[string]value.Value, bool) {
	if value.IsSkip(v) {
		return nil, false
	}
	switch pat := p.(type) {
	case WildcardPattern:
		return nil, true
	case BindPattern:
		return map[string]value.Value{pat.Name: v}, true
	case LiteralPattern:
		if value.Equal(pat.Value, v) {
			return nil, true
		}
		return nil, false
	case ObjectPattern:
		obj, ok := v.(value.Object)
		if !ok {
			return nil, false
		}
		var captured map[string]value.Value
		for _, f := range pat.Fields {
			fv, ok := obj.Get(f.Name)
			if !ok {
				return nil, false
			}
			sub, ok := Matches(f.Pattern, fv)
			if !ok {
				return nil, false
			}
			for k, v := range sub {
				if captured == nil {
					captured = make(map[string]value.Value)
				}
				captured[k] = v
			}
		}
		return captured, true
	default:
		return nil, false
	}
}
