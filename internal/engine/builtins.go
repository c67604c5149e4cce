package engine

import (
	"strings"

	"github.com/weftlang/weft/internal/value"
)

// builtins are the primitive operations reachable from calls and
// pipes. Every builtin propagates Skip and forwards Flushed markers
// before looking at its operands, so no-event and fail-fast semantics
// hold without per-call bookkeeping.
var builtins = map[string]func(args []value.Value) value.Value{
	"add":      binaryNumeric(value.Add),
	"subtract": binaryNumeric(value.Subtract),
	"multiply": binaryNumeric(value.Multiply),
	"divide":   binaryNumeric(value.Divide),

	"equals":           comparison("=="),
	"not_equals":       comparison("!="),
	"greater":          comparison(">"),
	"greater_or_equal": comparison(">="),
	"less":             comparison("<"),
	"less_or_equal":    comparison("<="),

	"not": unary(value.Not),

	"trim": unary(func(v value.Value) value.Value {
		t, ok := v.(value.Text)
		if !ok {
			return value.Skip{}
		}
		return value.Text(strings.TrimSpace(string(t)))
	}),

	"is_empty": unary(func(v value.Value) value.Value {
		switch t := v.(type) {
		case value.Text:
			return value.Bool(len(t) == 0)
		case value.List:
			return value.Bool(t.Len() == 0)
		}
		return value.Skip{}
	}),

	"is_not_empty": unary(func(v value.Value) value.Value {
		switch t := v.(type) {
		case value.Text:
			return value.Bool(len(t) > 0)
		case value.List:
			return value.Bool(t.Len() > 0)
		}
		return value.Skip{}
	}),

	"count": unary(func(v value.Value) value.Value {
		l, ok := v.(value.List)
		if !ok {
			return value.Skip{}
		}
		return value.Int(l.Len())
	}),

	"concat": func(args []value.Value) value.Value {
		var sb strings.Builder
		for _, a := range args {
			if value.IsFlushed(a) {
				return a
			}
			if value.IsSkip(a) {
				return value.Skip{}
			}
			t, ok := a.(value.Text)
			if !ok {
				return value.Skip{}
			}
			sb.WriteString(string(t))
		}
		return value.Text(sb.String())
	},
}

func applyBuiltin(name string, args []value.Value) value.Value {
	fn, ok := builtins[name]
	if !ok {
		return value.Skip{}
	}
	return fn(args)
}

func unary(f func(value.Value) value.Value) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if len(args) != 1 {
			return value.Skip{}
		}
		a := args[0]
		if value.IsFlushed(a) {
			return a
		}
		if value.IsSkip(a) {
			return value.Skip{}
		}
		return f(a)
	}
}

func binaryNumeric(f func(a, b value.Value) value.Value) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if len(args) != 2 {
			return value.Skip{}
		}
		return f(args[0], args[1])
	}
}

func comparison(op string) func([]value.Value) value.Value {
	return func(args []value.Value) value.Value {
		if len(args) != 2 {
			return value.Skip{}
		}
		return value.Compare(op, args[0], args[1])
	}
}
