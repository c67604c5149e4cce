package compiler

import (
	"cuelang.org/go/cue"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

// parsePattern parses one match-arm pattern struct.
func parsePattern(v cue.Value) (lang.Pattern, error) {
	if !v.Exists() {
		return nil, &CompileError{
			Field:   "pattern",
			Message: "pattern is required",
			Pos:     v.Pos(),
		}
	}
	kind, err := requiredString(v, "kind")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "wildcard":
		return lang.WildcardPattern{}, nil

	case "bind":
		name, err := requiredString(v, "name")
		if err != nil {
			return nil, err
		}
		return lang.BindPattern{Name: name}, nil

	case "literal":
		lit, err := parseLiteralValue(v.LookupPath(cue.ParsePath("value")))
		if err != nil {
			return nil, err
		}
		return lang.LiteralPattern{Value: lit}, nil

	case "object":
		fieldsVal := v.LookupPath(cue.ParsePath("fields"))
		iter, err := fieldsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var fields []lang.ObjectFieldPattern
		for iter.Next() {
			fv := iter.Value()
			name, err := requiredString(fv, "name")
			if err != nil {
				return nil, err
			}
			p, err := parsePattern(fv.LookupPath(cue.ParsePath("pattern")))
			if err != nil {
				return nil, err
			}
			fields = append(fields, lang.ObjectFieldPattern{Name: name, Pattern: p})
		}
		return lang.ObjectPattern{Fields: fields}, nil

	default:
		return nil, &CompileError{
			Field:   "kind",
			Message: "unknown pattern kind " + kind,
			Pos:     v.Pos(),
		}
	}
}

// parseLiteralValue converts a CUE scalar into a runtime value.
func parseLiteralValue(v cue.Value) (value.Value, error) {
	if !v.Exists() {
		return nil, &CompileError{
			Field:   "value",
			Message: "literal pattern needs a value",
			Pos:     v.Pos(),
		}
	}
	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Int(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return value.Text(s), nil
	case cue.NullKind:
		return value.Unit{}, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: "unsupported literal pattern value",
			Pos:     v.Pos(),
		}
	}
}
