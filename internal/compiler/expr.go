package compiler

import (
	"cuelang.org/go/cue"

	"github.com/weftlang/weft/internal/lang"
)

// parseExpr parses one expression struct, discriminated by its kind
// field. Child expressions parse in the order the builder assigns ids,
// matching the preorder the engine relies on for stable addresses.
func parseExpr(b *lang.Builder, v cue.Value) (*lang.Expr, error) {
	kind, err := requiredString(v, "kind")
	if err != nil {
		return nil, err
	}

	switch kind {
	case "int":
		n, err := fieldInt(v, "value")
		if err != nil {
			return nil, err
		}
		return b.Int(n), nil

	case "float":
		fv := v.LookupPath(cue.ParsePath("value"))
		f, err := fv.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b.Float(f), nil

	case "text":
		s, err := requiredString(v, "value")
		if err != nil {
			return nil, err
		}
		return b.Text(s), nil

	case "bool":
		bv := v.LookupPath(cue.ParsePath("value"))
		val, err := bv.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b.Bool(val), nil

	case "unit":
		return b.Unit(), nil

	case "var":
		name, err := requiredString(v, "name")
		if err != nil {
			return nil, err
		}
		return b.Var(name), nil

	case "path":
		base, err := childExpr(b, v, "base")
		if err != nil {
			return nil, err
		}
		seg, err := requiredString(v, "field")
		if err != nil {
			return nil, err
		}
		return b.Path(base, seg), nil

	case "object":
		return parseObject(b, v)

	case "list":
		items, err := childExprList(b, v, "items")
		if err != nil {
			return nil, err
		}
		return b.List(items...), nil

	case "call":
		name, err := requiredString(v, "name")
		if err != nil {
			return nil, err
		}
		args, err := childExprList(b, v, "args")
		if err != nil {
			return nil, err
		}
		return b.Call(name, args...), nil

	case "pipe":
		input, err := childExpr(b, v, "input")
		if err != nil {
			return nil, err
		}
		method, err := requiredString(v, "method")
		if err != nil {
			return nil, err
		}
		args, err := childExprList(b, v, "args")
		if err != nil {
			return nil, err
		}
		return b.Pipe(input, method, args...), nil

	case "latest":
		inputs, err := childExprList(b, v, "inputs")
		if err != nil {
			return nil, err
		}
		return b.Latest(inputs...), nil

	case "hold":
		initial, err := childExpr(b, v, "initial")
		if err != nil {
			return nil, err
		}
		state, err := requiredString(v, "state")
		if err != nil {
			return nil, err
		}
		body, err := childExpr(b, v, "body")
		if err != nil {
			return nil, err
		}
		return b.Hold(initial, state, body), nil

	case "then":
		input, err := childExpr(b, v, "input")
		if err != nil {
			return nil, err
		}
		body, err := childExpr(b, v, "body")
		if err != nil {
			return nil, err
		}
		return b.Then(input, body), nil

	case "when":
		input, arms, err := parseMatch(b, v)
		if err != nil {
			return nil, err
		}
		return b.When(input, arms...), nil

	case "while":
		input, arms, err := parseMatch(b, v)
		if err != nil {
			return nil, err
		}
		return b.While(input, arms...), nil

	case "link":
		alias, err := requiredString(v, "alias")
		if err != nil {
			return nil, err
		}
		return b.Link(alias), nil

	case "bind":
		link, err := childExpr(b, v, "link")
		if err != nil {
			return nil, err
		}
		input, err := childExpr(b, v, "input")
		if err != nil {
			return nil, err
		}
		return b.Bind(link, input), nil

	case "flush":
		input, err := childExpr(b, v, "input")
		if err != nil {
			return nil, err
		}
		return b.Flush(input), nil

	case "block":
		return parseBlock(b, v)

	case "map":
		list, err := childExpr(b, v, "list")
		if err != nil {
			return nil, err
		}
		item, err := requiredString(v, "item")
		if err != nil {
			return nil, err
		}
		template, err := childExpr(b, v, "template")
		if err != nil {
			return nil, err
		}
		return b.ListMap(list, item, template), nil

	case "retain":
		list, err := childExpr(b, v, "list")
		if err != nil {
			return nil, err
		}
		item, err := requiredString(v, "item")
		if err != nil {
			return nil, err
		}
		predicate, err := childExpr(b, v, "predicate")
		if err != nil {
			return nil, err
		}
		return b.ListRetain(list, item, predicate), nil

	case "append":
		list, err := childExpr(b, v, "list")
		if err != nil {
			return nil, err
		}
		item, err := childExpr(b, v, "item")
		if err != nil {
			return nil, err
		}
		return b.ListAppend(list, item), nil

	case "remove":
		list, err := childExpr(b, v, "list")
		if err != nil {
			return nil, err
		}
		key, err := childExpr(b, v, "key")
		if err != nil {
			return nil, err
		}
		return b.ListRemove(list, key), nil

	case "clear":
		list, err := childExpr(b, v, "list")
		if err != nil {
			return nil, err
		}
		trigger, err := childExpr(b, v, "trigger")
		if err != nil {
			return nil, err
		}
		return b.ListClear(list, trigger), nil

	default:
		return nil, &CompileError{
			Field:   "kind",
			Message: "unknown expression kind " + kind,
			Pos:     v.Pos(),
		}
	}
}

func childExpr(b *lang.Builder, v cue.Value, field string) (*lang.Expr, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	return parseExpr(b, fv)
}

func childExprList(b *lang.Builder, v cue.Value, field string) ([]*lang.Expr, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*lang.Expr
	for iter.Next() {
		e, err := parseExpr(b, iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func parseObject(b *lang.Builder, v cue.Value) (*lang.Expr, error) {
	fv := v.LookupPath(cue.ParsePath("fields"))
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []lang.ObjectField
	for iter.Next() {
		fvv := iter.Value()
		name, err := requiredString(fvv, "name")
		if err != nil {
			return nil, err
		}
		e, err := childExpr(b, fvv, "value")
		if err != nil {
			return nil, err
		}
		fields = append(fields, lang.Field(name, e))
	}
	return b.Object(fields...), nil
}

func parseMatch(b *lang.Builder, v cue.Value) (*lang.Expr, []lang.MatchArm, error) {
	input, err := childExpr(b, v, "input")
	if err != nil {
		return nil, nil, err
	}
	armsVal := v.LookupPath(cue.ParsePath("arms"))
	iter, err := armsVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}
	var arms []lang.MatchArm
	for iter.Next() {
		av := iter.Value()
		p, err := parsePattern(av.LookupPath(cue.ParsePath("pattern")))
		if err != nil {
			return nil, nil, err
		}
		body, err := childExpr(b, av, "body")
		if err != nil {
			return nil, nil, err
		}
		arms = append(arms, lang.Arm(p, body))
	}
	if len(arms) == 0 {
		return nil, nil, &CompileError{
			Field:   "arms",
			Message: "at least one arm is required",
			Pos:     v.Pos(),
		}
	}
	return input, arms, nil
}

func parseBlock(b *lang.Builder, v cue.Value) (*lang.Expr, error) {
	var lets []lang.BlockBinding
	letsVal := v.LookupPath(cue.ParsePath("let"))
	if letsVal.Exists() {
		iter, err := letsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			lv := iter.Value()
			name, err := requiredString(lv, "name")
			if err != nil {
				return nil, err
			}
			e, err := childExpr(b, lv, "value")
			if err != nil {
				return nil, err
			}
			lets = append(lets, lang.Let(name, e))
		}
	}
	output, err := childExpr(b, v, "output")
	if err != nil {
		return nil, err
	}
	return b.Block(lets, output), nil
}

func fieldInt(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}
