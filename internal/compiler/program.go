package compiler

import (
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/weftlang/weft/internal/lang"
)

// CompileString compiles CUE source text into a program.
func CompileString(src string) (*lang.Program, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}

// CompileFile compiles a CUE program file.
func CompileFile(path string) (*lang.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileString(string(data))
}

// CompileProgram parses a CUE value holding a bindings list into an
// executable program. Expression ids are assigned in source order by
// the shared builder, so recompiling the same source yields the same
// cell addresses.
func CompileProgram(v cue.Value) (*lang.Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	bindingsVal := v.LookupPath(cue.ParsePath("bindings"))
	if !bindingsVal.Exists() {
		return nil, &CompileError{
			Field:   "bindings",
			Message: "bindings list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := bindingsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	b := lang.NewBuilder()
	var bindings []lang.Binding
	seen := make(map[string]bool)
	for iter.Next() {
		bv := iter.Value()
		name, err := requiredString(bv, "name")
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &CompileError{
				Field:   "name",
				Message: "duplicate binding " + name,
				Pos:     bv.Pos(),
			}
		}
		seen[name] = true

		exprVal := bv.LookupPath(cue.ParsePath("expr"))
		if !exprVal.Exists() {
			return nil, &CompileError{
				Field:   "expr",
				Message: "binding " + name + " has no expression",
				Pos:     bv.Pos(),
			}
		}
		expr, err := parseExpr(b, exprVal)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, lang.Binding{Name: name, Expr: expr})
	}
	if len(bindings) == 0 {
		return nil, &CompileError{
			Field:   "bindings",
			Message: "at least one binding is required",
			Pos:     v.Pos(),
		}
	}

	program, err := lang.NewProgram(bindings)
	if err != nil {
		return nil, err
	}
	if err := Validate(program); err != nil {
		return nil, err
	}
	return program, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}
