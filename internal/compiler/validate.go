package compiler

import (
	"fmt"

	"github.com/weftlang/weft/internal/lang"
)

// Validate performs static checks on a compiled program: unresolved
// variable references, empty merges, and bind targets that are not
// late-binding cells. These are compile-time failures; the engine
// assumes a validated program.
func Validate(p *lang.Program) error {
	roots := make(map[string]*lang.Expr, len(p.Bindings))
	for _, b := range p.Bindings {
		roots[b.Name] = b.Expr
	}

	v := &validator{roots: roots}
	for _, b := range p.Bindings {
		if err := v.check(b.Expr, nil); err != nil {
			return fmt.Errorf("binding %q: %w", b.Name, err)
		}
	}
	return nil
}

type validator struct {
	roots map[string]*lang.Expr
}

// check walks e with the lexically bound names in scope.
func (v *validator) check(e *lang.Expr, bound []string) error {
	switch k := e.Kind.(type) {
	case lang.VariableExpr:
		if !v.resolves(k.Name, bound) {
			return &CompileError{
				Field:   "var",
				Message: "unresolved reference " + k.Name,
			}
		}
		return nil

	case lang.LatestExpr:
		if len(k.Inputs) == 0 {
			return &CompileError{
				Field:   "latest",
				Message: "merge needs at least one input",
			}
		}

	case lang.HoldExpr:
		if err := v.check(k.Initial, bound); err != nil {
			return err
		}
		return v.check(k.Body, append(bound, k.StateName))

	case lang.ThenExpr:
		if err := v.check(k.Input, bound); err != nil {
			return err
		}
		return v.check(k.Body, append(bound, "it"))

	case lang.WhenExpr:
		return v.checkArms(k.Input, k.Arms, bound)

	case lang.WhileExpr:
		return v.checkArms(k.Input, k.Arms, bound)

	case lang.BindExpr:
		if !v.isLinkTarget(k.Link) {
			return &CompileError{
				Field:   "bind",
				Message: "bind target is not a late-binding cell",
			}
		}

	case lang.BlockExpr:
		cur := bound
		for _, let := range k.Bindings {
			if err := v.check(let.Expr, cur); err != nil {
				return err
			}
			cur = append(cur, let.Name)
		}
		return v.check(k.Output, cur)

	case lang.ListMapExpr:
		if err := v.check(k.List, bound); err != nil {
			return err
		}
		return v.check(k.Template, append(bound, k.ItemName))

	case lang.ListRetainExpr:
		if err := v.check(k.List, bound); err != nil {
			return err
		}
		return v.check(k.Predicate, append(bound, k.ItemName))
	}

	for _, child := range lang.Children(e) {
		if err := v.check(child, bound); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) checkArms(input *lang.Expr, arms []lang.MatchArm, bound []string) error {
	if err := v.check(input, bound); err != nil {
		return err
	}
	for _, arm := range arms {
		if err := v.check(arm.Body, append(bound, patternNames(arm.Pattern)...)); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) resolves(name string, bound []string) bool {
	for _, b := range bound {
		if b == name {
			return true
		}
	}
	_, ok := v.roots[name]
	return ok
}

// isLinkTarget reports whether e is a link expression, directly or via
// a top-level binding.
func (v *validator) isLinkTarget(e *lang.Expr) bool {
	switch k := e.Kind.(type) {
	case lang.LinkExpr:
		return true
	case lang.VariableExpr:
		if target, ok := v.roots[k.Name]; ok {
			return v.isLinkTarget(target)
		}
	}
	return false
}

func patternNames(p lang.Pattern) []string {
	switch k := p.(type) {
	case lang.BindPattern:
		return []string{k.Name}
	case lang.ObjectPattern:
		var out []string
		for _, f := range k.Fields {
			out = append(out, patternNames(f.Pattern)...)
		}
		return out
	}
	return nil
}
