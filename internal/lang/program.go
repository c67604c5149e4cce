package lang

import "fmt"

// Binding is one top-level reactive binding of a program.
type Binding struct {
	Name string
	Expr *Expr
}

// Program is a complete expression tree with resolved ExprIds.
//
// INVARIANTS:
//   - Binding order NEVER changes after construction: the scheduler
//     evaluates top-level bindings in declaration order, and identical
//     order guarantees identical slot addressing across runs.
//   - Every ExprId in the tree is unique.
type Program struct {
	Bindings []Binding

	// index maps ExprId -> Expr for O(1) lookup during evaluation.
	index map[ExprId]*Expr
}

// NewProgram builds a program from bindings, indexing every expression.
// Returns an error if any ExprId is duplicated.
func NewProgram(bindings []Binding) (*Program, error) {
	p := &Program{
		Bindings: bindings,
		index:    make(map[ExprId]*Expr),
	}
	for _, b := range bindings {
		if err := p.indexExpr(b.Expr); err != nil {
			return nil, fmt.Errorf("binding %q: %w", b.Name, err)
		}
	}
	return p, nil
}

// Lookup returns the expression with the given id, if present.
func (p *Program) Lookup(id ExprId) (*Expr, bool) {
	e, ok := p.index[id]
	return e, ok
}

// Resolve returns the top-level expression bound to name.
func (p *Program) Resolve(name string) (*Expr, bool) {
	for _, b := range p.Bindings {
		if b.Name == name {
			return b.Expr, true
		}
	}
	return nil, false
}

// ExprCount returns the number of indexed expressions.
func (p *Program) ExprCount() int {
	return len(p.index)
}

func (p *Program) indexExpr(e *Expr) error {
	if e == nil {
		return nil
	}
	if _, dup := p.index[e.ID]; dup {
		return fmt.Errorf("duplicate expression id %d", e.ID)
	}
	p.index[e.ID] = e

	for _, child := range Children(e) {
		if err := p.indexExpr(child); err != nil {
			return err
		}
	}
	return nil
}

// Children returns the direct child expressions of e in evaluation order.
func Children(e *Expr) []*Expr {
	switch k := e.Kind.(type) {
	case PathExpr:
		return []*Expr{k.Base}
	case ObjectExpr:
		out := make([]*Expr, 0, len(k.Fields))
		for _, f := range k.Fields {
			out = append(out, f.Expr)
		}
		return out
	case ListExpr:
		return k.Items
	case CallExpr:
		return k.Args
	case PipeExpr:
		return append([]*Expr{k.Input}, k.Args...)
	case LatestExpr:
		return k.Inputs
	case HoldExpr:
		return []*Expr{k.Initial, k.Body}
	case ThenExpr:
		return []*Expr{k.Input, k.Body}
	case WhenExpr:
		out := []*Expr{k.Input}
		for _, arm := range k.Arms {
			out = append(out, arm.Body)
		}
		return out
	case WhileExpr:
		out := []*Expr{k.Input}
		for _, arm := range k.Arms {
			out = append(out, arm.Body)
		}
		return out
	case BindExpr:
		return []*Expr{k.Link, k.Input}
	case FlushExpr:
		return []*Expr{k.Input}
	case BlockExpr:
		out := make([]*Expr, 0, len(k.Bindings)+1)
		for _, b := range k.Bindings {
			out = append(out, b.Expr)
		}
		return append(out, k.Output)
	case ListMapExpr:
		return []*Expr{k.List, k.Template}
	case ListAppendExpr:
		return []*Expr{k.List, k.Item}
	case ListRemoveExpr:
		return []*Expr{k.List, k.Key}
	case ListClearExpr:
		return []*Expr{k.List, k.Trigger}
	case ListRetainExpr:
		return []*Expr{k.List, k.Predicate}
	default:
		return nil
	}
}
