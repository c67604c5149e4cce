package lang

import "github.com/weftlang/weft/internal/value"

// ExprId is the stable identifier of a syntactic expression.
// Assigned once at build time (preorder index), immutable for the
// program's lifetime.
type ExprId uint32

// InvalidExprId is the zero-ish sentinel for "no expression".
const InvalidExprId ExprId = ^ExprId(0)

// Span records the source range an expression came from.
// Used only for diagnostics; the engine never branches on it.
type Span struct {
	Start uint32
	End   uint32
}

// Expr is one node of the expression tree.
type Expr struct {
	ID   ExprId
	Kind ExprKind
	Span Span
}

// ExprKind is a sealed interface over the combinator set.
// Only the *Expr structs in this package implement it.
type ExprKind interface {
	exprKind()
}

// LiteralExpr is a constant value: 42, "hello", True.
type LiteralExpr struct {
	Value value.Value
}

// VariableExpr references a top-level or block binding by name.
type VariableExpr struct {
	Name string
}

// PathExpr accesses a field of its base: base.field.
// Field access on Skip yields Skip.
type PathExpr struct {
	Base  *Expr
	Field string
}

// ObjectExpr constructs an object from named field expressions.
// Field order is declaration order and is preserved.
type ObjectExpr struct {
	Fields []ObjectField
}

// ObjectField is one named field of an ObjectExpr.
type ObjectField struct {
	Name string
	Expr *Expr
}

// ListExpr constructs a collection from item expressions.
// The ListExpr's own ExprId is the collection's allocation site:
// item keys are drawn from a per-site monotonic counter.
type ListExpr struct {
	Items []*Expr
}

// CallExpr invokes a named builtin with argument expressions.
type CallExpr struct {
	Name string
	Args []*Expr
}

// PipeExpr applies a named method to a piped input: input |> method(args).
type PipeExpr struct {
	Input  *Expr
	Method string
	Args   []*Expr
}

// LatestExpr merges N input streams, emitting the value of whichever
// input most recently changed. Same-tick ties resolve to the lowest
// input index.
type LatestExpr struct {
	Inputs []*Expr
}

// HoldExpr is the stateful accumulator: initial |> HOLD state { body }.
// It owns one state cell at its SlotKey. Body evaluations are serialized
// by a single-slot permit so each evaluation observes committed state.
type HoldExpr struct {
	Initial   *Expr
	StateName string
	Body      *Expr
}

// ThenExpr transforms each non-Skip input event: input |> THEN { body }.
type ThenExpr struct {
	Input *Expr
	Body  *Expr
}

// WhenExpr is the conditional transform: one value per input event,
// first matching arm wins, wildcard last.
type WhenExpr struct {
	Input *Expr
	Arms  []MatchArm
}

// WhileExpr is the continuous transform: re-selects the matching arm
// every tick from current state and streams that arm's body, switching
// arms the instant the match changes.
type WhileExpr struct {
	Input *Expr
	Arms  []MatchArm
}

// MatchArm pairs a pattern with its body.
type MatchArm struct {
	Pattern Pattern
	Body    *Expr
}

// LinkExpr creates a late-binding cell, initialized unbound.
// Reading an unbound cell yields Skip, never an error.
type LinkExpr struct {
	Alias string
}

// BindExpr commits a late binding: sets the link cell to "bound to
// Input" and passes the input value through unchanged.
type BindExpr struct {
	Link  *Expr
	Input *Expr
}

// FlushExpr wraps its input in the fail-fast marker. Downstream nodes
// check and forward the marker without computing; it unwraps at block
// outputs and variable bindings.
type FlushExpr struct {
	Input *Expr
}

// BlockExpr introduces local bindings and evaluates to its output.
// Block boundaries unwrap the fail-fast marker.
type BlockExpr struct {
	Bindings []BlockBinding
	Output   *Expr
}

// BlockBinding is one local binding of a BlockExpr.
type BlockBinding struct {
	Name string
	Expr *Expr
}

// ListMapExpr maps a template over a collection. Each item is evaluated
// in a child scope derived from the item's key, so item state survives
// reordering.
type ListMapExpr struct {
	List     *Expr
	ItemName string
	Template *Expr
}

// ListAppendExpr appends an item to a collection when the item
// expression emits a non-Skip value.
type ListAppendExpr struct {
	List *Expr
	Item *Expr
}

// ListRemoveExpr removes the item whose key matches the Key expression's
// emitted ItemKey value.
type ListRemoveExpr struct {
	List *Expr
	Key  *Expr
}

// ListClearExpr removes all items when its trigger emits.
type ListClearExpr struct {
	List    *Expr
	Trigger *Expr
}

// ListRetainExpr is the derived filtered view of a collection: items
// flow through only while the predicate holds, and predicate flips are
// translated into synthetic inserts/removes.
type ListRetainExpr struct {
	List      *Expr
	ItemName  string
	Predicate *Expr
}

func (LiteralExpr) exprKind()    {}
func (VariableExpr) exprKind()   {}
func (PathExpr) exprKind()       {}
func (ObjectExpr) exprKind()     {}
func (ListExpr) exprKind()       {}
func (CallExpr) exprKind()       {}
func (PipeExpr) exprKind()       {}
func (LatestExpr) exprKind()     {}
func (HoldExpr) exprKind()       {}
func (ThenExpr) exprKind()       {}
func (WhenExpr) exprKind()       {}
func (WhileExpr) exprKind()      {}
func (LinkExpr) exprKind()       {}
func (BindExpr) exprKind()       {}
func (FlushExpr) exprKind()      {}
func (BlockExpr) exprKind()      {}
func (ListMapExpr) exprKind()    {}
func (ListAppendExpr) exprKind() {}
func (ListRemoveExpr) exprKind() {}
func (ListClearExpr) exprKind()  {}
func (ListRetainExpr) exprKind() {}
