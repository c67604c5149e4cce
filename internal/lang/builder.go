package lang

import "github.com/weftlang/weft/internal/value"

// Builder constructs expression trees with sequential ExprIds.
// Intended for tests and for the CUE compiler; a surface parser would
// assign ids the same way.
type Builder struct {
	next ExprId
}

// NewBuilder creates a builder starting at id 0.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) nextID() ExprId {
	id := b.next
	b.next++
	return id
}

func (b *Builder) mk(kind ExprKind) *Expr {
	return &Expr{ID: b.nextID(), Kind: kind}
}

// Int builds an integer literal.
func (b *Builder) Int(v int64) *Expr { return b.mk(LiteralExpr{Value: value.Int(v)}) }

// Float builds a float literal.
func (b *Builder) Float(v float64) *Expr { return b.mk(LiteralExpr{Value: value.Float(v)}) }

// Text builds a text literal.
func (b *Builder) Text(v string) *Expr { return b.mk(LiteralExpr{Value: value.Text(v)}) }

// Bool builds a boolean literal.
func (b *Builder) Bool(v bool) *Expr { return b.mk(LiteralExpr{Value: value.Bool(v)}) }

// Unit builds the unit literal.
func (b *Builder) Unit() *Expr { return b.mk(LiteralExpr{Value: value.Unit{}}) }

// Var references a binding by name.
func (b *Builder) Var(name string) *Expr { return b.mk(VariableExpr{Name: name}) }

// Path accesses a field of base.
func (b *Builder) Path(base *Expr, field string) *Expr {
	return b.mk(PathExpr{Base: base, Field: field})
}

// Object builds an object literal.
func (b *Builder) Object(fields ...ObjectField) *Expr {
	return b.mk(ObjectExpr{Fields: fields})
}

// Field pairs a name with an expression for Object.
func Field(name string, e *Expr) ObjectField {
	return ObjectField{Name: name, Expr: e}
}

// List builds a collection literal; the returned expression's id is the
// collection's allocation site.
func (b *Builder) List(items ...*Expr) *Expr { return b.mk(ListExpr{Items: items}) }

// Call invokes a builtin.
func (b *Builder) Call(name string, args ...*Expr) *Expr {
	return b.mk(CallExpr{Name: name, Args: args})
}

// Pipe applies a method to input.
func (b *Builder) Pipe(input *Expr, method string, args ...*Expr) *Expr {
	return b.mk(PipeExpr{Input: input, Method: method, Args: args})
}

// Latest merges input streams.
func (b *Builder) Latest(inputs ...*Expr) *Expr { return b.mk(LatestExpr{Inputs: inputs}) }

// Hold builds a stateful accumulator.
func (b *Builder) Hold(initial *Expr, stateName string, body *Expr) *Expr {
	return b.mk(HoldExpr{Initial: initial, StateName: stateName, Body: body})
}

// Then builds a per-event transform.
func (b *Builder) Then(input, body *Expr) *Expr {
	return b.mk(ThenExpr{Input: input, Body: body})
}

// When builds a conditional transform.
func (b *Builder) When(input *Expr, arms ...MatchArm) *Expr {
	return b.mk(WhenExpr{Input: input, Arms: arms})
}

// While builds a continuous transform.
func (b *Builder) While(input *Expr, arms ...MatchArm) *Expr {
	return b.mk(WhileExpr{Input: input, Arms: arms})
}

// Arm pairs a pattern with a body for When/While.
func Arm(p Pattern, body *Expr) MatchArm {
	return MatchArm{Pattern: p, Body: body}
}

// Link builds a late-binding cell.
func (b *Builder) Link(alias string) *Expr { return b.mk(LinkExpr{Alias: alias}) }

// Bind commits a late binding, forwarding input unchanged.
func (b *Builder) Bind(link, input *Expr) *Expr {
	return b.mk(BindExpr{Link: link, Input: input})
}

// Flush wraps input in the fail-fast marker.
func (b *Builder) Flush(input *Expr) *Expr { return b.mk(FlushExpr{Input: input}) }

// Block builds a binding block.
func (b *Builder) Block(bindings []BlockBinding, output *Expr) *Expr {
	return b.mk(BlockExpr{Bindings: bindings, Output: output})
}

// Let pairs a name with an expression for Block.
func Let(name string, e *Expr) BlockBinding {
	return BlockBinding{Name: name, Expr: e}
}

// ListMap maps a template over a collection.
func (b *Builder) ListMap(list *Expr, itemName string, template *Expr) *Expr {
	return b.mk(ListMapExpr{List: list, ItemName: itemName, Template: template})
}

// ListAppend appends items emitted by item to a collection.
func (b *Builder) ListAppend(list, item *Expr) *Expr {
	return b.mk(ListAppendExpr{List: list, Item: item})
}

// ListRemove removes the item addressed by key.
func (b *Builder) ListRemove(list, key *Expr) *Expr {
	return b.mk(ListRemoveExpr{List: list, Key: key})
}

// ListClear clears a collection when trigger emits.
func (b *Builder) ListClear(list, trigger *Expr) *Expr {
	return b.mk(ListClearExpr{List: list, Trigger: trigger})
}

// ListRetain builds a filtered view of a collection.
func (b *Builder) ListRetain(list *Expr, itemName string, predicate *Expr) *Expr {
	return b.mk(ListRetainExpr{List: list, ItemName: itemName, Predicate: predicate})
}
