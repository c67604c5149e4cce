package engine

import (
	"fmt"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

// evalEnv is the lexical environment threaded through expression
// evaluation: local bindings (block lets, item names, hold state) and
// the innermost collection item context, if any.
type evalEnv struct {
	vars  map[string]value.Value
	owner *itemOwner
}

func (env *evalEnv) lookup(name string) (value.Value, bool) {
	if env == nil {
		return nil, false
	}
	v, ok := env.vars[name]
	return v, ok
}

// extend returns a child environment with one extra binding. The
// parent's map is copied so captured environments stay stable.
func (env *evalEnv) extend(name string, v value.Value) *evalEnv {
	out := &evalEnv{vars: make(map[string]value.Value, 4)}
	if env != nil {
		for k, vv := range env.vars {
			out.vars[k] = vv
		}
		out.owner = env.owner
	}
	out.vars[name] = v
	return out
}

func (env *evalEnv) withOwner(o *itemOwner) *evalEnv {
	out := &evalEnv{vars: make(map[string]value.Value, 4), owner: o}
	if env != nil {
		for k, vv := range env.vars {
			out.vars[k] = vv
		}
	}
	return out
}

// evaluator runs one evaluation unit (a top-level binding, or a nested
// hold body during link fan-out). It records which cells the unit
// reads so the scheduler knows what to re-run when a cell changes.
type evaluator struct {
	eng  *Engine
	unit int // top-level binding index, or -1 for out-of-band re-evaluation

	// captures collects reads made while a hold body is in flight, so
	// the body's read-set survives on the cell across gated returns.
	captures []map[SlotKey]struct{}
}

func (ev *evaluator) recordRead(key SlotKey) {
	if ev.unit >= 0 {
		ev.eng.recordUnitRead(ev.unit, key)
	}
	for _, c := range ev.captures {
		c[key] = struct{}{}
	}
}

// commit writes an expression's value to its versioned node and marks
// the slot changed when the value actually moved.
func (ev *evaluator) commit(scope ScopeId, id lang.ExprId, v value.Value) {
	key := SlotKey{Scope: scope, Expr: id}
	node := ev.eng.slots.GetOrCreate(key)
	if node.commit(v, ev.eng.currentCause()) {
		ev.eng.markChanged(key)
	}
}

// evalRoot computes a top-level binding's value. The binding is a
// fail-fast boundary: a flush marker reaching it unwraps here, so the
// binding publishes the flushed inner value rather than the marker.
func (ev *evaluator) evalRoot(e *lang.Expr) value.Value {
	v := ev.evalKind(e, RootScope, nil)
	if f, ok := v.(value.Flushed); ok {
		v = f.Inner
	}
	ev.commit(RootScope, e.ID, v)
	return v
}

// eval computes the current value of e within scope and env, commits
// it to the expression's slot, and returns it. Skip and Flushed flow
// through like any other value; individual cases peel them off where
// the semantics require it.
func (ev *evaluator) eval(e *lang.Expr, scope ScopeId, env *evalEnv) value.Value {
	v := ev.evalKind(e, scope, env)
	ev.commit(scope, e.ID, v)
	return v
}

func (ev *evaluator) evalKind(e *lang.Expr, scope ScopeId, env *evalEnv) value.Value {
	switch k := e.Kind.(type) {
	case lang.LiteralExpr:
		return k.Value

	case lang.VariableExpr:
		return ev.evalVariable(k, scope, env)

	case lang.PathExpr:
		return ev.evalPath(k, scope, env)

	case lang.ObjectExpr:
		return ev.evalObject(k, scope, env)

	case lang.ListExpr:
		return ev.evalListLiteral(e, k, scope, env)

	case lang.CallExpr:
		return ev.evalCall(k, scope, env)

	case lang.PipeExpr:
		return ev.evalPipe(k, scope, env)

	case lang.LatestExpr:
		return ev.evalLatest(e, k, scope, env)

	case lang.HoldExpr:
		return ev.evalHold(e, k, scope, env)

	case lang.ThenExpr:
		return ev.evalThen(k, scope, env)

	case lang.WhenExpr:
		return ev.evalWhen(e, k, scope, env)

	case lang.WhileExpr:
		return ev.evalWhile(e, k, scope, env)

	case lang.LinkExpr:
		return ev.evalLinkRead(e, k, scope)

	case lang.BindExpr:
		return ev.evalBind(k, scope, env)

	case lang.FlushExpr:
		return ev.evalFlush(k, scope, env)

	case lang.BlockExpr:
		return ev.evalBlock(k, scope, env)

	case lang.ListMapExpr:
		return ev.evalListMap(e, k, scope, env)

	case lang.ListAppendExpr:
		return ev.evalListAppend(e, k, scope, env)

	case lang.ListRemoveExpr:
		return ev.evalListRemove(e, k, scope, env)

	case lang.ListClearExpr:
		return ev.evalListClear(e, k, scope, env)

	case lang.ListRetainExpr:
		return ev.evalListRetain(e, k, scope, env)

	default:
		panic(fmt.Sprintf("engine: unhandled expression kind %T", e.Kind))
	}
}

func (ev *evaluator) evalVariable(k lang.VariableExpr, scope ScopeId, env *evalEnv) value.Value {
	if v, ok := env.lookup(k.Name); ok {
		return v
	}
	// Top-level binding reference. Reads resolve against the binding's
	// last committed value, so a forward reference sees the previous
	// wave's result and the dependency settles on a later pass.
	if slot, ok := ev.eng.rootSlotByName(k.Name); ok {
		ev.recordRead(slot)
		if node, ok := ev.eng.slots.Get(slot); ok {
			v, _ := node.Read()
			return v
		}
		return value.Skip{}
	}
	return value.Skip{}
}

func (ev *evaluator) evalPath(k lang.PathExpr, scope ScopeId, env *evalEnv) value.Value {
	base := ev.eval(k.Base, scope, env)
	return value.GetField(base, k.Field)
}

func (ev *evaluator) evalObject(k lang.ObjectExpr, scope ScopeId, env *evalEnv) value.Value {
	fields := make(map[string]value.Value, len(k.Fields))
	for _, f := range k.Fields {
		v := ev.eval(f.Expr, scope, env)
		if value.IsFlushed(v) {
			return v
		}
		if value.IsSkip(v) {
			return value.Skip{}
		}
		fields[f.Name] = v
	}
	return value.NewObject(fields)
}

func (ev *evaluator) evalCall(k lang.CallExpr, scope ScopeId, env *evalEnv) value.Value {
	args := make([]value.Value, 0, len(k.Args))
	for _, a := range k.Args {
		args = append(args, ev.eval(a, scope, env))
	}
	return applyBuiltin(k.Name, args)
}

func (ev *evaluator) evalPipe(k lang.PipeExpr, scope ScopeId, env *evalEnv) value.Value {
	in := ev.eval(k.Input, scope, env)
	args := make([]value.Value, 0, len(k.Args)+1)
	args = append(args, in)
	for _, a := range k.Args {
		args = append(args, ev.eval(a, scope, env))
	}
	return applyBuiltin(k.Method, args)
}

// evalLatest merges N inputs into one stream. When several inputs
// change within the same wave, the lowest input index wins.
func (ev *evaluator) evalLatest(e *lang.Expr, k lang.LatestExpr, scope ScopeId, env *evalEnv) value.Value {
	key := SlotKey{Scope: scope, Expr: e.ID}
	cell := ev.eng.latestCell(key, len(k.Inputs))

	winner := -1
	for i, in := range k.Inputs {
		v := ev.eval(in, scope, env)
		if value.IsFlushed(v) {
			return v
		}
		m := &cell.memo[i]
		if value.IsSkip(v) {
			if m.seen {
				m.idle = true
			}
			continue
		}
		if !m.seen || m.idle || !value.Equal(m.last, v) {
			m.seen = true
			m.idle = false
			m.last = v
			m.changed = ev.eng.wave
			if winner < 0 {
				winner = i
			}
		}
	}
	if winner >= 0 {
		return cell.memo[winner].last
	}
	// No fresh event this wave: hold the last emitted value, preferring
	// the most recently changed input.
	best := -1
	for i := range cell.memo {
		m := &cell.memo[i]
		if !m.seen {
			continue
		}
		if best < 0 || m.changed > cell.memo[best].changed {
			best = i
		}
	}
	if best < 0 {
		return value.Skip{}
	}
	return cell.memo[best].last
}

// evalHold runs one stateful accumulator. State commits synchronously
// within the wave under the cell's permit: while a body evaluation is
// in flight, re-entrant reads observe the committed state rather than
// racing the pending write.
func (ev *evaluator) evalHold(e *lang.Expr, k lang.HoldExpr, scope ScopeId, env *evalEnv) value.Value {
	key := SlotKey{Scope: scope, Expr: e.ID}
	ev.recordRead(key)
	cell := ev.eng.holdCell(key)

	if !cell.initialized {
		init := ev.eval(k.Initial, scope, env)
		if value.IsFlushed(init) {
			return init
		}
		if !value.IsSkip(init) {
			cell.state = init
			cell.tickBase = init
			cell.initialized = true
			ev.eng.markChanged(key)
		} else {
			return value.Skip{}
		}
	}

	if cell.permit || cell.lastWave == ev.eng.wave {
		// The body is not re-run, but its sources still belong to this
		// unit's read-set: the per-pass rebuild would otherwise drop the
		// body's links and later events would never reach this hold.
		for r := range cell.bodyReads {
			ev.recordRead(r)
		}
		return cell.state
	}
	cell.lastWave = ev.eng.wave
	cell.permit = true
	defer func() { cell.permit = false }()

	// Context for out-of-band re-evaluation of holds living in item
	// scopes (shared event sources fire without a collection diff).
	cell.scope = scope
	cell.expr = e
	cell.env = env
	if env != nil {
		cell.owner = env.owner
	}

	base := cell.state
	if ev.eng.unserializedHolds {
		base = cell.tickBase
	}
	reads := make(map[SlotKey]struct{})
	ev.captures = append(ev.captures, reads)
	body := ev.eval(k.Body, scope, env.extend(k.StateName, base))
	ev.captures = ev.captures[:len(ev.captures)-1]
	cell.bodyReads = reads
	if value.IsFlushed(body) {
		return body
	}
	if !value.IsSkip(body) && !value.Equal(cell.state, body) {
		cell.state = body
		ev.eng.markChanged(key)
		ev.eng.noteHoldCommit(key)
	}
	return cell.state
}

func (ev *evaluator) evalThen(k lang.ThenExpr, scope ScopeId, env *evalEnv) value.Value {
	in := ev.eval(k.Input, scope, env)
	if value.IsFlushed(in) {
		return in
	}
	if value.IsSkip(in) {
		return value.Skip{}
	}
	return ev.eval(k.Body, scope, env.extend("it", in))
}

// evalWhen routes discrete events: one input event produces at most
// one output event, chosen by the first matching arm. A non-matching
// event with no wildcard arm raises a recoverable diagnostic and the
// event is dropped.
func (ev *evaluator) evalWhen(e *lang.Expr, k lang.WhenExpr, scope ScopeId, env *evalEnv) value.Value {
	in := ev.eval(k.Input, scope, env)
	if value.IsFlushed(in) {
		return in
	}
	if value.IsSkip(in) {
		return value.Skip{}
	}
	for _, arm := range k.Arms {
		binds, ok := lang.Matches(arm.Pattern, in)
		if !ok {
			continue
		}
		armEnv := env
		for name, v := range binds {
			armEnv = armEnv.extend(name, v)
		}
		return ev.eval(arm.Body, scope, armEnv)
	}
	ev.eng.report(newNonExhaustiveError(SlotKey{Scope: scope, Expr: e.ID}, ev.eng.clock.CurrentTick(), value.String(in)))
	return value.Skip{}
}

// evalWhile routes a continuous value: the matching arm's body streams
// until the input changes to a different arm, at which point the old
// arm stops producing.
func (ev *evaluator) evalWhile(e *lang.Expr, k lang.WhileExpr, scope ScopeId, env *evalEnv) value.Value {
	key := SlotKey{Scope: scope, Expr: e.ID}
	cell := ev.eng.whileCell(key)

	in := ev.eval(k.Input, scope, env)
	if value.IsFlushed(in) {
		return in
	}
	if !value.IsSkip(in) {
		matched := -1
		var binds map[string]value.Value
		for i, arm := range k.Arms {
			if b, ok := lang.Matches(arm.Pattern, in); ok {
				matched = i
				binds = b
				break
			}
		}
		if matched < 0 {
			ev.eng.report(newNonExhaustiveError(key, ev.eng.clock.CurrentTick(), value.String(in)))
			return value.Skip{}
		}
		if matched != cell.armIndex {
			cell.armIndex = matched
			ev.eng.markChanged(key)
		}
		armEnv := env
		for name, v := range binds {
			armEnv = armEnv.extend(name, v)
		}
		return ev.eval(k.Arms[matched].Body, scope, armEnv)
	}
	if cell.armIndex < 0 {
		return value.Skip{}
	}
	return ev.eval(k.Arms[cell.armIndex].Body, scope, env)
}

func (ev *evaluator) evalLinkRead(e *lang.Expr, k lang.LinkExpr, scope ScopeId) value.Value {
	key := SlotKey{Scope: scope, Expr: e.ID}
	ev.recordRead(key)
	cell := ev.eng.linkCell(key, k.Alias)
	return cell.read()
}

// evalBind connects a producer to a late-binding cell and passes the
// produced value through unchanged. The cell's bound value refreshes
// every wave the bind is evaluated.
func (ev *evaluator) evalBind(k lang.BindExpr, scope ScopeId, env *evalEnv) value.Value {
	in := ev.eval(k.Input, scope, env)
	slot, ok := ev.resolveLinkSlot(k.Link, scope, env)
	if !ok {
		return in
	}
	cell := ev.eng.linkCellAt(slot)
	if cell == nil {
		return in
	}
	if !cell.bound || !valueEqualOrNil(cell.boundVal, in) {
		cell.bound = true
		cell.boundVal = in
		ev.eng.markChanged(slot)
	}
	return in
}

// resolveLinkSlot walks variable indirection down to the link
// expression being bound.
func (ev *evaluator) resolveLinkSlot(e *lang.Expr, scope ScopeId, env *evalEnv) (SlotKey, bool) {
	switch k := e.Kind.(type) {
	case lang.LinkExpr:
		key := SlotKey{Scope: scope, Expr: e.ID}
		ev.eng.linkCell(key, k.Alias)
		return key, true
	case lang.VariableExpr:
		if b, ok := ev.eng.rootBindingByName(k.Name); ok {
			return ev.resolveLinkSlot(b.Expr, RootScope, nil)
		}
	}
	return SlotKey{}, false
}

func (ev *evaluator) evalFlush(k lang.FlushExpr, scope ScopeId, env *evalEnv) value.Value {
	in := ev.eval(k.Input, scope, env)
	if value.IsSkip(in) {
		return value.Skip{}
	}
	if value.IsFlushed(in) {
		return in
	}
	return value.Flushed{Inner: in}
}

// evalBlock evaluates let-bindings in order, then the output. A
// flushed marker reaching a binding boundary is unwrapped there: the
// inner value binds and evaluation of the remaining bindings stops
// fail-fast, with the block result being the marker's inner value.
func (ev *evaluator) evalBlock(k lang.BlockExpr, scope ScopeId, env *evalEnv) value.Value {
	cur := env
	for _, b := range k.Bindings {
		v := ev.eval(b.Expr, scope, cur)
		if f, ok := v.(value.Flushed); ok {
			return f.Inner
		}
		cur = cur.extend(b.Name, v)
	}
	out := ev.eval(k.Output, scope, cur)
	if f, ok := out.(value.Flushed); ok {
		return f.Inner
	}
	return out
}

// evalListLiteral materializes a static list literal as a collection
// cell. Item keys allocate once at the expression's site; later waves
// update items in place when their expressions change.
func (ev *evaluator) evalListLiteral(e *lang.Expr, k lang.ListExpr, scope ScopeId, env *evalEnv) value.Value {
	key := SlotKey{Scope: scope, Expr: e.ID}
	ev.recordRead(key)
	coll, created := ev.eng.collectionCell(key)
	st := ev.eng.listLiteralState(key)

	if created {
		for _, item := range k.Items {
			v := ev.eval(item, scope, env)
			ik, d := coll.Append(v)
			st.keys = append(st.keys, ik)
			ev.eng.emitDiffs(key, []Diff{d})
		}
		ev.eng.markChanged(key)
	} else {
		for i, item := range k.Items {
			v := ev.eval(item, scope, env)
			if i < len(st.keys) {
				if d, changed := coll.Update(st.keys[i], v); changed {
					ev.eng.markChanged(key)
					ev.eng.emitDiffs(key, []Diff{d})
				}
			}
		}
	}
	return coll.Snapshot()
}

// evalListMap derives an identity-preserving transformed collection.
// Source diffs since the last wave translate one by one; each
// translated diff costs one template evaluation, independent of
// collection size.
func (ev *evaluator) evalListMap(e *lang.Expr, k lang.ListMapExpr, scope ScopeId, env *evalEnv) value.Value {
	srcSlot, ok := ev.resolveCollectionSlot(k.List, scope, env)
	if !ok {
		ev.eval(k.List, scope, env)
		srcSlot, ok = ev.resolveCollectionSlot(k.List, scope, env)
		if !ok {
			return value.Skip{}
		}
	}
	ev.recordRead(srcSlot)
	src := ev.eng.collectionCellAt(srcSlot)
	if src == nil {
		return value.Skip{}
	}

	key := SlotKey{Scope: scope, Expr: e.ID}
	ev.recordRead(key)
	st := ev.eng.listMapState(key, src)

	diffs := src.DiffsSince(st.lastSeen)
	st.lastSeen = src.Version()

	transform := func(ik value.ItemKey, v value.Value) value.Value {
		itemScope := ev.eng.itemScope(scope, e.ID, ik)
		itemEnv := env.withOwner(&itemOwner{mapSlot: key, key: ik}).extend(k.ItemName, v)
		return ev.eval(k.Template, itemScope, itemEnv)
	}
	st.transform = transform

	for _, d := range diffs {
		if d.Kind == DiffRemove {
			ev.eng.scheduleItemFinalization(scope, e.ID, d.Key)
		}
		out, flushed := st.view.Apply(d, transform)
		if flushed != nil {
			return flushed
		}
		if len(out) > 0 {
			ev.eng.markChanged(key)
			ev.eng.emitDiffs(key, out)
		}
	}
	return st.view.Out().Snapshot()
}

// evalListRetain derives an identity-preserving filtered collection.
func (ev *evaluator) evalListRetain(e *lang.Expr, k lang.ListRetainExpr, scope ScopeId, env *evalEnv) value.Value {
	srcSlot, ok := ev.resolveCollectionSlot(k.List, scope, env)
	if !ok {
		ev.eval(k.List, scope, env)
		srcSlot, ok = ev.resolveCollectionSlot(k.List, scope, env)
		if !ok {
			return value.Skip{}
		}
	}
	ev.recordRead(srcSlot)
	src := ev.eng.collectionCellAt(srcSlot)
	if src == nil {
		return value.Skip{}
	}

	key := SlotKey{Scope: scope, Expr: e.ID}
	ev.recordRead(key)
	st := ev.eng.listRetainState(key, src)

	diffs := src.DiffsSince(st.lastSeen)
	st.lastSeen = src.Version()

	pred := func(ik value.ItemKey, v value.Value) bool {
		itemScope := ev.eng.itemScope(scope, e.ID, ik)
		itemEnv := env.withOwner(&itemOwner{mapSlot: key, key: ik}).extend(k.ItemName, v)
		res := ev.eval(k.Predicate, itemScope, itemEnv)
		b, ok := res.(value.Bool)
		return ok && bool(b)
	}
	st.pred = pred

	for _, d := range diffs {
		if d.Kind == DiffRemove {
			ev.eng.scheduleItemFinalization(scope, e.ID, d.Key)
		}
		out := st.view.Apply(d, pred)
		if len(out) > 0 {
			ev.eng.markChanged(key)
			ev.eng.emitDiffs(key, out)
		}
	}
	return st.view.Out().Snapshot()
}

// evalListAppend appends to the target collection when the item
// expression emits, passing the snapshot through. A mutation site
// fires at most once per wave: later settling passes still see the
// event but must not apply it again.
func (ev *evaluator) evalListAppend(e *lang.Expr, k lang.ListAppendExpr, scope ScopeId, env *evalEnv) value.Value {
	slot, src := ev.mutableCollection(k.List, scope, env)
	if src == nil {
		return value.Skip{}
	}
	item := ev.eval(k.Item, scope, env)
	if value.IsFlushed(item) {
		return item
	}
	if !value.IsSkip(item) && ev.eng.armMutation(SlotKey{Scope: scope, Expr: e.ID}) {
		_, d := src.Append(item)
		ev.eng.markChanged(slot)
		ev.eng.emitDiffs(slot, []Diff{d})
	}
	return src.Snapshot()
}

func (ev *evaluator) evalListRemove(e *lang.Expr, k lang.ListRemoveExpr, scope ScopeId, env *evalEnv) value.Value {
	slot, src := ev.mutableCollection(k.List, scope, env)
	if src == nil {
		return value.Skip{}
	}
	keyVal := ev.eval(k.Key, scope, env)
	if value.IsFlushed(keyVal) {
		return keyVal
	}
	// Keys arrive as Key values from collection reads, and as plain
	// integers from external events and the replay log (the canonical
	// encoding renders keys as integers).
	ik, ok := asItemKey(keyVal)
	if ok && ev.eng.armMutation(SlotKey{Scope: scope, Expr: e.ID}) {
		if d, removed := src.Remove(ik); removed {
			ev.eng.markChanged(slot)
			ev.eng.emitDiffs(slot, []Diff{d})
		}
	}
	return src.Snapshot()
}

func (ev *evaluator) evalListClear(e *lang.Expr, k lang.ListClearExpr, scope ScopeId, env *evalEnv) value.Value {
	slot, src := ev.mutableCollection(k.List, scope, env)
	if src == nil {
		return value.Skip{}
	}
	trig := ev.eval(k.Trigger, scope, env)
	if value.IsFlushed(trig) {
		return trig
	}
	if !value.IsSkip(trig) && src.Len() > 0 && ev.eng.armMutation(SlotKey{Scope: scope, Expr: e.ID}) {
		d := src.Clear()
		ev.eng.markChanged(slot)
		ev.eng.emitDiffs(slot, []Diff{d})
	}
	return src.Snapshot()
}

func (ev *evaluator) mutableCollection(list *lang.Expr, scope ScopeId, env *evalEnv) (SlotKey, *Collection) {
	slot, ok := ev.resolveCollectionSlot(list, scope, env)
	if !ok {
		ev.eval(list, scope, env)
		slot, ok = ev.resolveCollectionSlot(list, scope, env)
		if !ok {
			return SlotKey{}, nil
		}
	}
	ev.recordRead(slot)
	return slot, ev.eng.collectionCellAt(slot)
}

// resolveCollectionSlot walks variable and mutation indirection down
// to the collection cell that owns item identity.
func (ev *evaluator) resolveCollectionSlot(e *lang.Expr, scope ScopeId, env *evalEnv) (SlotKey, bool) {
	switch k := e.Kind.(type) {
	case lang.ListExpr:
		key := SlotKey{Scope: scope, Expr: e.ID}
		if ev.eng.collectionCellAt(key) != nil {
			return key, true
		}
		return SlotKey{}, false
	case lang.ListAppendExpr:
		return ev.resolveCollectionSlot(k.List, scope, env)
	case lang.ListRemoveExpr:
		return ev.resolveCollectionSlot(k.List, scope, env)
	case lang.ListClearExpr:
		return ev.resolveCollectionSlot(k.List, scope, env)
	case lang.ListMapExpr:
		key := SlotKey{Scope: scope, Expr: e.ID}
		if _, ok := ev.eng.mapStates[key]; ok {
			return key, true
		}
		return SlotKey{}, false
	case lang.ListRetainExpr:
		key := SlotKey{Scope: scope, Expr: e.ID}
		if _, ok := ev.eng.retainStates[key]; ok {
			return key, true
		}
		return SlotKey{}, false
	case lang.VariableExpr:
		if b, ok := ev.eng.rootBindingByName(k.Name); ok {
			return ev.resolveCollectionSlot(b.Expr, RootScope, nil)
		}
	case lang.HoldExpr:
		return SlotKey{}, false
	}
	return SlotKey{}, false
}

func asItemKey(v value.Value) (value.ItemKey, bool) {
	switch kv := v.(type) {
	case value.Key:
		return value.ItemKey(kv), true
	case value.Int:
		if kv >= 0 {
			return value.ItemKey(kv), true
		}
	}
	return 0, false
}

func valueEqualOrNil(a, b value.Value) bool {
	if a == nil || b == nil {
		return false
	}
	return value.Equal(a, b)
}
