package engine

import "github.com/weftlang/weft/internal/value"

// InspectReport is the per-slot view exposed to tooling: current
// value, version, the cause of the last change, and the most recent
// diagnostic attached to the slot.
type InspectReport struct {
	Slot       SlotKey
	Name       string
	Value      value.Value
	Version    uint64
	Cause      Cause
	Diagnostic *RuntimeError

	// HoldState is set when the slot is a stateful accumulator.
	HoldState value.Value

	// ItemKeys is set when the slot owns a collection.
	ItemKeys []value.ItemKey
}

// Inspect reports the state of one slot. Returns false when the slot
// has never been evaluated.
func (e *Engine) Inspect(key SlotKey) (InspectReport, bool) {
	node, ok := e.slots.Get(key)
	if !ok {
		return InspectReport{}, false
	}
	v, version := node.Read()
	rep := InspectReport{
		Slot:       key,
		Name:       e.rootNames[key],
		Value:      v,
		Version:    version,
		Cause:      node.Cause(),
		Diagnostic: e.lastDiag[key],
	}
	if c, ok := e.holds[key]; ok && c.initialized {
		rep.HoldState = c.state
	}
	if coll, ok := e.colls[key]; ok {
		rep.ItemKeys = coll.Keys()
	}
	return rep, true
}

// InspectAll reports every live slot in deterministic order.
func (e *Engine) InspectAll() []InspectReport {
	keys := e.slots.Keys()
	out := make([]InspectReport, 0, len(keys))
	for _, k := range keys {
		if rep, ok := e.Inspect(k); ok {
			out = append(out, rep)
		}
	}
	return out
}

// CollectionAt exposes the collection cell at key, if any. Tooling and
// tests use it for diff-history and op-count assertions.
func (e *Engine) CollectionAt(key SlotKey) (*Collection, bool) {
	c, ok := e.colls[key]
	return c, ok
}

// HoldStateAt exposes committed hold state at key, if any.
func (e *Engine) HoldStateAt(key SlotKey) (value.Value, bool) {
	c, ok := e.holds[key]
	if !ok || !c.initialized {
		return nil, false
	}
	return c.state, true
}
