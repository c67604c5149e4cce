package engine

import (
	"sort"

	"github.com/weftlang/weft/internal/value"
)

// Snapshot captures the durable state of a run: hold cells, collection
// contents plus their key counters, and the tick position. Link
// bindings are deliberately absent: they re-resolve from program
// structure on the first tick after restore.
type Snapshot struct {
	Tick        uint64
	Holds       []HoldSnapshot
	Collections []CollectionSnapshot
}

// HoldSnapshot is one hold cell's committed state.
type HoldSnapshot struct {
	Slot  SlotKey
	State value.Value
}

// CollectionSnapshot is one collection cell's items and counter. The
// counter is persisted so restored runs never reuse item keys.
type CollectionSnapshot struct {
	Slot    SlotKey
	Items   []value.ListItem
	NextKey uint64
}

// TakeSnapshot captures current durable state. Call between ticks.
func (e *Engine) TakeSnapshot() *Snapshot {
	s := &Snapshot{Tick: e.clock.CurrentTick()}

	holdKeys := make([]SlotKey, 0, len(e.holds))
	for k, c := range e.holds {
		if c.initialized {
			holdKeys = append(holdKeys, k)
		}
	}
	sort.Slice(holdKeys, func(i, j int) bool { return holdKeys[i].Less(holdKeys[j]) })
	for _, k := range holdKeys {
		s.Holds = append(s.Holds, HoldSnapshot{Slot: k, State: e.holds[k].state})
	}

	collKeys := make([]SlotKey, 0, len(e.colls))
	for k := range e.colls {
		// Derived collections rebuild from their source; only cells
		// that own identity persist.
		if _, derived := e.mapStates[k]; derived {
			continue
		}
		if _, derived := e.retainStates[k]; derived {
			continue
		}
		collKeys = append(collKeys, k)
	}
	sort.Slice(collKeys, func(i, j int) bool { return collKeys[i].Less(collKeys[j]) })
	for _, k := range collKeys {
		c := e.colls[k]
		s.Collections = append(s.Collections, CollectionSnapshot{
			Slot:    k,
			Items:   c.Snapshot().Items(),
			NextKey: c.NextCounter(),
		})
	}
	return s
}

// applyRestore installs the pending snapshot into cells before the
// first evaluation, so initial expressions see restored state instead
// of their declared initials.
func (e *Engine) applyRestore() {
	s := e.restore
	e.restore = nil
	cause := Cause{Kind: CauseRestore, Stamp: e.clock.Current()}

	for _, h := range s.Holds {
		c := e.holdCell(h.Slot)
		c.state = h.State
		c.tickBase = h.State
		c.initialized = true
		e.slots.GetOrCreate(h.Slot).commit(h.State, cause)
	}
	for _, cs := range s.Collections {
		c, _ := e.collectionCell(cs.Slot)
		c.Replace(cs.Items)
		c.RestoreCounter(cs.NextKey)
		st := e.listLiteralState(cs.Slot)
		for _, it := range cs.Items {
			st.keys = append(st.keys, it.Key)
		}
		e.slots.GetOrCreate(cs.Slot).commit(c.Snapshot(), cause)
	}
}
