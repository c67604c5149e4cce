package engine

import (
	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

// itemOwner identifies the collection item a scope was instantiated
// for: which mapping expression produced it and under which item key.
type itemOwner struct {
	mapSlot SlotKey
	key     value.ItemKey
}

// holdCell is the state cell owned by one stateful accumulator.
//
// The permit is the single-slot serialization token: the body may only
// be evaluated once until the state write completes. Re-entrant
// evaluation attempts observe the committed state instead of running
// the body against a stale read.
type holdCell struct {
	state       value.Value
	initialized bool
	permit      bool

	// lastWave is the wave the body last ran in. A body runs once per
	// wave; later evaluations within the wave read committed state.
	lastWave uint64

	// tickBase is the state at the start of the current tick. Only the
	// unserialized diagnosis mode reads it (see WithUnserializedHolds).
	tickBase value.Value

	// bodyReads is the read-set of the body's last run. Gated returns
	// replay it into the enclosing unit's read-set.
	bodyReads map[SlotKey]struct{}

	// Re-evaluation context for holds living in item scopes: the body
	// must be re-run when a shared event source fires even though no
	// collection diff touched the item.
	scope ScopeId
	expr  *lang.Expr
	env   *evalEnv
	owner *itemOwner
}

// linkCell is one late-binding cell. It starts unbound; reading an
// unbound cell yields Skip, not an error. Any number of readers may
// re-resolve it each tick - no subscription bookkeeping exists, which
// is what keeps dynamically-created consumers safe.
type linkCell struct {
	alias string

	// Event injected for the current wave, cleared when the wave ends.
	event    value.Value
	hasEvent bool

	// Bound producer value, refreshed by its Bind expression each wave.
	bound    bool
	boundVal value.Value
}

// read resolves the cell for the current wave: injected event first,
// then the bound producer, else Skip.
func (c *linkCell) read() value.Value {
	if c.hasEvent {
		return c.event
	}
	if c.bound {
		return c.boundVal
	}
	return value.Skip{}
}

func (c *linkCell) clearEvent() {
	c.event = nil
	c.hasEvent = false
}

// latestCell remembers, per merge input, the last seen value and when
// it last changed.
type latestCell struct {
	memo []latestMemo
}

type latestMemo struct {
	seen bool
	last value.Value
	// idle is set when the input reads Skip, so the next emission
	// registers even when it repeats the previous value.
	idle bool
	// changed is the wave the input last moved in. Same-wave ties
	// resolve to the lowest input index.
	changed uint64
}

// whileCell tracks which arm of a continuous transform is streaming.
type whileCell struct {
	armIndex int // -1 = no arm matched yet
}

// listMapState tracks a derived mapped collection and its catch-up
// bookmark into the source's diff history.
type listMapState struct {
	view     *MappedView
	lastSeen uint64

	// transform is the latest template closure, kept for out-of-band
	// single-item refreshes after nested hold commits.
	transform func(value.ItemKey, value.Value) value.Value
}

// listRetainState tracks a derived filtered collection and its
// catch-up bookmark.
type listRetainState struct {
	view     *FilteredView
	lastSeen uint64

	// pred is the latest predicate closure, kept for out-of-band
	// single-item refreshes after nested hold commits.
	pred func(value.ItemKey, value.Value) bool
}

// listLiteralState remembers the item keys allocated for a static list
// literal so re-evaluation updates rather than re-inserts.
type listLiteralState struct {
	keys []value.ItemKey
}
