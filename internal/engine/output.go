package engine

import (
	"errors"
	"sort"

	"github.com/weftlang/weft/internal/value"
)

// ErrSinkNotReady tells the flush phase to retain this tick's output
// and retry on the next tick. The engine never drops output on a slow
// consumer; it coalesces.
var ErrSinkNotReady = errors.New("engine: sink not ready")

// Sink receives the per-tick output batch. Emit runs on the tick loop
// goroutine, after all propagation and finalization for the tick.
type Sink interface {
	Emit(TickOutput) error
}

// TickOutput is one tick's externally visible changes in deterministic
// order: collection diffs in commit order, then scalar value changes
// in binding declaration order.
type TickOutput struct {
	Tick       uint64
	BatchToken string
	Events     []OutputEvent
}

// OutputEvent is one externally visible change. Diff is set for
// collection changes, Value for scalar changes.
type OutputEvent struct {
	Slot    SlotKey
	Name    string
	Value   value.Value
	Diff    *Diff
	Version uint64
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(TickOutput) error

func (f SinkFunc) Emit(out TickOutput) error {
	return f(out)
}

// emitDiffs records collection diffs in commit order for the flush
// phase.
func (e *Engine) emitDiffs(slot SlotKey, diffs []Diff) {
	name := e.rootNames[slot]
	for i := range diffs {
		d := diffs[i]
		e.tickOut = append(e.tickOut, OutputEvent{
			Slot:    slot,
			Name:    name,
			Diff:    &d,
			Version: d.Version,
		})
	}
}

// collectScalarOutputs appends value changes for top-level bindings
// whose node version advanced since the last flush. Collection-backed
// bindings are covered by their diffs instead.
func (e *Engine) collectScalarOutputs() {
	slots := make([]SlotKey, 0, len(e.rootNames))
	for slot := range e.rootNames {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Less(slots[j]) })

	for _, slot := range slots {
		if _, isColl := e.colls[slot]; isColl {
			continue
		}
		node, ok := e.slots.Get(slot)
		if !ok {
			continue
		}
		v, version := node.Read()
		if version <= e.flushed[slot] {
			continue
		}
		e.flushed[slot] = version
		if value.IsSkip(v) {
			continue
		}
		e.tickOut = append(e.tickOut, OutputEvent{
			Slot:    slot,
			Name:    e.rootNames[slot],
			Value:   v,
			Version: version,
		})
	}
}

// flushOutput hands accumulated output to the sink. On ErrSinkNotReady
// the batch is retained and retried next tick, merged ahead of newer
// events.
func (e *Engine) flushOutput(tick uint64, token string) error {
	if e.sink == nil {
		// Nothing consumes retained output without a sink; discarding
		// keeps input-free ticks idle.
		e.tickOut = e.tickOut[:0]
		return nil
	}
	e.pendingOut = append(e.pendingOut, e.tickOut...)
	e.tickOut = e.tickOut[:0]
	if len(e.pendingOut) == 0 {
		return nil
	}
	out := TickOutput{Tick: tick, BatchToken: token, Events: e.pendingOut}
	if err := e.sink.Emit(out); err != nil {
		return err
	}
	e.pendingOut = nil
	return nil
}
