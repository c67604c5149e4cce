package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/value"
)

func isEven(_ value.ItemKey, v value.Value) bool {
	n, ok := v.(value.Int)
	return ok && n%2 == 0
}

func double(_ value.ItemKey, v value.Value) value.Value {
	n, ok := v.(value.Int)
	if !ok {
		return value.Skip{}
	}
	return n * 2
}

// seedFiltered replays a replace of the source's current items through
// the view, the way an owning expression seeds a fresh view.
func seedFiltered(v *FilteredView, pred func(value.ItemKey, value.Value) bool) {
	v.Apply(Diff{Kind: DiffReplace, Items: v.source.Snapshot().Items()}, pred)
}

func TestFilteredView_InsertRunsPredicateOnce(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewFilteredView(src, NewCollection(RootSlot(2)))

	calls := 0
	pred := func(k value.ItemKey, v value.Value) bool {
		calls++
		return isEven(k, v)
	}

	_, d := src.Append(value.Int(2))
	out := view.Apply(d, pred)

	assert.Equal(t, 1, calls)
	require.Len(t, out, 1)
	assert.Equal(t, DiffInsert, out[0].Kind)
	assert.Equal(t, d.Key, out[0].Key, "derived item keeps upstream identity")
}

func TestFilteredView_PreservesUpstreamOrder(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewFilteredView(src, NewCollection(RootSlot(2)))

	for _, n := range []int64{1, 2, 3, 4, 5, 6} {
		_, d := src.Append(value.Int(n))
		view.Apply(d, isEven)
	}

	assert.Equal(t, []value.ItemKey{1, 3, 5}, view.Out().Keys())
}

func TestFilteredView_UpdateFlipsMembership(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewFilteredView(src, NewCollection(RootSlot(2)))
	for _, n := range []int64{2, 3, 4} {
		_, d := src.Append(value.Int(n))
		view.Apply(d, isEven)
	}
	require.Equal(t, []value.ItemKey{0, 2}, view.Out().Keys())

	// 3 becomes even: synthetic insert between its neighbours.
	d, ok := src.Update(value.ItemKey(1), value.Int(6))
	require.True(t, ok)
	out := view.Apply(d, isEven)
	require.Len(t, out, 1)
	assert.Equal(t, DiffInsert, out[0].Kind)
	assert.Equal(t, []value.ItemKey{0, 1, 2}, view.Out().Keys())

	// 6 becomes odd again: synthetic remove.
	d, ok = src.Update(value.ItemKey(1), value.Int(7))
	require.True(t, ok)
	out = view.Apply(d, isEven)
	require.Len(t, out, 1)
	assert.Equal(t, DiffRemove, out[0].Kind)
	assert.Equal(t, []value.ItemKey{0, 2}, view.Out().Keys())
}

func TestFilteredView_RemoveExcludedIsNoop(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewFilteredView(src, NewCollection(RootSlot(2)))
	_, d := src.Append(value.Int(3))
	view.Apply(d, isEven)

	rd, ok := src.Remove(value.ItemKey(0))
	require.True(t, ok)
	out := view.Apply(rd, isEven)

	assert.Empty(t, out)
	assert.Equal(t, 0, view.Out().Ops(), "excluded removal touches nothing downstream")
}

func TestFilteredView_ConstantWorkPerChange(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewFilteredView(src, NewCollection(RootSlot(2)))

	for i := int64(0); i < 100; i++ {
		_, d := src.Append(value.Int(i))
		view.Apply(d, isEven)
	}
	view.Out().ResetOps()

	calls := 0
	pred := func(k value.ItemKey, v value.Value) bool {
		calls++
		return isEven(k, v)
	}
	_, d := src.Append(value.Int(200))
	view.Apply(d, pred)

	assert.Equal(t, 1, calls, "one predicate run for one upstream change")
	assert.Equal(t, 1, view.Out().Ops(), "one downstream mutation for one upstream change")
}

func TestMappedView_SharesUpstreamKeys(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewMappedView(src, NewCollection(RootSlot(2)))

	for _, n := range []int64{1, 2, 3} {
		_, d := src.Append(value.Int(n))
		_, flushed := view.Apply(d, double)
		require.Nil(t, flushed)
	}

	assert.Equal(t, src.Keys(), view.Out().Keys())
	got, _ := view.Out().Get(value.ItemKey(1))
	assert.Equal(t, value.Int(4), got)
}

func TestMappedView_UpdateTransformsInPlace(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewMappedView(src, NewCollection(RootSlot(2)))
	_, d := src.Append(value.Int(5))
	view.Apply(d, double)

	ud, ok := src.Update(value.ItemKey(0), value.Int(8))
	require.True(t, ok)
	diffs, flushed := view.Apply(ud, double)

	require.Nil(t, flushed)
	require.Len(t, diffs, 1)
	assert.Equal(t, DiffUpdate, diffs[0].Kind)
	got, _ := view.Out().Get(value.ItemKey(0))
	assert.Equal(t, value.Int(16), got)
}

func TestMappedView_FlushedTransformAbortsPass(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewMappedView(src, NewCollection(RootSlot(2)))

	items := []value.ListItem{
		{Key: 0, Value: value.Int(1)},
		{Key: 1, Value: value.Int(2)},
		{Key: 2, Value: value.Int(3)},
	}
	calls := 0
	failing := func(k value.ItemKey, v value.Value) value.Value {
		calls++
		if k == 1 {
			return value.Flushed{Inner: value.Text("bad item")}
		}
		return double(k, v)
	}

	diffs, flushed := view.Apply(Diff{Kind: DiffReplace, Items: items}, failing)

	assert.Nil(t, diffs, "nothing applies on fail-fast")
	require.NotNil(t, flushed)
	assert.True(t, value.IsFlushed(flushed))
	assert.Equal(t, 2, calls, "items after the failure are not evaluated")
	assert.Equal(t, 0, view.Out().Len())
}

func TestMappedView_RemoveForwardsOnlyLiveItems(t *testing.T) {
	src := NewCollection(RootSlot(1))
	view := NewMappedView(src, NewCollection(RootSlot(2)))
	_, d := src.Append(value.Int(1))
	view.Apply(d, double)

	rd, ok := src.Remove(value.ItemKey(0))
	require.True(t, ok)
	diffs, flushed := view.Apply(rd, double)
	require.Nil(t, flushed)
	require.Len(t, diffs, 1)
	assert.Equal(t, DiffRemove, diffs[0].Kind)
	assert.False(t, view.Contains(value.ItemKey(0)))

	// A second removal of the same key forwards nothing.
	diffs, flushed = view.Apply(rd, double)
	assert.Nil(t, flushed)
	assert.Empty(t, diffs)
}
