package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

func TestScopeManager_ChildScope_DerivationIsPure(t *testing.T) {
	m := NewScopeManager()

	a, err := m.ChildScope(RootScope, lang.ExprId(5))
	require.NoError(t, err)
	b, err := m.ChildScope(RootScope, lang.ExprId(5))
	require.NoError(t, err)

	assert.Equal(t, a, b, "same parent and site re-derive the same scope")
	assert.True(t, m.Alive(a))
}

func TestScopeManager_ItemScope_KeyedByIdentity(t *testing.T) {
	m := NewScopeManager()

	s0, err := m.ItemScope(RootScope, lang.ExprId(3), value.ItemKey(0))
	require.NoError(t, err)
	s1, err := m.ItemScope(RootScope, lang.ExprId(3), value.ItemKey(1))
	require.NoError(t, err)

	assert.NotEqual(t, s0, s1)

	again, err := m.ItemScope(RootScope, lang.ExprId(3), value.ItemKey(0))
	require.NoError(t, err)
	assert.Equal(t, s0, again, "item key, not position, drives derivation")
}

func TestScopeManager_StaleParent(t *testing.T) {
	m := NewScopeManager()
	parent, err := m.ChildScope(RootScope, lang.ExprId(1))
	require.NoError(t, err)

	m.ScheduleFinalization(parent)
	m.FinalizePending()

	_, err = m.ChildScope(parent, lang.ExprId(2))
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))
}

func TestScopeManager_FinalizationIsDeferred(t *testing.T) {
	m := NewScopeManager()
	s, err := m.ItemScope(RootScope, lang.ExprId(1), value.ItemKey(0))
	require.NoError(t, err)

	m.ScheduleFinalization(s)
	assert.True(t, m.Alive(s), "scheduled scope stays addressable until the tick ends")
	assert.Equal(t, 1, m.PendingCount())

	freed := m.FinalizePending()
	assert.Contains(t, freed, s)
	assert.False(t, m.Alive(s))
	assert.Equal(t, 0, m.PendingCount())
}

func TestScopeManager_FinalizeFreesDescendants(t *testing.T) {
	m := NewScopeManager()
	parent, err := m.ItemScope(RootScope, lang.ExprId(1), value.ItemKey(0))
	require.NoError(t, err)
	child, err := m.ChildScope(parent, lang.ExprId(2))
	require.NoError(t, err)
	grandchild, err := m.ItemScope(child, lang.ExprId(3), value.ItemKey(4))
	require.NoError(t, err)

	m.ScheduleFinalization(parent)
	freed := m.FinalizePending()

	assert.ElementsMatch(t, []ScopeId{parent, child, grandchild}, freed)
	assert.False(t, m.Alive(child))
	assert.False(t, m.Alive(grandchild))
}

func TestScopeManager_ReCreationAfterFinalization(t *testing.T) {
	m := NewScopeManager()
	s, err := m.ItemScope(RootScope, lang.ExprId(1), value.ItemKey(0))
	require.NoError(t, err)
	m.ScheduleFinalization(s)
	m.FinalizePending()

	again, err := m.ItemScope(RootScope, lang.ExprId(1), value.ItemKey(0))
	require.NoError(t, err)
	assert.Equal(t, s, again, "a fully freed address may be re-derived")
	assert.True(t, m.Alive(again))
}

func TestScopeManager_RootScopeNeverFinalized(t *testing.T) {
	m := NewScopeManager()
	m.ScheduleFinalization(RootScope)
	assert.Equal(t, 0, m.PendingCount())
	assert.Empty(t, m.FinalizePending())
	assert.True(t, m.Alive(RootScope))
}

func TestSlotKey_StringRoundTrip(t *testing.T) {
	k := SlotKey{Scope: ScopeId(42), Expr: lang.ExprId(7)}
	parsed, err := ParseSlotKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseSlotKey("garbage")
	assert.Error(t, err)
}

func TestSlotKey_Less(t *testing.T) {
	a := SlotKey{Scope: 1, Expr: 9}
	b := SlotKey{Scope: 2, Expr: 1}
	c := SlotKey{Scope: 2, Expr: 5}

	assert.True(t, a.Less(b), "scope orders first")
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}
