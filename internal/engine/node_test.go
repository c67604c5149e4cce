package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/value"
)

func TestNode_Commit_BumpsVersionOnChange(t *testing.T) {
	n := newNode(RootSlot(1))

	require.True(t, n.commit(value.Int(1), Cause{Kind: CauseInitial}))
	v, ver := n.Read()
	assert.Equal(t, value.Int(1), v)
	assert.Equal(t, uint64(1), ver)

	assert.False(t, n.commit(value.Int(1), Cause{Kind: CauseUpstream}),
		"equal value does not re-commit")
	assert.Equal(t, uint64(1), n.Version())
	assert.Equal(t, CauseInitial, n.Cause().Kind, "suppressed commit keeps the prior cause")

	require.True(t, n.commit(value.Int(2), Cause{Kind: CauseUpstream}))
	assert.Equal(t, uint64(2), n.Version())
	assert.Equal(t, CauseUpstream, n.Cause().Kind)
}

func TestNode_Subscription_PullAdvancesBookmark(t *testing.T) {
	n := newNode(RootSlot(1))
	sub := n.Subscribe()

	_, ok := sub.Pull()
	assert.False(t, ok, "nothing to pull before the first commit")

	n.commit(value.Text("x"), Cause{Kind: CauseInput})
	assert.True(t, sub.Changed())

	v, ok := sub.Pull()
	require.True(t, ok)
	assert.Equal(t, value.Text("x"), v)

	_, ok = sub.Pull()
	assert.False(t, ok, "second pull without a new commit yields nothing")
}

func TestNode_Subscription_NotificationsCoalesce(t *testing.T) {
	n := newNode(RootSlot(1))
	sub := n.Subscribe()

	n.commit(value.Int(1), Cause{})
	n.commit(value.Int(2), Cause{})
	n.commit(value.Int(3), Cause{})

	<-sub.Wait()
	select {
	case <-sub.Wait():
		t.Fatal("burst of commits must coalesce into one pending notification")
	default:
	}

	// The consumer reads current state, not a history.
	v, ok := sub.Pull()
	require.True(t, ok)
	assert.Equal(t, value.Int(3), v)
}

func TestNode_Subscription_ClosePrunesOnNextNotify(t *testing.T) {
	n := newNode(RootSlot(1))
	sub := n.Subscribe()
	keep := n.Subscribe()
	require.Equal(t, 2, n.subscriberCount())

	sub.Close()
	n.commit(value.Int(1), Cause{})

	assert.Equal(t, 1, n.subscriberCount())
	v, ok := keep.Pull()
	require.True(t, ok)
	assert.Equal(t, value.Int(1), v)
}

func TestSlotStore_DropRemovesNodes(t *testing.T) {
	s := NewSlotStore()
	a := s.GetOrCreate(RootSlot(1))
	b := s.GetOrCreate(SlotKey{Scope: 5, Expr: 2})
	a.commit(value.Int(1), Cause{})
	b.commit(value.Int(2), Cause{})

	s.DropScope(ScopeId(5))

	_, ok := s.Get(SlotKey{Scope: 5, Expr: 2})
	assert.False(t, ok)
	_, ok = s.Get(RootSlot(1))
	assert.True(t, ok)
}

func TestClock_StampsOrderWithinAndAcrossTicks(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(1), c.NextTick())

	s0 := c.Next()
	s1 := c.Next()
	assert.True(t, s0.Before(s1))
	assert.Equal(t, uint32(0), s0.Seq)

	c.NextTick()
	s2 := c.Next()
	assert.True(t, s1.Before(s2), "a later tick orders after any earlier-tick stamp")
	assert.Equal(t, uint32(0), s2.Seq, "sequence resets each tick")
}

func TestClock_ResumeAt(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, uint64(41), c.CurrentTick())
	assert.Equal(t, uint64(42), c.NextTick())
}

func TestInputQueue_DrainPreservesArrivalOrder(t *testing.T) {
	q := newInputQueue()
	q.Enqueue(InputEvent{Port: "a"})
	q.Enqueue(InputEvent{Port: "b"})
	q.Enqueue(InputEvent{Port: "c"})

	batch := q.DrainBatch()
	require.Len(t, batch, 3)
	assert.Equal(t, "a", batch[0].Port)
	assert.Equal(t, int64(0), batch[0].Arrival)
	assert.Equal(t, "c", batch[2].Port)
	assert.Equal(t, int64(2), batch[2].Arrival)

	assert.Nil(t, q.DrainBatch())
}

func TestInputQueue_ArrivalOrderSurvivesDrain(t *testing.T) {
	q := newInputQueue()
	q.Enqueue(InputEvent{Port: "a"})
	q.DrainBatch()
	q.Enqueue(InputEvent{Port: "b"})

	batch := q.DrainBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, int64(1), batch[0].Arrival, "arrival numbering is run-global")
}

func TestInputQueue_Close(t *testing.T) {
	q := newInputQueue()
	require.True(t, q.Enqueue(InputEvent{Port: "a"}))
	q.Close()

	assert.False(t, q.Enqueue(InputEvent{Port: "b"}))
	assert.True(t, q.Closed())

	// Queued events survive close for the final drain.
	assert.Equal(t, 1, q.Len())

	_, open := <-q.Wait()
	assert.True(t, open, "pre-close signal is still consumable")
	_, open = <-q.Wait()
	assert.False(t, open, "signal channel is closed afterwards")
}
