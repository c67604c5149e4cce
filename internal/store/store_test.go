package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/value"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weft.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Open_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var version string
	err = s2.DB().QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestStore_AppendInput_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	events := []engine.InputEvent{
		{Port: "todo.add", Payload: value.Text("milk"), Arrival: 0, BatchToken: "batch-000002"},
		{Port: "todo.add", Payload: value.NewObject(map[string]value.Value{"qty": value.Int(2)}), Arrival: 1, BatchToken: "batch-000002"},
		{Port: "increment.press", Payload: value.Unit{}, Arrival: 2, BatchToken: "batch-000003"},
	}
	require.NoError(t, s.AppendInput(ctx, 2, events[0]))
	require.NoError(t, s.AppendInput(ctx, 2, events[1]))
	require.NoError(t, s.AppendInput(ctx, 3, events[2]))

	got, err := s.ReadInputs(ctx, -1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Tick)
	assert.Equal(t, "todo.add", got[0].Event.Port)
	assert.True(t, value.Equal(value.Text("milk"), got[0].Event.Payload))
	assert.True(t, value.Equal(events[1].Payload, got[1].Event.Payload))
	assert.True(t, value.Equal(value.Unit{}, got[2].Event.Payload))
	assert.Equal(t, "batch-000003", got[2].Event.BatchToken)

	tail, err := s.ReadInputs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(2), tail[0].Event.Arrival)
}

func TestStore_AppendInput_IdempotentOnSeq(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ev := engine.InputEvent{Port: "p", Payload: value.Int(1), Arrival: 0, BatchToken: "b"}
	require.NoError(t, s.AppendInput(ctx, 2, ev))
	require.NoError(t, s.AppendInput(ctx, 2, ev), "re-logging the same seq is a no-op")

	got, err := s.ReadInputs(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_MaxInputSeq(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	seq, err := s.MaxInputSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), seq)

	require.NoError(t, s.AppendInput(ctx, 2, engine.InputEvent{Port: "p", Payload: value.Unit{}, Arrival: 4}))
	seq, err = s.MaxInputSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
}

func TestStore_Snapshot_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap := &engine.Snapshot{
		Tick: 7,
		Holds: []engine.HoldSnapshot{
			{Slot: engine.RootSlot(6), State: value.Int(3)},
		},
		Collections: []engine.CollectionSnapshot{
			{
				Slot: engine.RootSlot(9),
				Items: []value.ListItem{
					{Key: 0, Value: value.Text("milk")},
					{Key: 2, Value: value.Text("eggs")},
				},
				NextKey: 3,
			},
		},
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LoadSnapshot(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got.Holds, 1)
	assert.Equal(t, engine.RootSlot(6), got.Holds[0].Slot)
	assert.True(t, value.Equal(value.Int(3), got.Holds[0].State))
	require.Len(t, got.Collections, 1)
	assert.Equal(t, uint64(3), got.Collections[0].NextKey)
	require.Len(t, got.Collections[0].Items, 2)
	assert.Equal(t, value.ItemKey(2), got.Collections[0].Items[1].Key)
	assert.True(t, value.Equal(value.Text("eggs"), got.Collections[0].Items[1].Value))
}

func TestStore_SaveSnapshot_ReplacesSameTick(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first := &engine.Snapshot{Tick: 5, Holds: []engine.HoldSnapshot{{Slot: engine.RootSlot(1), State: value.Int(1)}}}
	require.NoError(t, s.SaveSnapshot(ctx, first))

	second := &engine.Snapshot{Tick: 5, Holds: []engine.HoldSnapshot{{Slot: engine.RootSlot(1), State: value.Int(2)}}}
	require.NoError(t, s.SaveSnapshot(ctx, second))

	got, err := s.LoadSnapshot(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got.Holds, 1)
	assert.True(t, value.Equal(value.Int(2), got.Holds[0].State))
}

func TestStore_LoadLatestSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap, err := s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.SaveSnapshot(ctx, &engine.Snapshot{Tick: 3}))
	require.NoError(t, s.SaveSnapshot(ctx, &engine.Snapshot{Tick: 8}))

	snap, err = s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(8), snap.Tick)
}

func TestStore_PruneSnapshots(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, &engine.Snapshot{Tick: 3}))
	require.NoError(t, s.SaveSnapshot(ctx, &engine.Snapshot{Tick: 8}))
	require.NoError(t, s.PruneSnapshots(ctx, 8))

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count))
	assert.Equal(t, 1, count)

	latest, err := s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, uint64(8), latest.Tick)
}
