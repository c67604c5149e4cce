package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/weftlang/weft/internal/engine"
)

// LoggedInput is one persisted input event plus the tick it was
// ingested into.
type LoggedInput struct {
	Tick  uint64
	Event engine.InputEvent
}

// ReadInputs returns logged inputs with seq > afterSeq in seq order.
// Pass -1 for the whole log.
func (s *Store) ReadInputs(ctx context.Context, afterSeq int64) ([]LoggedInput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tick, batch_token, port, payload
		FROM input_log
		WHERE seq > ?
		ORDER BY seq ASC
	`, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	defer rows.Close()

	var out []LoggedInput
	for rows.Next() {
		var (
			li      LoggedInput
			payload string
		)
		if err := rows.Scan(&li.Event.Arrival, &li.Tick, &li.Event.BatchToken, &li.Event.Port, &payload); err != nil {
			return nil, fmt.Errorf("read inputs: %w", err)
		}
		v, err := unmarshalValue(payload)
		if err != nil {
			return nil, fmt.Errorf("read inputs seq %d: %w", li.Event.Arrival, err)
		}
		li.Event.Payload = v
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	return out, nil
}

// LoadLatestSnapshot returns the snapshot at the highest tick, or nil
// when none exists.
func (s *Store) LoadLatestSnapshot(ctx context.Context) (*engine.Snapshot, error) {
	var tick sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(tick) FROM snapshots`).Scan(&tick); err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	if !tick.Valid {
		return nil, nil
	}
	return s.LoadSnapshot(ctx, uint64(tick.Int64))
}

// LoadSnapshot returns the snapshot persisted at tick.
func (s *Store) LoadSnapshot(ctx context.Context, tick uint64) (*engine.Snapshot, error) {
	snap := &engine.Snapshot{Tick: tick}

	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, state FROM snapshot_holds
		WHERE tick = ? ORDER BY slot ASC
	`, tick)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var slotStr, state string
		if err := rows.Scan(&slotStr, &state); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		slot, err := engine.ParseSlotKey(slotStr)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		v, err := unmarshalValue(state)
		if err != nil {
			return nil, fmt.Errorf("load snapshot hold %s: %w", slotStr, err)
		}
		snap.Holds = append(snap.Holds, engine.HoldSnapshot{Slot: slot, State: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT slot, items, next_key FROM snapshot_collections
		WHERE tick = ? ORDER BY slot ASC
	`, tick)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			slotStr, itemsStr string
			nextKey           uint64
		)
		if err := crows.Scan(&slotStr, &itemsStr, &nextKey); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		slot, err := engine.ParseSlotKey(slotStr)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		items, err := unmarshalItems(itemsStr)
		if err != nil {
			return nil, fmt.Errorf("load snapshot collection %s: %w", slotStr, err)
		}
		snap.Collections = append(snap.Collections, engine.CollectionSnapshot{
			Slot:    slot,
			Items:   items,
			NextKey: nextKey,
		})
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// MaxInputSeq returns the highest logged input seq, or -1 when the
// log is empty.
func (s *Store) MaxInputSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM input_log`).Scan(&seq); err != nil {
		return -1, fmt.Errorf("max input seq: %w", err)
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}
