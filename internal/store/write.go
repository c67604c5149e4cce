package store

import (
	"context"
	"fmt"

	"github.com/weftlang/weft/internal/engine"
)

// AppendInput appends one accepted input event to the log. The seq
// column takes the event's arrival order; duplicate seqs are silently
// ignored so re-logging after a restore is idempotent.
func (s *Store) AppendInput(ctx context.Context, tick uint64, ev engine.InputEvent) error {
	payload, err := marshalValue(ev.Payload)
	if err != nil {
		return fmt.Errorf("append input: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO input_log (seq, tick, batch_token, port, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Arrival,
		tick,
		ev.BatchToken,
		ev.Port,
		payload,
	)
	if err != nil {
		return fmt.Errorf("append input: %w", err)
	}
	return nil
}

// SaveSnapshot persists the engine snapshot for its tick, replacing
// any earlier snapshot at the same tick. The whole snapshot writes in
// one transaction: a reader never sees a half-written snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *engine.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE tick = ?`, snap.Tick); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots (tick) VALUES (?)`, snap.Tick); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	for _, h := range snap.Holds {
		state, err := marshalValue(h.State)
		if err != nil {
			return fmt.Errorf("save snapshot hold %s: %w", h.Slot, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_holds (tick, slot, state) VALUES (?, ?, ?)
		`, snap.Tick, h.Slot.String(), state); err != nil {
			return fmt.Errorf("save snapshot hold %s: %w", h.Slot, err)
		}
	}

	for _, c := range snap.Collections {
		items, err := marshalItems(c.Items)
		if err != nil {
			return fmt.Errorf("save snapshot collection %s: %w", c.Slot, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_collections (tick, slot, items, next_key)
			VALUES (?, ?, ?, ?)
		`, snap.Tick, c.Slot.String(), items, c.NextKey); err != nil {
			return fmt.Errorf("save snapshot collection %s: %w", c.Slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// PruneSnapshots removes snapshots older than keepTick.
func (s *Store) PruneSnapshots(ctx context.Context, keepTick uint64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE tick < ?`, keepTick); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
