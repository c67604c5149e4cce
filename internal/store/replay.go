package store

import (
	"context"
	"fmt"

	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/lang"
)

// ReplayResult summarizes a deterministic replay of the input log.
type ReplayResult struct {
	Engine      *engine.Engine
	Ticks       int
	Events      int
	FromTick    uint64 // 0 when replaying from scratch
	Diagnostics []*engine.RuntimeError
}

// Replay rebuilds engine state from persisted data: the latest
// snapshot (when present) plus the input log tail after it, each
// logged tick re-run as one batch. Batch tokens come from the log, so
// a replayed trace is byte-identical to the original run's.
func (s *Store) Replay(ctx context.Context, program *lang.Program, opts ...engine.EngineOption) (*ReplayResult, error) {
	snap, err := s.LoadLatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	res := &ReplayResult{}
	afterSeq := int64(-1)
	if snap != nil {
		res.FromTick = snap.Tick
		opts = append(opts, engine.WithSnapshot(snap))
		afterSeq, err = s.maxSeqAtTick(ctx, snap.Tick)
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
	}

	inputs, err := s.ReadInputs(ctx, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	// Group logged events by tick, preserving the original batches.
	var (
		ticks   []uint64
		byTick  = make(map[uint64][]LoggedInput)
		tokens  []string
		seenTok = make(map[uint64]bool)
	)
	for _, li := range inputs {
		if _, ok := byTick[li.Tick]; !ok {
			ticks = append(ticks, li.Tick)
		}
		byTick[li.Tick] = append(byTick[li.Tick], li)
		if !seenTok[li.Tick] {
			seenTok[li.Tick] = true
			tokens = append(tokens, li.Event.BatchToken)
		}
	}

	// The original run's first tick may have ingested events; only an
	// event-free first tick needs a synthetic token and an empty tick
	// of its own.
	emptyInitial := snap == nil && (len(ticks) == 0 || ticks[0] != 1)
	if emptyInitial {
		tokens = append([]string{"replay-initial"}, tokens...)
	}
	// A snapshot with no log tail still needs one tick to install the
	// restored state and re-derive link bindings.
	restoreOnly := snap != nil && len(ticks) == 0
	if restoreOnly {
		tokens = append(tokens, "replay-restore")
	}
	opts = append(opts, engine.WithTokenGenerator(engine.NewFixedTokenGenerator(tokens...)))

	eng, err := engine.New(program, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	res.Engine = eng

	if emptyInitial || restoreOnly {
		if _, err := eng.Tick(); err != nil && engine.IsInvariantError(err) {
			return nil, fmt.Errorf("replay initial tick: %w", err)
		}
		res.Ticks++
	}

	for _, tick := range ticks {
		for _, li := range byTick[tick] {
			eng.Enqueue(li.Event.Port, li.Event.Payload)
			res.Events++
		}
		report, err := eng.Tick()
		if err != nil && engine.IsInvariantError(err) {
			return nil, fmt.Errorf("replay tick %d: %w", tick, err)
		}
		res.Ticks++
		res.Diagnostics = append(res.Diagnostics, report.Diagnostics...)
	}
	return res, nil
}

func (s *Store) maxSeqAtTick(ctx context.Context, tick uint64) (int64, error) {
	var seq int64 = -1
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(MAX(seq), -1) FROM input_log WHERE tick <= ?
	`, tick)
	if err != nil {
		return -1, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&seq); err != nil {
			return -1, err
		}
	}
	return seq, rows.Err()
}
