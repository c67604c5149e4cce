package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

// defaultMaxPasses bounds propagation passes within one wave before
// the runaway guard trips.
const defaultMaxPasses = 1000

// Engine evaluates one program as a sequence of deterministic ticks.
// All evaluation state is owned by the tick loop goroutine; external
// goroutines interact only through the input queue and through node
// subscriptions.
type Engine struct {
	program *lang.Program
	logger  *slog.Logger
	clock   *Clock
	scopes  *ScopeManager
	slots   *SlotStore
	queue   *inputQueue
	tokens  BatchTokenGenerator
	sink    Sink

	maxPasses         int
	unserializedHolds bool

	rootSlots map[string]SlotKey
	rootNames map[SlotKey]string

	holds         map[SlotKey]*holdCell
	links         map[SlotKey]*linkCell
	latests       map[SlotKey]*latestCell
	whiles        map[SlotKey]*whileCell
	colls         map[SlotKey]*Collection
	mapStates     map[SlotKey]*listMapState
	retainStates  map[SlotKey]*listRetainState
	literalStates map[SlotKey]*listLiteralState

	// mutWaves tracks the wave each mutation site last fired in, so a
	// mutation applies once per wave across settling passes.
	mutWaves map[SlotKey]uint64

	// unitReads[i] is the set of cells top-level binding i read during
	// its last evaluation; it drives change-driven re-evaluation.
	unitReads []map[SlotKey]struct{}

	// changed accumulates slots whose value moved during the current
	// propagation pass.
	changed map[SlotKey]struct{}

	// holdCommits records hold state writes in commit order within the
	// current tick.
	holdCommits []SlotKey

	cause     Cause
	firstTick bool

	// wave numbers each injection wave within the run. Hold bodies run
	// at most once per wave, so multi-pass settling never re-consumes
	// the same input event.
	wave uint64

	diags    []*RuntimeError
	lastDiag map[SlotKey]*RuntimeError

	pendingOut []OutputEvent
	tickOut    []OutputEvent
	flushed    map[SlotKey]uint64

	restore *Snapshot
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMaxPasses overrides the runaway propagation guard.
func WithMaxPasses(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxPasses = n
		}
	}
}

// WithTokenGenerator sets the batch token source. Tests install a
// FixedTokenGenerator for reproducible traces.
func WithTokenGenerator(g BatchTokenGenerator) EngineOption {
	return func(e *Engine) { e.tokens = g }
}

// WithSink sets the output sink receiving per-tick change batches.
func WithSink(s Sink) EngineOption {
	return func(e *Engine) { e.sink = s }
}

// WithUnserializedHolds disables the hold permit, evaluating every
// hold body against tick-start state. This is a diagnosis mode: it
// reproduces the lost-update race that permit serialization prevents.
func WithUnserializedHolds() EngineOption {
	return func(e *Engine) { e.unserializedHolds = true }
}

// WithSnapshot restores persisted state before the first tick.
func WithSnapshot(s *Snapshot) EngineOption {
	return func(e *Engine) { e.restore = s }
}

// New creates an engine for program.
func New(program *lang.Program, opts ...EngineOption) (*Engine, error) {
	if program == nil {
		return nil, fmt.Errorf("engine: nil program")
	}
	e := &Engine{
		program:       program,
		logger:        slog.Default(),
		clock:         NewClock(),
		scopes:        NewScopeManager(),
		slots:         NewSlotStore(),
		queue:         newInputQueue(),
		tokens:        UUIDv7Generator{},
		maxPasses:     defaultMaxPasses,
		rootSlots:     make(map[string]SlotKey),
		rootNames:     make(map[SlotKey]string),
		holds:         make(map[SlotKey]*holdCell),
		links:         make(map[SlotKey]*linkCell),
		latests:       make(map[SlotKey]*latestCell),
		whiles:        make(map[SlotKey]*whileCell),
		colls:         make(map[SlotKey]*Collection),
		mapStates:     make(map[SlotKey]*listMapState),
		retainStates:  make(map[SlotKey]*listRetainState),
		literalStates: make(map[SlotKey]*listLiteralState),
		mutWaves:      make(map[SlotKey]uint64),
		changed:       make(map[SlotKey]struct{}),
		lastDiag:      make(map[SlotKey]*RuntimeError),
		flushed:       make(map[SlotKey]uint64),
		firstTick:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, b := range program.Bindings {
		slot := RootSlot(b.Expr.ID)
		if _, dup := e.rootNames[slot]; dup {
			return nil, fmt.Errorf("engine: duplicate root slot %s", slot)
		}
		e.rootSlots[b.Name] = slot
		e.rootNames[slot] = b.Name
		e.unitReads = append(e.unitReads, nil)
	}
	if e.restore != nil {
		e.clock = NewClockAt(e.restore.Tick)
	}
	return e, nil
}

// Enqueue submits an external input event. Safe for concurrent use.
// Returns false after Close.
func (e *Engine) Enqueue(port string, payload value.Value) bool {
	return e.queue.Enqueue(InputEvent{Port: port, Payload: payload})
}

// Close stops the input queue; Run returns after draining.
func (e *Engine) Close() {
	e.queue.Close()
}

// Wait returns a channel signalling that input events may be queued.
// Callers driving Tick themselves block on it between ticks.
func (e *Engine) Wait() <-chan struct{} {
	return e.queue.Wait()
}

// QueuedInputs returns the number of events awaiting ingest.
func (e *Engine) QueuedInputs() int {
	return e.queue.Len()
}

// Run drives the tick loop until ctx is cancelled or Close is called.
// The first tick runs unconditionally to establish initial values.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if _, err := e.Tick(); err != nil {
			// A runaway tick halts and discards its own output but the
			// loop survives it; invariant violations stop the run.
			if IsInvariantError(err) {
				return err
			}
			var rerr *RuntimeError
			if asRuntime(err, &rerr) {
				e.logger.Warn("tick error", "code", rerr.Code, "err", rerr)
			} else {
				return err
			}
		}
		if e.queue.Len() > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-e.queue.Wait():
			if !ok {
				if e.queue.Len() > 0 {
					continue
				}
				return nil
			}
		}
	}
}

// TickReport summarizes one tick for callers and traces.
type TickReport struct {
	Tick        uint64
	BatchToken  string
	Events      int
	Passes      int
	Finalized   int
	Diagnostics []*RuntimeError

	// Ingested is the batch this tick consumed, with arrival order and
	// batch token assigned. Callers persist it to the input log.
	Ingested []InputEvent
}

// Tick runs one complete tick: ingest, propagate to quiescence,
// finalize scopes, flush output. The first tick also establishes
// initial values even with an empty batch.
func (e *Engine) Tick() (TickReport, error) {
	batch := e.queue.DrainBatch()
	if len(batch) == 0 && !e.firstTick && e.scopes.PendingCount() == 0 && len(e.pendingOut) == 0 {
		return TickReport{Tick: e.clock.CurrentTick()}, nil
	}

	tick := e.clock.NextTick()
	token := e.tokens.Generate()
	for i := range batch {
		batch[i].BatchToken = token
	}

	e.diags = e.diags[:0]
	e.holdCommits = e.holdCommits[:0]
	e.tickOut = e.tickOut[:0]
	for _, c := range e.holds {
		c.tickBase = c.state
	}

	report := TickReport{Tick: tick, BatchToken: token, Events: len(batch), Ingested: batch}

	if e.restore != nil {
		e.applyRestore()
	}

	var tickErr error
	if e.firstTick {
		e.wave++
		e.cause = Cause{Kind: CauseInitial, Stamp: e.clock.Current()}
		passes, err := e.propagate(e.allRoots())
		report.Passes += passes
		if err != nil {
			tickErr = err
		}
		e.firstTick = false
	}

	for _, ev := range batch {
		if tickErr != nil {
			break
		}
		passes, err := e.deliver(ev)
		report.Passes += passes
		if err != nil {
			tickErr = err
		}
	}

	freed := e.finalizeScopes()
	report.Finalized = len(freed)

	if tickErr != nil {
		// Runaway: this tick's partial output is discarded; committed
		// node state stays, which is the last stable value each slot
		// reached before the guard tripped.
		e.tickOut = e.tickOut[:0]
		report.Diagnostics = append(report.Diagnostics, e.diags...)
		e.logger.Error("tick aborted",
			"tick", tick,
			"err", tickErr,
		)
		return report, tickErr
	}

	e.collectScalarOutputs()
	if err := e.flushOutput(tick, token); err != nil {
		e.logger.Debug("sink not ready, retaining output", "tick", tick, "events", len(e.pendingOut))
	}

	report.Diagnostics = append(report.Diagnostics, e.diags...)
	e.logger.Debug("tick complete",
		"tick", tick,
		"batch", token,
		"events", report.Events,
		"passes", report.Passes,
		"finalized", report.Finalized,
	)
	return report, nil
}

// deliver injects one input event and propagates it to quiescence
// before the next event is looked at. One event is one wave.
func (e *Engine) deliver(ev InputEvent) (int, error) {
	e.wave++
	targets := e.linkSlotsForPort(ev.Port)
	if len(targets) == 0 {
		diag := &RuntimeError{
			Code:    ErrCodeUnknownPort,
			Message: fmt.Sprintf("no link bound to port %q", ev.Port),
			Tick:    e.clock.CurrentTick(),
		}
		e.report(diag)
		return 0, nil
	}

	e.cause = Cause{Kind: CauseInput, Port: ev.Port, Stamp: e.clock.Next()}
	for _, slot := range targets {
		cell := e.links[slot]
		cell.event = ev.Payload
		cell.hasEvent = true
		e.markChanged(slot)
	}

	passes, err := e.propagate(e.rootsReading(targets))
	var refresh []*itemOwner
	if err == nil {
		refresh = e.reevaluateNestedHolds()
	}

	// Retract phase: clear the event and re-settle its readers so
	// link-derived values return to Skip. Without this, a second pulse
	// carrying the same payload would coalesce into the first and
	// never re-dirty downstream. Item refreshes for changed nested
	// holds run after retraction so their hold bodies do not observe
	// the event a second time.
	for _, slot := range targets {
		e.links[slot].clearEvent()
	}
	touched := make([]SlotKey, 0, len(targets)+len(refresh))
	touched = append(touched, targets...)
	for _, owner := range refresh {
		e.refreshOwnerItem(owner)
		touched = append(touched, owner.mapSlot)
	}
	if err == nil {
		retractPasses, retractErr := e.propagate(e.rootsReading(touched))
		passes += retractPasses
		err = retractErr
	}
	return passes, err
}

// rootsReading returns indices of top-level bindings whose last
// evaluation read any of the given slots.
func (e *Engine) rootsReading(slots []SlotKey) []int {
	var out []int
	for i := range e.program.Bindings {
		for _, slot := range slots {
			if _, ok := e.unitReads[i][slot]; ok {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// propagate evaluates dirty top-level bindings, in declaration order,
// until no evaluation changes any slot. Each full sweep over the dirty
// set is one pass; the guard trips after maxPasses.
func (e *Engine) propagate(dirty []int) (int, error) {
	passes := 0
	for len(dirty) > 0 {
		if passes >= e.maxPasses {
			err := newRunawayError(e.clock.CurrentTick(), passes)
			e.report(err)
			return passes, err
		}
		passes++

		sort.Ints(dirty)
		for k := range e.changed {
			delete(e.changed, k)
		}
		for _, i := range dirty {
			e.evaluateRoot(i)
		}

		next := make(map[int]struct{})
		for i := range e.program.Bindings {
			for slot := range e.changed {
				if _, ok := e.unitReads[i][slot]; ok {
					next[i] = struct{}{}
					break
				}
			}
		}
		dirty = dirty[:0]
		for i := range next {
			dirty = append(dirty, i)
		}
	}
	return passes, nil
}

func (e *Engine) evaluateRoot(i int) {
	b := e.program.Bindings[i]
	e.unitReads[i] = make(map[SlotKey]struct{})
	ev := &evaluator{eng: e, unit: i}
	ev.evalRoot(b.Expr)
}

// reevaluateNestedHolds re-runs hold bodies living in item scopes
// after a shared event fired. Without this, an event reaching every
// item of a collection would only be seen by items whose own diffs
// arrived this wave. Returns the owners whose per-item state changed;
// their templates are refreshed by the caller once the event clears.
func (e *Engine) reevaluateNestedHolds() []*itemOwner {
	var keys []SlotKey
	for k, c := range e.holds {
		if c.scope != RootScope && c.initialized && c.owner != nil {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var changed []*itemOwner
	seen := make(map[itemOwner]bool)
	for _, k := range keys {
		cell := e.holds[k]
		if cell.permit || cell.expr == nil || cell.lastWave == e.wave {
			continue
		}
		before := cell.state
		ev := &evaluator{eng: e, unit: -1}
		ev.eval(cell.expr, cell.scope, cell.env)
		if !value.Equal(before, cell.state) && !seen[*cell.owner] {
			seen[*cell.owner] = true
			changed = append(changed, cell.owner)
		}
	}
	return changed
}

// refreshOwnerItem re-runs the single item's template or predicate
// after per-item state changed underneath the derived collection.
func (e *Engine) refreshOwnerItem(owner *itemOwner) {
	if st, ok := e.mapStates[owner.mapSlot]; ok {
		src := st.view.source
		if v, ok := src.Get(owner.key); ok {
			d := Diff{Kind: DiffUpdate, Key: owner.key, Value: v, Version: src.Version()}
			out, flushed := st.view.Apply(d, st.transform)
			if flushed == nil && len(out) > 0 {
				e.markChanged(owner.mapSlot)
				e.emitDiffs(owner.mapSlot, out)
			}
		}
		return
	}
	if st, ok := e.retainStates[owner.mapSlot]; ok {
		src := st.view.source
		if v, ok := src.Get(owner.key); ok {
			d := Diff{Kind: DiffUpdate, Key: owner.key, Value: v, Version: src.Version()}
			out := st.view.Apply(d, st.pred)
			if len(out) > 0 {
				e.markChanged(owner.mapSlot)
				e.emitDiffs(owner.mapSlot, out)
			}
		}
	}
}

// finalizeScopes runs deferred scope teardown at the tick boundary:
// slots, cells, and derived state of freed scopes are dropped together.
func (e *Engine) finalizeScopes() []ScopeId {
	freed := e.scopes.FinalizePending()
	if len(freed) == 0 {
		return nil
	}
	freedSet := make(map[ScopeId]struct{}, len(freed))
	for _, s := range freed {
		freedSet[s] = struct{}{}
		e.slots.DropScope(s)
	}
	dropByScope(e.holds, freedSet)
	dropByScope(e.links, freedSet)
	dropByScope(e.latests, freedSet)
	dropByScope(e.whiles, freedSet)
	dropByScope(e.colls, freedSet)
	dropByScope(e.mapStates, freedSet)
	dropByScope(e.retainStates, freedSet)
	dropByScope(e.literalStates, freedSet)
	dropByScope(e.mutWaves, freedSet)
	return freed
}

func dropByScope[T any](m map[SlotKey]T, freed map[ScopeId]struct{}) {
	for k := range m {
		if _, gone := freed[k.Scope]; gone {
			delete(m, k)
		}
	}
}

// --- cell registries -------------------------------------------------

func (e *Engine) holdCell(key SlotKey) *holdCell {
	c, ok := e.holds[key]
	if !ok {
		c = &holdCell{}
		e.holds[key] = c
	}
	return c
}

func (e *Engine) linkCell(key SlotKey, alias string) *linkCell {
	c, ok := e.links[key]
	if !ok {
		c = &linkCell{alias: alias}
		e.links[key] = c
	}
	return c
}

func (e *Engine) linkCellAt(key SlotKey) *linkCell {
	return e.links[key]
}

func (e *Engine) latestCell(key SlotKey, inputs int) *latestCell {
	c, ok := e.latests[key]
	if !ok {
		c = &latestCell{memo: make([]latestMemo, inputs)}
		e.latests[key] = c
	}
	return c
}

func (e *Engine) whileCell(key SlotKey) *whileCell {
	c, ok := e.whiles[key]
	if !ok {
		c = &whileCell{armIndex: -1}
		e.whiles[key] = c
	}
	return c
}

func (e *Engine) collectionCell(key SlotKey) (*Collection, bool) {
	c, ok := e.colls[key]
	if !ok {
		c = NewCollection(key)
		e.colls[key] = c
		return c, true
	}
	return c, false
}

func (e *Engine) collectionCellAt(key SlotKey) *Collection {
	return e.colls[key]
}

func (e *Engine) listMapState(key SlotKey, src *Collection) *listMapState {
	st, ok := e.mapStates[key]
	if !ok {
		out, _ := e.collectionCell(key)
		st = &listMapState{view: NewMappedView(src, out)}
		e.mapStates[key] = st
	}
	return st
}

func (e *Engine) listRetainState(key SlotKey, src *Collection) *listRetainState {
	st, ok := e.retainStates[key]
	if !ok {
		out, _ := e.collectionCell(key)
		st = &listRetainState{view: NewFilteredView(src, out)}
		e.retainStates[key] = st
	}
	return st
}

func (e *Engine) listLiteralState(key SlotKey) *listLiteralState {
	st, ok := e.literalStates[key]
	if !ok {
		st = &listLiteralState{}
		e.literalStates[key] = st
	}
	return st
}

// --- lookups and bookkeeping -----------------------------------------

func (e *Engine) rootSlotByName(name string) (SlotKey, bool) {
	k, ok := e.rootSlots[name]
	return k, ok
}

func (e *Engine) rootBindingByName(name string) (lang.Binding, bool) {
	for _, b := range e.program.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return lang.Binding{}, false
}

func (e *Engine) rootSlotOf(i int) SlotKey {
	return RootSlot(e.program.Bindings[i].Expr.ID)
}

func (e *Engine) linkSlotsForPort(port string) []SlotKey {
	var out []SlotKey
	for k, c := range e.links {
		if c.alias == port {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (e *Engine) allRoots() []int {
	out := make([]int, len(e.program.Bindings))
	for i := range out {
		out[i] = i
	}
	return out
}

func (e *Engine) recordUnitRead(unit int, key SlotKey) {
	if e.unitReads[unit] == nil {
		e.unitReads[unit] = make(map[SlotKey]struct{})
	}
	e.unitReads[unit][key] = struct{}{}
}

func (e *Engine) markChanged(key SlotKey) {
	e.changed[key] = struct{}{}
}

// armMutation reports whether the mutation site may fire this wave,
// arming it as a side effect.
func (e *Engine) armMutation(key SlotKey) bool {
	if e.mutWaves[key] == e.wave {
		return false
	}
	e.mutWaves[key] = e.wave
	return true
}

func (e *Engine) noteHoldCommit(key SlotKey) {
	e.holdCommits = append(e.holdCommits, key)
}

// HoldCommitOrder returns the hold state writes of the last tick in
// commit order.
func (e *Engine) HoldCommitOrder() []SlotKey {
	out := make([]SlotKey, len(e.holdCommits))
	copy(out, e.holdCommits)
	return out
}

func (e *Engine) currentCause() Cause {
	return e.cause
}

func (e *Engine) itemScope(parent ScopeId, site lang.ExprId, key value.ItemKey) ScopeId {
	id, err := e.scopes.ItemScope(parent, site, key)
	if err != nil {
		var rerr *RuntimeError
		if asRuntime(err, &rerr) {
			e.report(rerr)
		}
	}
	return id
}

func (e *Engine) scheduleItemFinalization(parent ScopeId, site lang.ExprId, key value.ItemKey) {
	id, err := e.scopes.ItemScope(parent, site, key)
	if err != nil {
		return
	}
	e.scopes.ScheduleFinalization(id)
}

func (e *Engine) report(err *RuntimeError) {
	e.diags = append(e.diags, err)
	if err.Slot != (SlotKey{}) {
		e.lastDiag[err.Slot] = err
	}
	e.logger.Warn("runtime diagnostic", "code", err.Code, "err", err)
}

// Diagnostics returns the diagnostics raised during the last tick.
func (e *Engine) Diagnostics() []*RuntimeError {
	out := make([]*RuntimeError, len(e.diags))
	copy(out, e.diags)
	return out
}

// Program returns the program under evaluation.
func (e *Engine) Program() *lang.Program {
	return e.program
}

// Slots exposes the slot store for inspection and subscriptions.
func (e *Engine) Slots() *SlotStore {
	return e.slots
}
