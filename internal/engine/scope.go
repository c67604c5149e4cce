package engine

import (
	"fmt"

	"github.com/weftlang/weft/internal/lang"
	"github.com/weftlang/weft/internal/value"
)

// ScopeId identifies a runtime instantiation context. The root scope
// exists once; child scopes are created by collection-item
// instantiation and block entry, each parented to its creation site.
//
// Identity is a hash chain over (parent, allocation-site, item key):
// a pure function of allocation history, never regenerated by cloning.
// Identical re-execution therefore reproduces identical scope ids.
type ScopeId uint64

// RootScope is the single top-level scope.
const RootScope ScopeId = 0

// child derives a child scope id from a discriminator.
func (s ScopeId) child(discriminator uint64) ScopeId {
	return ScopeId(uint64(s)*31 + discriminator)
}

// SlotKey is the universal address of one live reactive cell.
// At most one cell exists per SlotKey at any time.
type SlotKey struct {
	Scope ScopeId
	Expr  lang.ExprId
}

// RootSlot addresses an expression in the root scope.
func RootSlot(expr lang.ExprId) SlotKey {
	return SlotKey{Scope: RootScope, Expr: expr}
}

// Less orders slot keys for deterministic dirty-queue processing.
func (k SlotKey) Less(other SlotKey) bool {
	if k.Scope != other.Scope {
		return k.Scope < other.Scope
	}
	return k.Expr < other.Expr
}

// String renders a slot key for logs and diagnostics.
func (k SlotKey) String() string {
	return fmt.Sprintf("%d/%d", uint64(k.Scope), uint32(k.Expr))
}

// ParseSlotKey parses the String rendering back into a key. Used by
// the snapshot store to address persisted cells.
func ParseSlotKey(s string) (SlotKey, error) {
	var scope uint64
	var expr uint32
	if _, err := fmt.Sscanf(s, "%d/%d", &scope, &expr); err != nil {
		return SlotKey{}, fmt.Errorf("parse slot key %q: %w", s, err)
	}
	return SlotKey{Scope: ScopeId(scope), Expr: lang.ExprId(expr)}, nil
}

// scopeRecord tracks one live scope in the manager.
type scopeRecord struct {
	parent  ScopeId
	site    lang.ExprId
	itemKey value.ItemKey
	hasItem bool
}

// ScopeManager allocates and hierarchically tracks instantiation
// contexts. Finalization is deferred: removal marks a scope, and
// FinalizePending (called once per tick, after propagation settles)
// frees it together with every descendant.
type ScopeManager struct {
	scopes  map[ScopeId]scopeRecord
	byOwner map[ScopeId][]ScopeId // parent -> direct children
	pending []ScopeId             // scheduled for end-of-tick finalization
}

// NewScopeManager creates a manager holding only the root scope.
func NewScopeManager() *ScopeManager {
	return &ScopeManager{
		scopes:  map[ScopeId]scopeRecord{RootScope: {}},
		byOwner: make(map[ScopeId][]ScopeId),
	}
}

// ChildScope derives (or re-derives) the child of parent at the given
// allocation site. Derivation is pure: calling it twice with the same
// arguments yields the same ScopeId and registers nothing new.
//
// An id collision with a differently-derived live scope is an invariant
// violation and returns a fatal RuntimeError: it must never occur given
// correct derivation and deferred finalization.
func (m *ScopeManager) ChildScope(parent ScopeId, site lang.ExprId) (ScopeId, error) {
	return m.register(parent, scopeRecord{parent: parent, site: site},
		uint64(site)<<32)
}

// ItemScope derives the child scope for one collection item. The item
// key participates in derivation so items keep their scope across
// reorderings.
func (m *ScopeManager) ItemScope(parent ScopeId, site lang.ExprId, key value.ItemKey) (ScopeId, error) {
	return m.register(parent, scopeRecord{parent: parent, site: site, itemKey: key, hasItem: true},
		uint64(site)<<32|(uint64(key)+1))
}

func (m *ScopeManager) register(parent ScopeId, rec scopeRecord, disc uint64) (ScopeId, error) {
	if _, live := m.scopes[parent]; !live {
		return 0, newStaleScopeError(parent)
	}
	id := parent.child(disc)
	if existing, ok := m.scopes[id]; ok {
		if existing != rec {
			return 0, newAddressCollisionError(id)
		}
		return id, nil
	}
	m.scopes[id] = rec
	m.byOwner[parent] = append(m.byOwner[parent], id)
	return id, nil
}

// Alive reports whether a scope is currently registered.
func (m *ScopeManager) Alive(id ScopeId) bool {
	_, ok := m.scopes[id]
	return ok
}

// ScheduleFinalization marks a scope for removal at the end of the
// current tick. The scope (and its nodes) stays addressable until
// FinalizePending runs, so it may still emit a final event this tick.
func (m *ScopeManager) ScheduleFinalization(id ScopeId) {
	if id == RootScope {
		return // the root scope is never finalized
	}
	m.pending = append(m.pending, id)
}

// FinalizePending frees every scheduled scope and its descendants,
// returning the freed scope ids so the slot store can drop their nodes.
// A freed SlotKey becomes eligible for a fresh, never-aliasing cell:
// re-creating the same item key later re-derives the same ScopeId, and
// that is correct because the old cell is fully gone.
func (m *ScopeManager) FinalizePending() []ScopeId {
	if len(m.pending) == 0 {
		return nil
	}
	var freed []ScopeId
	for _, id := range m.pending {
		freed = m.freeSubtree(id, freed)
	}
	m.pending = m.pending[:0]
	return freed
}

// PendingCount returns the number of scopes awaiting finalization.
func (m *ScopeManager) PendingCount() int {
	return len(m.pending)
}

func (m *ScopeManager) freeSubtree(id ScopeId, freed []ScopeId) []ScopeId {
	rec, ok := m.scopes[id]
	if !ok {
		return freed // already freed via an ancestor
	}
	for _, child := range m.byOwner[id] {
		freed = m.freeSubtree(child, freed)
	}
	delete(m.byOwner, id)
	delete(m.scopes, id)

	// Detach from the parent's child list.
	siblings := m.byOwner[rec.parent]
	for i, sib := range siblings {
		if sib == id {
			m.byOwner[rec.parent] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	return append(freed, id)
}
