package engine

import "sort"

// SlotStore is the arena holding one node per live expression instance.
//
// Nodes are created lazily the first time their SlotKey is evaluated
// and destroyed only when their owning scope is finalized. A freed
// SlotKey is eligible for a fresh node instance that never aliases the
// old one - the old node object is dropped wholesale, subscriptions
// included.
type SlotStore struct {
	nodes   map[SlotKey]*Node
	byScope map[ScopeId][]SlotKey
}

// NewSlotStore creates an empty slot store.
func NewSlotStore() *SlotStore {
	return &SlotStore{
		nodes:   make(map[SlotKey]*Node),
		byScope: make(map[ScopeId][]SlotKey),
	}
}

// GetOrCreate returns the node at key, creating it on first use.
func (s *SlotStore) GetOrCreate(key SlotKey) *Node {
	if n, ok := s.nodes[key]; ok {
		return n
	}
	n := newNode(key)
	s.nodes[key] = n
	s.byScope[key.Scope] = append(s.byScope[key.Scope], key)
	return n
}

// Get returns the node at key if it exists.
func (s *SlotStore) Get(key SlotKey) (*Node, bool) {
	n, ok := s.nodes[key]
	return n, ok
}

// Len returns the number of live nodes.
func (s *SlotStore) Len() int {
	return len(s.nodes)
}

// DropScope frees every node addressed under a finalized scope.
// Called only from the end-of-tick finalize pass.
func (s *SlotStore) DropScope(scope ScopeId) {
	for _, key := range s.byScope[scope] {
		delete(s.nodes, key)
	}
	delete(s.byScope, scope)
}

// Keys returns all live slot keys in deterministic order.
// Used by snapshot and the debug surface.
func (s *SlotStore) Keys() []SlotKey {
	keys := make([]SlotKey, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
