package snapshot

import "github.com/synapsedb/synapse/pkg/types"

// idSet is an immutable ordered set of concept ids. Token and semantic-type
// indexes store one idSet per key; updates replace the whole set (a shallow
// copy plus one append), which is cheap because these buckets are small
// relative to the full concept population.
type idSet struct {
	order []types.ConceptID
	has   map[types.ConceptID]struct{}
}

func newIDSet() *idSet {
	return &idSet{has: make(map[types.ConceptID]struct{})}
}

// with returns a new idSet containing this set's members plus id, or the
// same set if id is already present.
func (s *idSet) with(id types.ConceptID) *idSet {
	if s == nil {
		ns := newIDSet()
		return ns.with(id)
	}
	if _, ok := s.has[id]; ok {
		return s
	}
	ns := &idSet{
		order: make([]types.ConceptID, len(s.order), len(s.order)+1),
		has:   make(map[types.ConceptID]struct{}, len(s.has)+1),
	}
	copy(ns.order, s.order)
	for k := range s.has {
		ns.has[k] = struct{}{}
	}
	ns.order = append(ns.order, id)
	ns.has[id] = struct{}{}
	return ns
}

func (s *idSet) ids() []types.ConceptID {
	if s == nil {
		return nil
	}
	out := make([]types.ConceptID, len(s.order))
	copy(out, s.order)
	return out
}
