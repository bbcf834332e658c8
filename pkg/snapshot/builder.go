package snapshot

import (
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/synapsedb/synapse/pkg/types"
)

// Builder folds a batch of mutations onto a base snapshot, producing the
// next one. It is used exclusively by the reconciler (§4.3); nothing else
// is allowed to construct a Snapshot.
type Builder struct {
	base    *Snapshot
	version types.Sequence

	concepts   *iradix.Txn
	adjacency  *iradix.Txn
	reverse    *iradix.Txn
	tokens     *iradix.Txn
	bySemantic *iradix.Txn
}

// NewBuilder starts a builder seeded from base.
func NewBuilder(base *Snapshot) *Builder {
	return &Builder{
		base:       base,
		version:    base.Version,
		concepts:   base.concepts.Txn(),
		adjacency:  base.adjacency.Txn(),
		reverse:    base.reverse.Txn(),
		tokens:     base.tokens.Txn(),
		bySemantic: base.bySemantic.Txn(),
	}
}

// PriorConcept returns the concept currently stored under id within this
// builder's base (including tombstones), letting the reconciler distinguish
// a fresh learn from a reinforcement before calling UpsertConcept.
func (b *Builder) PriorConcept(id types.ConceptID) (*types.Concept, bool) {
	v, ok := b.concepts.Get(id.Bytes())
	if !ok {
		return nil, false
	}
	c := v.(*types.Concept)
	if c.Deleted {
		return nil, false
	}
	return c, true
}

// PriorAssociation returns the edge currently stored under key, letting the
// reconciler fold repeated observation into reinforcement (§3.2).
func (b *Builder) PriorAssociation(key types.AssociationKey) (*types.Association, bool) {
	fwdKey := types.AdjacencyKey{Source: key.Source, Type: key.Type}
	v, ok := b.adjacency.Get(fwdKey.Bytes())
	if !ok {
		return nil, false
	}
	bucket := v.(*adjacencyBucket)
	a, ok := bucket.byKey[key.Target]
	if !ok || a.Deleted {
		return nil, false
	}
	return a, true
}

// UpsertConcept inserts or updates a concept. The reconciler is responsible
// for calling PriorConcept first and folding reinforcement in; the builder
// just stores whatever it is given (§3.2 "content immutable once
// assigned").
func (b *Builder) UpsertConcept(c *types.Concept) {
	key := c.ID.Bytes()
	b.concepts.Insert(key, c)

	for _, tok := range tokenize(c.Content) {
		b.addToken(tok, c.ID)
	}
	b.addSemantic(c.Semantic, c.ID)
}

// DeleteConcept tombstones a concept at deleteSeq. The tombstone stays in
// the snapshot and is written into every later checkpoint; nothing in this
// repository physically removes tombstones.
func (b *Builder) DeleteConcept(id types.ConceptID, deleteSeq types.Sequence) {
	v, ok := b.concepts.Get(id.Bytes())
	if !ok {
		return
	}
	c := v.(*types.Concept).Clone()
	c.Deleted = true
	c.DeleteSeq = deleteSeq
	b.concepts.Insert(id.Bytes(), c)
}

// UpsertAssociation inserts or updates an edge in both the forward and
// reverse adjacency indexes.
func (b *Builder) UpsertAssociation(a *types.Association) {
	fwdKey := types.AdjacencyKey{Source: a.Source, Type: a.Type}
	b.putBucket(b.adjacency, fwdKey.Bytes(), a.Target, a)

	revKey := types.AdjacencyKey{Source: a.Target, Type: a.Type}
	b.putBucket(b.reverse, revKey.Bytes(), a.Source, a)
}

// DeleteAssociation tombstones an edge in both directions.
func (b *Builder) DeleteAssociation(key types.AssociationKey, deleteSeq types.Sequence) {
	fwdKey := types.AdjacencyKey{Source: key.Source, Type: key.Type}
	if v, ok := b.adjacency.Get(fwdKey.Bytes()); ok {
		bucket := v.(*adjacencyBucket)
		if a, ok := bucket.byKey[key.Target]; ok {
			tomb := a.Clone()
			tomb.Deleted = true
			tomb.DeleteSeq = deleteSeq
			b.putBucket(b.adjacency, fwdKey.Bytes(), key.Target, tomb)
		}
	}
	revKey := types.AdjacencyKey{Source: key.Target, Type: key.Type}
	if v, ok := b.reverse.Get(revKey.Bytes()); ok {
		bucket := v.(*adjacencyBucket)
		if a, ok := bucket.byKey[key.Source]; ok {
			tomb := a.Clone()
			tomb.Deleted = true
			tomb.DeleteSeq = deleteSeq
			b.putBucket(b.reverse, revKey.Bytes(), key.Source, tomb)
		}
	}
}

// SetStrength overwrites a concept's strength in place, used by the decay
// job's mutation path (§4.9): decay is not a re-learn, so it must not touch
// content, confidence or access bookkeeping, only strength.
func (b *Builder) SetStrength(id types.ConceptID, strength float32) {
	v, ok := b.concepts.Get(id.Bytes())
	if !ok {
		return
	}
	c := v.(*types.Concept).Clone()
	c.Strength = strength
	b.concepts.Insert(id.Bytes(), c)
}

// MarkUnindexed flips a concept's Indexed flag to false without touching
// any other field — used when ANN insertion fails for a concept so the
// record stays durable and visible but semantic search skips it (§7).
func (b *Builder) MarkUnindexed(id types.ConceptID) {
	v, ok := b.concepts.Get(id.Bytes())
	if !ok {
		return
	}
	c := v.(*types.Concept).Clone()
	c.Indexed = false
	b.concepts.Insert(id.Bytes(), c)
}

func (b *Builder) putBucket(txn *iradix.Txn, key []byte, target types.ConceptID, assoc *types.Association) {
	var bucket *adjacencyBucket
	if v, ok := txn.Get(key); ok {
		bucket = v.(*adjacencyBucket)
	}
	txn.Insert(key, bucket.with(target, assoc))
}

func (b *Builder) addToken(tok string, id types.ConceptID) {
	var set *idSet
	if v, ok := b.tokens.Get([]byte(tok)); ok {
		set = v.(*idSet)
	}
	b.tokens.Insert([]byte(tok), set.with(id))
}

func (b *Builder) addSemantic(t types.SemanticType, id types.ConceptID) {
	key := []byte{byte(t)}
	var set *idSet
	if v, ok := b.bySemantic.Get(key); ok {
		set = v.(*idSet)
	}
	b.bySemantic.Insert(key, set.with(id))
}

// Finish publishes the built snapshot at the given version (the sequence
// number of the last mutation it contains, per §3.1).
func (b *Builder) Finish(version types.Sequence) *Snapshot {
	return &Snapshot{
		Version:    version,
		concepts:   b.concepts.Commit(),
		adjacency:  b.adjacency.Commit(),
		reverse:    b.reverse.Commit(),
		tokens:     b.tokens.Commit(),
		bySemantic: b.bySemantic.Commit(),
	}
}

// tokenize normalizes content into lower-case word tokens for text_search's
// token index (§4.2).
func tokenize(content []byte) []string {
	fields := strings.FieldsFunc(string(content), func(r rune) bool {
		return !(r == '\'' || r == '-' || (r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
	}
	return out
}
