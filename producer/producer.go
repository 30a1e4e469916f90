// Package producer defines the base DAG node contract and the arena
// that assigns every distinct producer value a stable integer id,
// replacing the source's IdentityHashMap-based node identity.
package producer

// ID is a stable identifier for a producer within an Arena. The zero
// value means "no producer" (used by dagerr.Error when a failure is
// not attributable to a specific node).
type ID int

// Producer is any node that yields a per-row value. Roots (Placeholder,
// Constant, per-row index generators) have no inputs; Child producers
// (transformer.Transformer) have one or more.
type Producer interface {
	// HasConstantResult reports whether this producer's output does
	// not depend on its inputs, enabling the constant-reduction
	// optimization used by the Best-Model Selector.
	HasConstantResult() bool
}

// Arena hands out stable integer ids for producers encountered during
// DAG construction, in first-registration order. Two producer values
// that are == (same underlying pointer, for the pointer-typed
// producers every package here constructs) always get the same id.
type Arena struct {
	ids   map[Producer]ID
	order []Producer
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{ids: make(map[Producer]ID)}
}

// IDOf returns the stable id for p, registering it on first sight.
func (a *Arena) IDOf(p Producer) ID {
	if id, ok := a.ids[p]; ok {
		return id
	}
	a.order = append(a.order, p)
	id := ID(len(a.order))
	a.ids[p] = id
	return id
}

// Lookup returns the producer registered under id, if any.
func (a *Arena) Lookup(id ID) (Producer, bool) {
	if id < 1 || int(id) > len(a.order) {
		return nil, false
	}
	return a.order[id-1], true
}

// Len returns the number of distinct producers registered so far.
func (a *Arena) Len() int {
	return len(a.order)
}

// All returns every registered producer in registration order.
func (a *Arena) All() []Producer {
	out := make([]Producer, len(a.order))
	copy(out, a.order)
	return out
}
