package row

import "fmt"

// GroupKey is a comparable surrogate for a group Value, used as a Go
// map key. Group values are only required to support structural
// equality (spec: "any hashable value, compared by structural
// equality"), which rules out using the raw Value as a map key
// directly — a []string group value, for instance, is not Go-comparable.
type GroupKey string

// NewGroupKey derives a GroupKey from a group Value. Two values that
// are structurally equal (same concrete type and recursively equal
// fields) always produce the same GroupKey; this mirrors the canonical
// %#v-based rendering used for deterministic test fixtures elsewhere
// in the module rather than pulling in a generic structural-hash
// library for a single call site.
func NewGroupKey(v Value) GroupKey {
	if IsAbsent(v) {
		return "<absent>"
	}
	return GroupKey(fmt.Sprintf("%#v", v))
}
