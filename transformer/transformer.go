// Package transformer defines the contract every DAG node beyond a
// bare root obeys: an ordered input list, an arity, and one of two
// variants (Prepared, Preparable). This collapses the source's deep
// inheritance hierarchy (AbstractPreparable -> AbstractPreparableVariadic
// -> ...) into a single interface plus optional capability interfaces,
// the same shape graph.Node[T] uses for its own optional Parameters()
// hook.
package transformer

import (
	"context"

	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
)

// Transformer is a Child producer: it has one or more parent producers
// ("input list") and can be rebuilt over a new set of parents.
type Transformer interface {
	producer.Producer

	// InputList returns the ordered parent producers.
	InputList() []producer.Producer

	// WithInputs returns a copy of this transformer with its parent
	// positions replaced. The caller is responsible for supplying a
	// matching arity; some implementations panic on arity mismatch,
	// others do not check it.
	WithInputs(inputs ...producer.Producer) Transformer

	// Arity is the length of the input list.
	Arity() int
}

// Prepared is a transformer that is a plain function from a tuple of
// parent values to a single output value.
type Prepared interface {
	Transformer

	// Apply computes the output value for one row. cache is whatever
	// CacheFactory produced for the current execution, or nil if the
	// transformer does not implement CacheFactory.
	Apply(ctx context.Context, cache any, r row.Row) (row.Value, error)
}

// Preparable is a transformer that is a factory for a Preparer: the
// object that consumes example rows and, when training finishes,
// yields two Prepared transformers.
type Preparable interface {
	Transformer

	// Preparer constructs the stateful accumulator that will train
	// this transformer. pctx exposes the executor resources (available
	// parallelism, estimated example count) a preparer may need.
	Preparer(ctx context.Context, pctx preparer.Context) (preparer.Preparer, error)
}

// CacheFactory is implemented by a Prepared transformer that wants a
// per-execution cache object threaded through Apply calls. The cache
// must be safe for concurrent Apply calls and must not be depended on
// for correctness: the executor may recreate it any number of times
// per execution.
type CacheFactory interface {
	NewCache() any
}

// CacheCloser is implemented by a Prepared transformer whose cache
// needs best-effort cleanup at the end of an execution.
type CacheCloser interface {
	CloseCache(cache any) error
}

// MinibatchApplier is an optional bulk entry point. cols is a
// column-major view: cols[inputIndex][rowIndex]. Implementations write
// one output value per row into out.
type MinibatchApplier interface {
	ApplyMinibatch(ctx context.Context, cache any, cols [][]row.Value, out []row.Value) error
}

// PreferredMinibatchSizer lets a transformer hint a minibatch size to
// the executor; executors are free to ignore it.
type PreferredMinibatchSizer interface {
	PreferredMinibatchSize() int
}

// ConstantResult marks a transformer whose output does not depend on
// its inputs: one output value is computed once and reused. The
// producer.Producer.HasConstantResult method is the load-bearing
// check; this interface exists so call sites can assert capability
// without re-deriving it from the boolean.
type ConstantResult interface {
	Prepared
	HasConstantResult() bool
}

// IdempotentPreparer marks a Preparable whose training is insensitive
// to duplicate rows (though not necessarily to row order).
type IdempotentPreparer interface {
	Preparable
	IdempotentPreparer() bool
}
