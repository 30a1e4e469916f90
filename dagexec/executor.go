package dagexec

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// Executor drives preparation of a Graph's Preparable nodes in
// topological order, evaluating each node's own input row lazily from
// the sub-DAG's single array-valued Placeholder. The Best-Model
// Selector's preparer constructs one inside its Finish to prepare its
// internal evaluation sub-DAG.
type Executor struct {
	Parallelism int
}

// NewExecutor creates an Executor with the given available parallelism.
func NewExecutor(parallelism int) *Executor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Executor{Parallelism: parallelism}
}

// Prepare runs every Preparable node of g, in topological order, against
// reader (whose rows are the full array-valued selector inputs), and
// returns the for-preparation-data Prepared transformer for every
// non-root node in the graph, already-Prepared transformers
// (ArrayElement, VariadicList) included, so callers can uniformly look
// those nodes up by producer.Producer key. Root nodes (Placeholder,
// Constant) have no entry in the map.
func (e *Executor) Prepare(ctx context.Context, g *Graph, reader rowio.Reader) (map[producer.Producer]transformer.Prepared, error) {
	prepared := make(map[producer.Producer]transformer.Prepared)

	for _, node := range g.Nodes() {
		switch n := node.(type) {
		case *Placeholder, *Constant:
			// Roots carry no Prepared wrapper; evalValue special-cases
			// them directly.
			continue
		case transformer.Preparable:
			out, err := e.prepareNode(ctx, n, reader, prepared)
			if err != nil {
				return nil, err
			}
			prepared[node] = out
		case transformer.Prepared:
			prepared[node] = n
		default:
			return nil, dagerr.New(dagerr.Configuration, "dagexec.Executor.Prepare", 0,
				fmt.Errorf("unrecognized sub-DAG node type %T", node))
		}
	}

	return prepared, nil
}

// Eval resolves a graph output's value for a single full array-valued
// row, given the prepared map produced by Prepare. Used to extract the
// constant evaluation values after a Best-Model Selector sub-DAG pass.
func (e *Executor) Eval(ctx context.Context, p producer.Producer, full row.Row, prepared map[producer.Producer]transformer.Prepared) (row.Value, error) {
	return evalValue(ctx, p, full, prepared), nil
}

func (e *Executor) prepareNode(ctx context.Context, n transformer.Preparable, reader rowio.Reader, prepared map[producer.Producer]transformer.Prepared) (transformer.Prepared, error) {
	pctx := preparer.Context{Parallelism: e.Parallelism}
	prep, err := n.Preparer(ctx, pctx)
	if err != nil {
		return nil, dagerr.New(dagerr.Configuration, "dagexec.Executor.prepareNode", 0, err)
	}

	inputs := n.InputList()

	projected := reader.Map(func(full row.Row) row.Row {
		return evalInputRow(ctx, inputs, full, prepared)
	})

	// Every preparer, Stream or Batch, sees the data once via Process
	// as it streams past; Batch preparers additionally get a
	// replayable reader at Finish for any further passes they need.
	it, err := projected.Iterator(ctx)
	if err != nil {
		return nil, err
	}

	for {
		r, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			it.Close()
			return nil, err
		}
		if err := prep.Process(ctx, r); err != nil {
			it.Close()
			return nil, dagerr.New(dagerr.InnerTask, "dagexec.Executor.prepareNode", 0, err)
		}
	}
	it.Close()

	var finishReader rowio.Reader
	if prep.Mode() == preparer.Batch {
		finishReader = projected
	}

	result, err := prep.Finish(ctx, finishReader)
	if err != nil {
		return nil, dagerr.New(dagerr.InnerTask, "dagexec.Executor.prepareNode", 0, err)
	}
	return asPrepared(result)
}

func asPrepared(result preparer.Result) (transformer.Prepared, error) {
	out, ok := result.ForPreparationData.(transformer.Prepared)
	if !ok {
		return nil, dagerr.New(dagerr.Reduction, "dagexec.asPrepared", 0,
			fmt.Errorf("preparer result for-preparation-data is not a transformer.Prepared (%T)", result.ForPreparationData))
	}
	return out, nil
}

// evalInputRow computes the row a node's InputList expects, given the
// full array-valued selector row, by resolving each parent producer.
func evalInputRow(ctx context.Context, inputs []producer.Producer, full row.Row, prepared map[producer.Producer]transformer.Prepared) row.Row {
	out := make(row.Row, len(inputs))
	for i, p := range inputs {
		out[i] = evalValue(ctx, p, full, prepared)
	}
	return out
}

// evalValue resolves a single producer's value for the current full
// row. Roots are handled directly; transformers recurse through their
// own input list and, if already prepared, Apply. A value that cannot
// be resolved (e.g. an out-of-range ArrayElement index, a node not yet
// prepared) degrades to row.Absent rather than panicking: this is
// internal sub-DAG plumbing over a small, statically built graph, not
// a place to surface fresh error types.
func evalValue(ctx context.Context, p producer.Producer, full row.Row, prepared map[producer.Producer]transformer.Prepared) row.Value {
	switch n := p.(type) {
	case *Placeholder:
		out := make([]row.Value, len(full))
		copy(out, full)
		return out
	case *Constant:
		return n.Value
	case transformer.Transformer:
		prep, ok := prepared[p]
		if !ok {
			return row.Absent
		}
		depRow := evalInputRow(ctx, n.InputList(), full, prepared)
		v, err := prep.Apply(ctx, nil, depRow)
		if err != nil {
			return row.Absent
		}
		return v
	default:
		return row.Absent
	}
}
