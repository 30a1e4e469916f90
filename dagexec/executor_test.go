package dagexec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/leaf"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// TestExecutor_PrepareAndEval builds a tiny sub-DAG (placeholder -> two
// array accessors -> leaf.XOR) and drives it the same way the
// Best-Model Selector's own sub-DAG evaluation does: Prepare records
// every node's Prepared form, Eval resolves the designated output for
// a single full row.
func TestExecutor_PrepareAndEval(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	a := dagexec.NewArrayElement(ph, 0)
	b := dagexec.NewArrayElement(ph, 1)
	xor := leaf.XOR(a, b)

	builder := dagexec.NewBuilder()
	builder.AddNode(ph)
	builder.AddNode(a, ph)
	builder.AddNode(b, ph)
	builder.AddNode(xor, a, b)

	g, err := builder.Build(xor)
	require.NoError(t, err)

	reader := rowio.NewSlice([]row.Row{
		{1, 1},
		{0, 1},
	})

	exec := dagexec.NewExecutor(1)
	ctx := context.Background()
	prepared, err := exec.Prepare(ctx, g, reader)
	require.NoError(t, err)

	// Accessor nodes are present in the map too (ArrayElement already
	// satisfies transformer.Prepared); the placeholder root is not.
	_, ok := prepared[a]
	assert.True(t, ok)
	_, ok = prepared[b]
	assert.True(t, ok)
	_, ok = prepared[xor]
	assert.True(t, ok)

	v, err := exec.Eval(ctx, xor, row.Row{1, 0}, prepared)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = exec.Eval(ctx, xor, row.Row{1, 1}, prepared)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestExecutor_Eval_Constant(t *testing.T) {
	c := dagexec.NewConstant("fixed")
	exec := dagexec.NewExecutor(1)
	v, err := exec.Eval(context.Background(), c, row.Row{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", v)
}

func TestExecutor_Eval_UnpreparedNodeDegradesToAbsent(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	a := dagexec.NewArrayElement(ph, 0)
	b := dagexec.NewArrayElement(ph, 1)
	xor := leaf.XOR(a, b)

	exec := dagexec.NewExecutor(1)
	empty := map[producer.Producer]transformer.Prepared{}
	v, err := exec.Eval(context.Background(), xor, row.Row{1, 0}, empty)
	require.NoError(t, err)
	assert.True(t, row.IsAbsent(v), "a node absent from the prepared map degrades to absent rather than erroring")
}
