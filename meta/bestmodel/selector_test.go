package bestmodel_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/leaf"
	"github.com/zerfoo/metagraph/meta/bestmodel"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// xorRows builds n deterministic training rows, matching spec.md's
// literal XOR best-model scenario (seed 1337, split_count 4). Row
// shape follows the selector's own input-list ordering: the group
// input (absent here), then the evaluator's real inputs (label), then
// each candidate's inputs (a, b) in first-seen order.
func xorRows(n int, seed int64) []row.Row {
	r := rand.New(rand.NewSource(seed))
	rows := make([]row.Row, n)
	for i := range rows {
		a := r.Intn(2)
		b := r.Intn(2)
		label := a ^ b
		rows[i] = row.Row{label, a, b}
	}
	return rows
}

func TestSelector_XORBestModel(t *testing.T) {
	a := dagexec.NewPlaceholder()
	b := dagexec.NewPlaceholder()
	label := dagexec.NewPlaceholder()

	candidates := []transformer.Preparable{
		leaf.XOR(a, b),
		leaf.IdentityOnA(a, b),
	}

	evaluatorFactory := func(predicted producer.Producer) (transformer.Preparable, error) {
		return leaf.NewAccuracy(predicted, label), nil
	}

	sel, err := bestmodel.New(candidates, evaluatorFactory,
		bestmodel.WithSplitCount(4), bestmodel.WithSeed(1337))
	require.NoError(t, err)

	// The selector's flat input list is the deduplicated union of a,
	// b (candidate inputs) and label (the evaluator's non-predicted
	// input).
	assert.Equal(t, 3, sel.Arity())

	rows := xorRows(1000, 1337)
	reader := rowio.NewSlice(rows)

	ctx := context.Background()
	prep, err := sel.Preparer(ctx, preparer.Context{EstimatedExampleCount: len(rows), Parallelism: 4})
	require.NoError(t, err)
	require.Equal(t, preparer.Batch, prep.Mode())

	it, err := reader.Iterator(ctx)
	require.NoError(t, err)
	for {
		r, err := it.Next(ctx)
		if err != nil {
			break
		}
		require.NoError(t, prep.Process(ctx, r))
	}
	it.Close()

	result, err := prep.Finish(ctx, reader)
	require.NoError(t, err)

	best, ok := result.ForNewData.(transformer.Prepared)
	require.True(t, ok)

	cases := []struct {
		a, b, want int
	}{
		{1, 1, 0},
		{0, 1, 1},
		{1, 0, 1},
		{0, 0, 0},
	}
	for _, c := range cases {
		v, err := best.Apply(ctx, nil, row.Row{c.a, c.b})
		require.NoError(t, err)
		assert.Equal(t, c.want, v, "xor(%d,%d)", c.a, c.b)
	}

	wr, ok := result.ForNewData.(*bestmodel.WithReport)
	require.True(t, ok)
	assert.Equal(t, 0, wr.Report.WinningIndex, "the correct XOR function should win over identity-on-a")
	require.Len(t, wr.Report.Candidates, 2)
	assert.Greater(t, wr.Report.Candidates[0].Evaluation, wr.Report.Candidates[1].Evaluation)
}

func TestSelector_New_RejectsEmptyCandidates(t *testing.T) {
	label := dagexec.NewPlaceholder()
	evaluatorFactory := func(predicted producer.Producer) (transformer.Preparable, error) {
		return leaf.NewAccuracy(predicted, label), nil
	}
	_, err := bestmodel.New(nil, evaluatorFactory)
	assert.Error(t, err)
}

func TestSelector_New_RejectsNilEvaluatorFactory(t *testing.T) {
	a := dagexec.NewPlaceholder()
	b := dagexec.NewPlaceholder()
	_, err := bestmodel.New([]transformer.Preparable{leaf.XOR(a, b)}, nil)
	assert.Error(t, err)
}

func TestSelector_New_RejectsSmallSplitCount(t *testing.T) {
	a := dagexec.NewPlaceholder()
	b := dagexec.NewPlaceholder()
	label := dagexec.NewPlaceholder()
	evaluatorFactory := func(predicted producer.Producer) (transformer.Preparable, error) {
		return leaf.NewAccuracy(predicted, label), nil
	}
	_, err := bestmodel.New([]transformer.Preparable{leaf.XOR(a, b)}, evaluatorFactory, bestmodel.WithSplitCount(1))
	assert.Error(t, err)
}

func TestSelector_CrossInferenceMode(t *testing.T) {
	a := dagexec.NewPlaceholder()
	b := dagexec.NewPlaceholder()
	label := dagexec.NewPlaceholder()

	candidates := []transformer.Preparable{leaf.XOR(a, b), leaf.IdentityOnA(a, b)}
	evaluatorFactory := func(predicted producer.Producer) (transformer.Preparable, error) {
		return leaf.NewAccuracy(predicted, label), nil
	}

	sel, err := bestmodel.New(candidates, evaluatorFactory,
		bestmodel.WithSplitCount(4), bestmodel.WithSeed(7), bestmodel.WithMode(bestmodel.CrossInference))
	require.NoError(t, err)

	rows := xorRows(200, 7)
	reader := rowio.NewSlice(rows)
	ctx := context.Background()

	prep, err := sel.Preparer(ctx, preparer.Context{EstimatedExampleCount: len(rows), Parallelism: 2})
	require.NoError(t, err)

	it, err := reader.Iterator(ctx)
	require.NoError(t, err)
	for {
		r, err := it.Next(ctx)
		if err != nil {
			break
		}
		require.NoError(t, prep.Process(ctx, r))
	}
	it.Close()

	result, err := prep.Finish(ctx, reader)
	require.NoError(t, err)

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
	forNew, ok := result.ForNewData.(transformer.Prepared)
	require.True(t, ok)
	// CROSS_INFERENCE keeps the two outputs distinct objects (the
	// fold-dispatching cross-trained variant vs. the all-data retrain).
	assert.NotSame(t, forPrep, forNew)

	// forPrep must accept rows shaped like the Selector's own input
	// list (label, a, b), the same shape the Selector itself declares
	// via InputList/Arity, not the narrower candidate-only arity the
	// underlying cross-trainer uses internally.
	require.Equal(t, sel.Arity(), forPrep.Arity())
	for _, r := range []row.Row{{0, 0, 0}, {1, 0, 1}, {1, 1, 0}, {0, 1, 1}} {
		v, err := forPrep.Apply(ctx, nil, r)
		require.NoError(t, err)
		assert.Contains(t, []int{0, 1}, v)
	}
}
