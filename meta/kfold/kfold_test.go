package kfold_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/fold"
	"github.com/zerfoo/metagraph/leaf"
	"github.com/zerfoo/metagraph/meta/kfold"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/transformer"
)

// TestCrossTrainer_TrainedIndicator is spec.md's literal k-fold
// trained-indicator scenario: each fold preparer only sees k-1/k of
// the values, so a training row's own fold reports "not seen" while
// the all-data retrain preparer reports "seen".
func TestCrossTrainer_TrainedIndicator(t *testing.T) {
	input := dagexec.NewPlaceholder()
	wrapped := leaf.NewSetRecorder(input)

	const k = 10
	const n = 100
	ct, err := kfold.New(wrapped, kfold.WithK(k), kfold.WithSeed(42))
	require.NoError(t, err)

	rows := make([]row.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = row.Row{i}
	}

	ctx := context.Background()
	prep, err := ct.Preparer(ctx, preparer.Context{EstimatedExampleCount: n, Parallelism: 2})
	require.NoError(t, err)
	require.Equal(t, preparer.Stream, prep.Mode())

	for _, r := range rows {
		require.NoError(t, prep.Process(ctx, r))
	}

	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
	forNew, ok := result.ForNewData.(transformer.Prepared)
	require.True(t, ok)

	folds, ok := kfold.FoldModels(forPrep)
	require.True(t, ok)
	require.Len(t, folds, k)

	// Replaying the same rows in the same order against the
	// for-preparation-data output recomputes the exact training-time
	// fold assignment, since dispatch's per-row counter starts fresh
	// at zero just like training did.
	for i, r := range rows {
		v, err := forPrep.Apply(ctx, nil, r)
		require.NoError(t, err)
		assert.Equal(t, 0, v, "row %d should report unseen in its own fold", i)

		v2, err := forNew.Apply(ctx, nil, r)
		require.NoError(t, err)
		assert.Equal(t, 1, v2, "row %d should report seen in the all-data retrain", i)
	}
}

func TestCrossTrainer_New_RejectsSmallK(t *testing.T) {
	input := dagexec.NewPlaceholder()
	_, err := kfold.New(leaf.NewSetRecorder(input), kfold.WithK(1))
	assert.Error(t, err)
}

func TestCrossTrainer_NoRetrainForNewData_SharesDispatchObject(t *testing.T) {
	input := dagexec.NewPlaceholder()
	ct, err := kfold.New(leaf.NewSetRecorder(input), kfold.WithK(3), kfold.WithRetrainForNewData(false))
	require.NoError(t, err)

	ctx := context.Background()
	prep, err := ct.Preparer(ctx, preparer.Context{EstimatedExampleCount: 9, Parallelism: 1})
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		require.NoError(t, prep.Process(ctx, row.Row{i}))
	}
	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)

	// With retraining disabled, the cross-trainer's for-preparation-data
	// and for-new-data outputs are the very same fold-dispatching
	// object: there is no separate all-data model to prefer.
	assert.Same(t, result.ForPreparationData, result.ForNewData)
	_, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
}

// TestCrossTrainer_GroupedRowsShareFold confirms that rows carrying
// the same explicit group column value are always routed to the same
// fold, unlike the default per-row unique-index grouping.
func TestCrossTrainer_GroupedRowsShareFold(t *testing.T) {
	input := dagexec.NewPlaceholder()
	group := dagexec.NewPlaceholder()

	ct, err := kfold.New(leaf.NewSetRecorder(input), kfold.WithK(4), kfold.WithSeed(11), kfold.WithGroupInput(group))
	require.NoError(t, err)
	assert.Equal(t, 2, ct.Arity())

	ctx := context.Background()
	prep, err := ct.Preparer(ctx, preparer.Context{EstimatedExampleCount: 6, Parallelism: 1})
	require.NoError(t, err)

	groupARows := []row.Row{{1, "groupA"}, {2, "groupA"}, {3, "groupA"}}
	groupBRows := []row.Row{{4, "groupB"}, {5, "groupB"}, {6, "groupB"}}
	for _, r := range append(append([]row.Row{}, groupARows...), groupBRows...) {
		require.NoError(t, prep.Process(ctx, r))
	}

	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)

	foldA := fold.Fold("groupA", 4, 11)
	foldB := fold.Fold("groupB", 4, 11)

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
	folds, ok := kfold.FoldModels(forPrep)
	require.True(t, ok)

	// Every value trained under groupA's fold is absent from that
	// fold's own model, since the whole group was excluded together.
	for _, r := range groupARows {
		v, err := folds[foldA].Apply(ctx, nil, row.Row{r[0]})
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	}
	for _, r := range groupBRows {
		v, err := folds[foldB].Apply(ctx, nil, row.Row{r[0]})
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	}
}
