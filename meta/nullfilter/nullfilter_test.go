package nullfilter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/leaf"
	"github.com/zerfoo/metagraph/meta/nullfilter"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/transformer"
)

// TestWrapper_Idempotence is spec.md's literal Null-Filtered idempotence
// scenario: rows [(∅,), (3,), (2,), (∅,), (1,), (3,), (∅,)] against a
// wrapped Rank transformer.
func TestWrapper_Idempotence(t *testing.T) {
	input := dagexec.NewPlaceholder()
	w := nullfilter.New(leaf.NewRank(input))
	assert.False(t, w.HasConstantResult())

	ctx := context.Background()
	prep, err := w.Preparer(ctx, preparer.Context{EstimatedExampleCount: 7})
	require.NoError(t, err)
	require.Equal(t, preparer.Stream, prep.Mode())

	rows := []row.Row{
		{row.Absent}, {3}, {2}, {row.Absent}, {1}, {3}, {row.Absent},
	}
	for _, r := range rows {
		require.NoError(t, prep.Process(ctx, r))
	}

	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)

	want := []row.Value{row.Absent, 2, 1, row.Absent, 0, 2, row.Absent}
	for i, r := range rows {
		v, err := forPrep.Apply(ctx, nil, r)
		require.NoError(t, err)
		if row.IsAbsent(want[i]) {
			assert.True(t, row.IsAbsent(v), "row %d", i)
		} else {
			assert.Equal(t, want[i], v, "row %d", i)
		}
	}
}

// TestWrapper_ReductionThroughConstant is spec.md's literal
// reduction-through-constant scenario: Null-Filtered wrapping a
// variadic list of (placeholder, constant_absent) reduces to a
// constant-absent producer, regardless of its input row.
func TestWrapper_ReductionThroughConstant(t *testing.T) {
	placeholder := dagexec.NewPlaceholder()
	constAbsent := dagexec.NewConstant(row.Absent)
	variadic := dagexec.NewVariadicList(placeholder, constAbsent)

	w := nullfilter.New(variadic)
	assert.True(t, w.HasConstantResult(), "an absent compile-time constant input reduces the wrapper to a constant-absent producer")

	ctx := context.Background()
	prep, err := w.Preparer(ctx, preparer.Context{})
	require.NoError(t, err)
	require.Equal(t, preparer.Stream, prep.Mode())
	require.NoError(t, prep.Process(ctx, row.Row{42, row.Absent}))

	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
	assert.True(t, forPrep.HasConstantResult())

	v, err := forPrep.Apply(ctx, nil, row.Row{42, row.Absent})
	require.NoError(t, err)
	assert.True(t, row.IsAbsent(v))
}

func TestWrapper_FilteredApplicationDisabled_UsesWrappedValue(t *testing.T) {
	input := dagexec.NewPlaceholder()
	w := nullfilter.New(leaf.NewRank(input), nullfilter.WithFilteredApplication(false))

	ctx := context.Background()
	prep, err := w.Preparer(ctx, preparer.Context{})
	require.NoError(t, err)
	for _, v := range []row.Value{1, 2, 3} {
		require.NoError(t, prep.Process(ctx, row.Row{v}))
	}
	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)
	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)

	// With filtered application turned off, an absent input is passed
	// straight through to the wrapped Rank transformer, which itself
	// returns absent for an absent input.
	v, err := forPrep.Apply(ctx, nil, row.Row{row.Absent})
	require.NoError(t, err)
	assert.True(t, row.IsAbsent(v))
}

func TestWrapper_CustomFallbackValue(t *testing.T) {
	input := dagexec.NewPlaceholder()
	w := nullfilter.New(leaf.NewRank(input), nullfilter.WithFallbackValue(-1))

	ctx := context.Background()
	prep, err := w.Preparer(ctx, preparer.Context{})
	require.NoError(t, err)
	require.NoError(t, prep.Process(ctx, row.Row{5}))
	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)
	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)

	v, err := forPrep.Apply(ctx, nil, row.Row{row.Absent})
	require.NoError(t, err)
	assert.Equal(t, -1, v)
}

func TestWrapper_ApplyMinibatch_SplicesFallbackAtAbsentPositions(t *testing.T) {
	input := dagexec.NewPlaceholder()
	w := nullfilter.New(leaf.NewRank(input))

	ctx := context.Background()
	prep, err := w.Preparer(ctx, preparer.Context{})
	require.NoError(t, err)
	for _, v := range []row.Value{10, 20, 30} {
		require.NoError(t, prep.Process(ctx, row.Row{v}))
	}
	result, err := prep.Finish(ctx, nil)
	require.NoError(t, err)
	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	require.True(t, ok)
	applier, ok := forPrep.(transformer.MinibatchApplier)
	require.True(t, ok)

	cols := [][]row.Value{{10, row.Absent, 30, row.Absent, 20}}
	out := make([]row.Value, 5)
	require.NoError(t, applier.ApplyMinibatch(ctx, nil, cols, out))

	assert.Equal(t, 0, out[0])
	assert.True(t, row.IsAbsent(out[1]))
	assert.Equal(t, 2, out[2])
	assert.True(t, row.IsAbsent(out[3]))
	assert.Equal(t, 1, out[4])
}
