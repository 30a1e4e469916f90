package dagerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/producer"
)

func TestKind_String(t *testing.T) {
	cases := map[dagerr.Kind]string{
		dagerr.Configuration: "configuration",
		dagerr.Argument:      "argument",
		dagerr.Reduction:     "reduction",
		dagerr.InnerTask:     "inner_task",
		dagerr.Cancelled:     "cancelled",
		dagerr.Kind(99):      "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestNew_And_Error(t *testing.T) {
	cause := errors.New("boom")
	err := dagerr.New(dagerr.Reduction, "selector.finish", producer.ID(3), cause)

	assert.Equal(t, dagerr.Reduction, err.Kind)
	assert.Equal(t, "selector.finish", err.Op)
	assert.Equal(t, producer.ID(3), err.Producer)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "selector.finish")
	assert.Contains(t, err.Error(), "reduction")
	assert.Contains(t, err.Error(), "boom")
}

func TestNew_NilCause_OmitsDetail(t *testing.T) {
	err := dagerr.New(dagerr.Argument, "kfold.WithK", 0, nil)
	assert.Equal(t, "kfold.WithK: argument", err.Error())
	assert.NoError(t, err.Unwrap())
}

func TestIs(t *testing.T) {
	err := dagerr.New(dagerr.Configuration, "bestmodel.New", 0, nil)
	assert.True(t, dagerr.Is(err, dagerr.Configuration))
	assert.False(t, dagerr.Is(err, dagerr.Argument))
	assert.False(t, dagerr.Is(errors.New("plain error"), dagerr.Configuration))
}

func TestIs_WrappedError(t *testing.T) {
	inner := dagerr.New(dagerr.InnerTask, "kfold.Finish", producer.ID(1), errors.New("worker failed"))
	wrapped := fmt.Errorf("wrapping: %w", inner)

	assert.True(t, dagerr.Is(wrapped, dagerr.InnerTask))
	var asErr *dagerr.Error
	require := assert.New(t)
	require.True(errors.As(wrapped, &asErr))
	require.Equal(producer.ID(1), asErr.Producer)
}
