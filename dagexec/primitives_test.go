package dagexec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
)

func TestPlaceholder_HasConstantResult(t *testing.T) {
	assert.False(t, dagexec.NewPlaceholder().HasConstantResult())
}

func TestConstant_HasConstantResult(t *testing.T) {
	c := dagexec.NewConstant(42)
	assert.True(t, c.HasConstantResult())
	assert.Equal(t, 42, c.Value)
}

func TestArrayElement_Apply(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	e := dagexec.NewArrayElement(ph, 1)
	assert.Equal(t, 1, e.Index())
	assert.Equal(t, 1, e.Arity())
	assert.Equal(t, []producer.Producer{ph}, e.InputList())

	arr := []row.Value{"a", "b", "c"}
	v, err := e.Apply(context.Background(), nil, row.Row{arr})
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestArrayElement_Apply_OutOfRange(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	e := dagexec.NewArrayElement(ph, 5)
	_, err := e.Apply(context.Background(), nil, row.Row{[]row.Value{1, 2}})
	assert.Error(t, err)
}

func TestArrayElement_Apply_WrongShape(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	e := dagexec.NewArrayElement(ph, 0)

	_, err := e.Apply(context.Background(), nil, row.Row{1, 2})
	assert.Error(t, err, "more than one input slot should fail")

	_, err = e.Apply(context.Background(), nil, row.Row{"not-an-array"})
	assert.Error(t, err, "non-array-valued slot should fail")
}

func TestArrayElement_WithInputs_RequiresPlaceholder(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	e := dagexec.NewArrayElement(ph, 0)

	assert.Panics(t, func() { e.WithInputs() })
	assert.Panics(t, func() { e.WithInputs(dagexec.NewConstant(1)) })

	other := dagexec.NewPlaceholder()
	rebuilt := e.WithInputs(other)
	re, ok := rebuilt.(*dagexec.ArrayElement)
	require.True(t, ok)
	assert.Equal(t, 0, re.Index())
}

func TestVariadicList_Apply_PacksInputs(t *testing.T) {
	ph := dagexec.NewPlaceholder()
	a := dagexec.NewArrayElement(ph, 0)
	b := dagexec.NewArrayElement(ph, 1)
	list := dagexec.NewVariadicList(a, b)

	assert.Equal(t, 2, list.Arity())
	assert.Len(t, list.InputList(), 2)

	v, err := list.Apply(context.Background(), nil, row.Row{10, 20})
	require.NoError(t, err)
	packed, ok := v.([]row.Value)
	require.True(t, ok)
	assert.Equal(t, []row.Value{10, 20}, packed)
}
