package row_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerfoo/metagraph/row"
)

func TestIsAbsent(t *testing.T) {
	assert.True(t, row.IsAbsent(row.Absent))
	assert.False(t, row.IsAbsent(nil))
	assert.False(t, row.IsAbsent(0))
	assert.False(t, row.IsAbsent(""))
}

func TestRow_HasAbsent(t *testing.T) {
	assert.False(t, row.Row{1, 2, 3}.HasAbsent())
	assert.True(t, row.Row{1, row.Absent, 3}.HasAbsent())
	assert.False(t, row.Row{}.HasAbsent())
}

func TestRow_Without(t *testing.T) {
	r := row.Row{1, 2, 3}
	assert.Equal(t, row.Row{2, 3}, r.Without(0))
	assert.Equal(t, row.Row{1, 3}, r.Without(1))
	assert.Equal(t, row.Row{1, 2}, r.Without(2))
}

func TestRow_String(t *testing.T) {
	assert.Equal(t, "[1 2]", row.Row{1, 2}.String())
}

func TestNewGroupKey_StructuralEquality(t *testing.T) {
	assert.Equal(t, row.NewGroupKey("a"), row.NewGroupKey("a"))
	assert.NotEqual(t, row.NewGroupKey("a"), row.NewGroupKey("b"))
	assert.Equal(t, row.NewGroupKey(1), row.NewGroupKey(1))
	assert.NotEqual(t, row.NewGroupKey(1), row.NewGroupKey("1"), "distinct concrete types must not collide")
}

func TestNewGroupKey_Absent(t *testing.T) {
	assert.Equal(t, row.NewGroupKey(row.Absent), row.NewGroupKey(row.Absent))
}
