package producer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerfoo/metagraph/producer"
)

type stubProducer struct {
	constant bool
}

func (s *stubProducer) HasConstantResult() bool { return s.constant }

func TestArena_IDOf_StableAndFirstRegistrationOrder(t *testing.T) {
	a := producer.NewArena()
	p1 := &stubProducer{}
	p2 := &stubProducer{}

	id1 := a.IDOf(p1)
	id2 := a.IDOf(p2)
	assert.NotEqual(t, id1, id2)

	// Re-registering the same pointer returns the same id.
	assert.Equal(t, id1, a.IDOf(p1))
	assert.Equal(t, id2, a.IDOf(p2))
}

func TestArena_Lookup_RoundTrip(t *testing.T) {
	a := producer.NewArena()
	p1 := &stubProducer{}
	p2 := &stubProducer{constant: true}

	id1 := a.IDOf(p1)
	id2 := a.IDOf(p2)

	got1, ok := a.Lookup(id1)
	assert.True(t, ok)
	assert.Same(t, p1, got1)

	got2, ok := a.Lookup(id2)
	assert.True(t, ok)
	assert.Same(t, p2, got2)
}

func TestArena_Lookup_UnknownID(t *testing.T) {
	a := producer.NewArena()
	_, ok := a.Lookup(producer.ID(0))
	assert.False(t, ok)

	a.IDOf(&stubProducer{})
	_, ok = a.Lookup(producer.ID(99))
	assert.False(t, ok)
}

func TestArena_Len_And_All(t *testing.T) {
	a := producer.NewArena()
	assert.Equal(t, 0, a.Len())

	p1 := &stubProducer{}
	p2 := &stubProducer{}
	a.IDOf(p1)
	a.IDOf(p2)
	a.IDOf(p1) // re-registration must not grow the arena

	assert.Equal(t, 2, a.Len())
	all := a.All()
	assert.Equal(t, []producer.Producer{p1, p2}, all)
}
