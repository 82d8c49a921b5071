package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_Basics(t *testing.T) {
	s := New(5)
	s.Set(1)
	s.SetRange(3, 5)

	assert.Equal(t, 3, s.Cardinality())
	assert.True(t, s.Get(1))
	assert.False(t, s.Get(2))
	assert.False(t, s.Get(100))
	assert.Equal(t, []int{1, 3, 4}, s.Positions())
	assert.Equal(t, "{1, 3, 4}", s.String())

	assert.Equal(t, 0, s.NextClear(0))
	assert.Equal(t, 2, s.NextClear(1))
	assert.Equal(t, 5, s.NextClear(3))
	assert.Equal(t, 3, s.NextSet(2))
	assert.Equal(t, -1, s.NextSet(5))
}

func TestSet_OrDoesNotMutate(t *testing.T) {
	a := Span(4, 0, 2)
	b := Span(4, 2, 3)
	u := a.Or(b)

	assert.Equal(t, 3, u.Cardinality())
	assert.Equal(t, 2, a.Cardinality())
	assert.False(t, a.Intersects(b))
	assert.True(t, u.Intersects(b))
}

func TestSet_EqualityAndKey(t *testing.T) {
	a := New(10)
	a.Set(70)
	b := Set{}
	b.Set(70)
	c := New(200)
	c.Set(70)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.Equal(t, a.Key(), c.Key())
	assert.Equal(t, a.Hash(), c.Hash())

	c.Set(1)
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSet_Clone(t *testing.T) {
	a := Span(3, 0, 1)
	b := a.Clone()
	b.Set(2)
	assert.Equal(t, 1, a.Cardinality())
	assert.Equal(t, 2, b.Cardinality())
}
