package bitset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SetCount(t *testing.T) {
	b := New(128)

	assert.Equal(t, uint(0), b.Count())

	b.Insert(0)
	b.Insert(42)
	assert.Equal(t, uint(2), b.Count())

	b.Remove(0)
	assert.Equal(t, uint(1), b.Count())
}

func Test_SetTraverse(t *testing.T) {
	b := New(600)
	b.Insert(0)
	b.Insert(42)
	b.Insert(512)

	bits := make([]uint32, 0)
	b.Traverse(func(idx uint32) bool {
		bits = append(bits, idx)
		return true
	})

	assert.Equal(t, []uint32{0, 42, 512}, bits)
}

func Test_SetPartialTraverse(t *testing.T) {
	b := New(600)
	b.Insert(42)
	b.Insert(84)
	b.Insert(512)

	bits := make([]uint32, 0)
	b.Traverse(func(idx uint32) bool {
		bits = append(bits, idx)
		return false
	})

	assert.Equal(t, []uint32{42}, bits)
}

func Test_SetIter(t *testing.T) {
	b := New(600)
	b.Insert(0)
	b.Insert(42)
	b.Insert(512)

	bits := slices.Collect(b.Iter())

	assert.Equal(t, []uint32{0, 42, 512}, bits)
}

func Test_SetAsSlice(t *testing.T) {
	b := New(64)
	b.Insert(0)
	b.Insert(42)

	assert.Equal(t, []uint32{0, 42}, b.AsSlice())
}

func Test_SetFirst(t *testing.T) {
	b := New(64)

	_, ok := b.First()
	assert.False(t, ok)

	b.Insert(7)
	b.Insert(3)

	idx, ok := b.First()
	assert.True(t, ok)
	assert.Equal(t, uint32(3), idx)
}

func Test_SetPanicsOnOutOfRangeIndex(t *testing.T) {
	b := New(8)

	assert.NotPanics(t, func() { b.Insert(0) })
	assert.NotPanics(t, func() { b.Insert(7) })
	assert.Panics(t, func() { b.Insert(8) })
}
