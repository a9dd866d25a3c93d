package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTable(t *testing.T) {
	table := newHandleTable()
	h1, h2 := &handle{}, &handle{}

	id1 := table.insert(h1)
	id2 := table.insert(h2)
	assert.NotZero(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, h1.id)
	assert.Equal(t, 2, table.len())

	got, ok := table.get(id1)
	require.True(t, ok)
	assert.Same(t, h1, got)

	removed, ok := table.remove(id1)
	require.True(t, ok)
	assert.Same(t, h1, removed)
	assert.Equal(t, 1, table.len())

	t.Run("stale id is rejected", func(t *testing.T) {
		_, ok := table.get(id1)
		assert.False(t, ok)
		_, ok = table.remove(id1)
		assert.False(t, ok)
	})

	t.Run("reused slot gets a new generation", func(t *testing.T) {
		h3 := &handle{}
		id3 := table.insert(h3)
		assert.NotEqual(t, id1, id3)
		idx1, _, _ := id1.split()
		idx3, _, _ := id3.split()
		assert.Equal(t, idx1, idx3)

		_, ok := table.get(id1)
		assert.False(t, ok)
		got, ok := table.get(id3)
		require.True(t, ok)
		assert.Same(t, h3, got)
	})

	t.Run("zero and out of range ids", func(t *testing.T) {
		_, ok := table.get(0)
		assert.False(t, ok)
		_, ok = table.get(makeHandleID(99, 1))
		assert.False(t, ok)
		_, ok = table.remove(0)
		assert.False(t, ok)
	})

	t.Run("drain empties the table", func(t *testing.T) {
		drained := table.drain()
		assert.Len(t, drained, 2)
		assert.Equal(t, 0, table.len())
		_, ok := table.get(id2)
		assert.False(t, ok)
	})
}
