package bridge

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerBuffer(t *testing.T) {
	l := NewLedger(nil)

	buf, err := l.NewBuffer([]byte("hello"))
	require.NoError(t, err)
	assert.False(t, buf.IsNull())
	assert.Equal(t, uint64(5), buf.Len)
	assert.Equal(t, uint64(5), buf.Cap)
	assert.Equal(t, []byte("hello"), buf.Bytes())
	assert.Equal(t, 1, l.Outstanding())

	require.NoError(t, l.FreeBuffer(buf))
	assert.Equal(t, 0, l.Outstanding())

	t.Run("second release is rejected", func(t *testing.T) {
		assert.Error(t, l.FreeBuffer(buf))
	})
}

func TestLedgerEmptyBuffer(t *testing.T) {
	l := NewLedger(nil)

	buf, err := l.NewBuffer(nil)
	require.NoError(t, err)
	assert.NotNil(t, buf.Data, "empty success must not look like the absent sentinel")
	assert.Equal(t, uint64(0), buf.Len)
	assert.Equal(t, uint64(1), buf.Cap)
	assert.Empty(t, buf.Bytes())

	require.NoError(t, l.FreeBuffer(buf))
	assert.Equal(t, 0, l.Outstanding())
}

func TestLedgerSentinels(t *testing.T) {
	l := NewLedger(nil)
	assert.NoError(t, l.FreeBuffer(Buffer{}))
	assert.NoError(t, l.FreeString(nil))
	assert.True(t, Buffer{}.IsNull())
	assert.Equal(t, "", GoString(nil))
}

func TestLedgerRejectsBadReleases(t *testing.T) {
	l := NewLedger(nil)

	buf, err := l.NewBuffer([]byte("abc"))
	require.NoError(t, err)
	str, err := l.NewString("abc")
	require.NoError(t, err)

	tests := []struct {
		name    string
		release func() error
	}{
		{"altered length", func() error { return l.FreeBuffer(Buffer{Data: buf.Data, Len: 2, Cap: buf.Cap}) }},
		{"altered capacity", func() error { return l.FreeBuffer(Buffer{Data: buf.Data, Len: buf.Len, Cap: 9}) }},
		{"string released as buffer", func() error { return l.FreeBuffer(Buffer{Data: str, Len: 3, Cap: 4}) }},
		{"buffer released as string", func() error { return l.FreeString(buf.Data) }},
		{"unknown string", func() error {
			foreign := []byte("x\x00")
			return l.FreeString(unsafe.Pointer(&foreign[0]))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.release())
			assert.Equal(t, 2, l.Outstanding(), "a rejected release must leave memory alone")
		})
	}

	require.NoError(t, l.FreeBuffer(buf))
	require.NoError(t, l.FreeString(str))
	assert.Equal(t, 0, l.Outstanding())
}

func TestLedgerString(t *testing.T) {
	l := NewLedger(nil)

	p, err := l.NewString("héllo wörld")
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", GoString(p))

	empty, err := l.NewString("")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Equal(t, "", GoString(empty))

	_, err = l.NewString("a\x00b")
	assert.Error(t, err)
	assert.Equal(t, 2, l.Outstanding())

	require.NoError(t, l.FreeString(p))
	require.NoError(t, l.FreeString(empty))
	assert.Equal(t, 0, l.Outstanding())
}

type countingAllocator struct {
	HeapAllocator
	frees int
	fail  bool
}

func (a *countingAllocator) Malloc(n uint64) unsafe.Pointer {
	if a.fail {
		return nil
	}
	return a.HeapAllocator.Malloc(n)
}

func (a *countingAllocator) Free(p unsafe.Pointer) {
	a.frees++
}

func TestLedgerUsesAllocator(t *testing.T) {
	alloc := &countingAllocator{}
	l := NewLedger(alloc)

	buf, err := l.NewBuffer([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, l.FreeBuffer(buf))
	assert.Equal(t, 1, alloc.frees)

	alloc.fail = true
	_, err = l.NewBuffer([]byte("x"))
	assert.Error(t, err)
	_, err = l.NewString("x")
	assert.Error(t, err)
	assert.Equal(t, 0, l.Outstanding())
}
