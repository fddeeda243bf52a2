package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetPutDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("missing key is not an error", func(t *testing.T) {
		v, ok, err := m.Get(ctx, "aid/abc/head")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, m.Put(ctx, "aid/abc/head", []byte("said123")))
		v, ok, err := m.Get(ctx, "aid/abc/head")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "said123", string(v))
	})

	t.Run("del missing key is idempotent", func(t *testing.T) {
		require.NoError(t, m.Del(ctx, "no/such/key"))
	})

	t.Run("del removes", func(t *testing.T) {
		require.NoError(t, m.Put(ctx, "x", []byte("1")))
		require.NoError(t, m.Del(ctx, "x"))
		_, ok, _ := m.Get(ctx, "x")
		assert.False(t, ok)
	})
}

func TestMemory_List(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	keys := []string{"aid/A/kel/000000.icp.cesr", "aid/A/kel/000001.rot.cesr", "aid/B/kel/000000.icp.cesr", "said/xyz.cesr"}
	for _, k := range keys {
		require.NoError(t, m.Put(ctx, k, []byte(k)))
	}

	entries, err := m.List(ctx, "aid/A/", ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "aid/A/kel/000000.icp.cesr", entries[0].Key)
	assert.Equal(t, "aid/A/kel/000001.rot.cesr", entries[1].Key)

	t.Run("limit caps results", func(t *testing.T) {
		entries, err := m.List(ctx, "aid/", ListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("keysOnly omits values", func(t *testing.T) {
		entries, err := m.List(ctx, "said/", ListOptions{KeysOnly: true})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].Value)
	})
}

func TestMemory_BatchAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "a", []byte("1")))

	err := m.Batch(ctx, []Op{
		PutOp("b", []byte("2")),
		DelOp("a"),
		PutOp("c", []byte("3")),
	})
	require.NoError(t, err)

	_, aOk, _ := m.Get(ctx, "a")
	bVal, bOk, _ := m.Get(ctx, "b")
	cVal, cOk, _ := m.Get(ctx, "c")
	assert.False(t, aOk)
	assert.True(t, bOk)
	assert.Equal(t, "2", string(bVal))
	assert.True(t, cOk)
	assert.Equal(t, "3", string(cVal))
}

func TestMemory_IndependentCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	original := []byte("hello")
	require.NoError(t, m.Put(ctx, "k", original))
	original[0] = 'X'

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(v), "backend must not alias caller-owned buffers")
}
