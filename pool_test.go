package wsgate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAddGetRemove(t *testing.T) {
	p := NewPool(10)

	c := &Conn{ID: "conn-1"}
	require.NoError(t, p.Add(c))
	assert.Equal(t, 1, p.Count())

	got, ok := p.Get("conn-1")
	require.True(t, ok)
	assert.Same(t, c, got)

	p.Remove("conn-1")
	assert.Equal(t, 0, p.Count())
	_, ok = p.Get("conn-1")
	assert.False(t, ok)

	// 重复移除不影响计数
	p.Remove("conn-1")
	assert.Equal(t, 0, p.Count())
}

func TestPoolDuplicateID(t *testing.T) {
	p := NewPool(10)

	require.NoError(t, p.Add(&Conn{ID: "dup"}))
	assert.ErrorIs(t, p.Add(&Conn{ID: "dup"}), ErrClientIDExists)
	assert.Equal(t, 1, p.Count())
}

func TestPoolMaxConnections(t *testing.T) {
	p := NewPool(2)

	require.NoError(t, p.Add(&Conn{ID: "a"}))
	require.NoError(t, p.Add(&Conn{ID: "b"}))
	assert.ErrorIs(t, p.Add(&Conn{ID: "c"}), ErrTooManyConnections)
	assert.Equal(t, 2, p.Count())

	// 回滚后该 ID 可复用
	p.Remove("a")
	assert.NoError(t, p.Add(&Conn{ID: "c"}))
}

func TestPoolRemoveConnInstanceOnly(t *testing.T) {
	p := NewPool(10)
	in := &Conn{ID: "dup"}
	require.NoError(t, p.Add(in))

	// 同名落选实例的移除不影响在池实例
	p.removeConn(&Conn{ID: "dup"})
	got, ok := p.Get("dup")
	require.True(t, ok)
	assert.Same(t, in, got)
	assert.Equal(t, 1, p.Count())

	p.removeConn(in)
	assert.Equal(t, 0, p.Count())
}

func TestPoolRange(t *testing.T) {
	p := NewPool(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Add(&Conn{ID: fmt.Sprintf("conn-%d", i)}))
	}

	seen := make(map[string]bool)
	p.Range(func(c *Conn) bool {
		seen[c.ID] = true
		return true
	})
	assert.Len(t, seen, 5)

	// 提前终止
	var visited int
	p.Range(func(c *Conn) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
