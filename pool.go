package wsgate

import (
	"sync"
	"sync/atomic"
)

// Pool 连接池
//
// 在线连接集合只由 Supervisor 变更（接受时添加、关闭/终止时移除），
// 遍历（广播、探活扫描）对并发移除是安全的。
type Pool struct {
	conns    sync.Map     // connID -> *Conn
	count    atomic.Int64 // 连接数
	maxConns int          // 最大连接数
}

// NewPool 创建连接池
func NewPool(maxConns int) *Pool {
	return &Pool{
		maxConns: maxConns,
	}
}

// Add 添加连接
func (p *Pool) Add(c *Conn) error {
	// 先检查 ID 是否存在，避免计数不一致
	if _, loaded := p.conns.LoadOrStore(c.ID, c); loaded {
		return ErrClientIDExists
	}

	// 递增计数并检查限制
	newCount := p.count.Add(1)
	if int(newCount) > p.maxConns {
		// 超过限制，回滚操作
		p.count.Add(-1)
		p.conns.Delete(c.ID)
		return ErrTooManyConnections
	}

	return nil
}

// Remove 移除连接
func (p *Pool) Remove(connID string) {
	if _, loaded := p.conns.LoadAndDelete(connID); loaded {
		p.count.Add(-1)
	}
}

// removeConn 仅当池中登记的是同一实例时移除
//
// 被拒绝的连接（如 ID 冲突）关闭时不得误删已在池中的同名连接。
func (p *Pool) removeConn(c *Conn) {
	if p.conns.CompareAndDelete(c.ID, c) {
		p.count.Add(-1)
	}
}

// Get 获取连接
func (p *Pool) Get(connID string) (*Conn, bool) {
	value, ok := p.conns.Load(connID)
	if !ok {
		return nil, false
	}
	c, ok := value.(*Conn)
	if !ok {
		return nil, false
	}
	return c, true
}

// Count 获取连接数
func (p *Pool) Count() int {
	return int(p.count.Load())
}

// Range 遍历所有连接
func (p *Pool) Range(f func(*Conn) bool) {
	p.conns.Range(func(_, value any) bool {
		c, ok := value.(*Conn)
		if !ok {
			return true
		}
		return f(c)
	})
}
