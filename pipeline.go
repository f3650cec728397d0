package wsgate

// NextFunc 中间件下一步函数
//
// 参数为当前载荷消息，返回处理结果。链尾的 NextFunc 调用最终处理器；
// 若未设置最终处理器则等价于空操作，返回 (nil, nil)。
type NextFunc func(msg *Message) (any, error)

// Middleware 中间件函数
//
// 中间件可以改写载荷后调用 next、对 next 的结果做后处理，
// 或者不调用 next 直接返回以短路整条链。
type Middleware func(c *Conn, msg *Message, next NextFunc) (any, error)

// nopNext 空操作续延
func nopNext(*Message) (any, error) {
	return nil, nil
}

// compose 组合中间件链
//
// 从后向前构建，保证调用顺序与注册顺序一致。
// 中间件抛出的失败原样向外传播，本层不做重试。
func compose(chain []Middleware, c *Conn, final NextFunc) NextFunc {
	if final == nil {
		final = nopNext
	}

	next := final
	for i := len(chain) - 1; i >= 0; i-- {
		mw, n := chain[i], next
		next = func(m *Message) (any, error) {
			return mw(c, m, n)
		}
	}
	return next
}

// concat 拼接两段中间件链
//
// 拼接顺序有意义：全局链在前，更具体的覆盖链在后。
func concat(global, scoped []Middleware) []Middleware {
	if len(global) == 0 {
		return scoped
	}
	if len(scoped) == 0 {
		return global
	}
	merged := make([]Middleware, 0, len(global)+len(scoped))
	merged = append(merged, global...)
	merged = append(merged, scoped...)
	return merged
}
