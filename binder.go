package wsgate

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate/pkg/logger"
)

// binder 响应绑定器
//
// 处理器返回结果后，按其方法名声明的响应策略投递：
// emit 回发给触发连接，broadcast 发送给所有在线连接。
// 未声明任何策略时默认回发给触发连接。
type binder struct {
	pool *Pool
	log  logger.Logger
}

func newBinder(pool *Pool, log logger.Logger) *binder {
	return &binder{pool: pool, log: log}
}

// apply 应用响应策略
func (b *binder) apply(g *Group, c *Conn, method string, result any) {
	if result == nil {
		return
	}

	payload, err := serializeResult(result)
	if err != nil {
		b.log.Error("serialize handler result failed",
			zap.String("method", method),
			zap.Error(err),
		)
		return
	}

	entries := g.responsesFor(method)
	if len(entries) == 0 {
		// 默认策略：回发给触发连接
		b.emit(c, method, payload)
		return
	}

	for _, d := range entries {
		switch d.Kind {
		case KindEmit:
			b.emit(c, method, payload)
		case KindBroadcast:
			b.broadcast(method, payload)
		}
	}
}

// emit 回发给触发连接
func (b *binder) emit(c *Conn, method string, payload []byte) {
	if err := c.Send(payload); err != nil {
		b.log.Debug("emit failed",
			zap.String("conn_id", c.ID),
			zap.String("method", method),
			zap.Error(err),
		)
	}
}

// broadcast 发送给所有在线连接
//
// 遍历只读取开放状态并逐个发送，连接在遍历途中关闭时跳过，
// 不会使整次广播失败。
func (b *binder) broadcast(method string, payload []byte) {
	b.pool.Range(func(c *Conn) bool {
		if !c.Ready() {
			return true
		}
		if err := c.Send(payload); err != nil {
			b.log.Debug("broadcast send failed",
				zap.String("conn_id", c.ID),
				zap.String("method", method),
				zap.Error(err),
			)
		}
		return true
	})
}

// serializeResult 序列化处理器结果
//
// 结构化结果序列化为 JSON，原始字节与字符串原样发送。
func serializeResult(result any) ([]byte, error) {
	switch v := result.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}
