package middleware

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/tokmz/wsgate"
)

// Dedupe 创建重复请求抑制中间件
//
// 用布隆过滤器记录已见过的 RequestID，疑似重复的请求直接短路为空结果。
// 布隆过滤器存在误判率（fpRate），只用于抑制客户端重发，不保证精确一次。
// 无 RequestID 的通知消息不参与判重。
func Dedupe(capacity uint, fpRate float64) wsgate.Middleware {
	filter := bloom.NewWithEstimates(capacity, fpRate)
	var mu sync.Mutex

	return func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (any, error) {
		if msg.RequestID == "" {
			return next(msg)
		}

		key := []byte(c.ID + ":" + msg.RequestID)

		mu.Lock()
		seen := filter.Test(key)
		if !seen {
			filter.Add(key)
		}
		mu.Unlock()

		if seen {
			return nil, nil
		}
		return next(msg)
	}
}
