package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokmz/wsgate"
)

// ErrRateLimited 触发限流
var ErrRateLimited = errors.New("middleware: rate limited")

// RateLimit 创建固定窗口限流中间件
//
// 以 (连接, 事件) 为键在 Redis 中计数，窗口内超过 limit 次即短路拒绝。
// Redis 不可用时放行，限流只作保护不作强一致约束。
func RateLimit(rdb *redis.Client, limit int64, window time.Duration) wsgate.Middleware {
	return func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (any, error) {
		key := fmt.Sprintf("wsgate:ratelimit:%s:%s", c.ID, msg.Event)

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return next(msg)
		}
		if count == 1 {
			rdb.Expire(ctx, key, window)
		}
		if count > limit {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg.Event)
		}

		return next(msg)
	}
}
