package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate"
	"github.com/tokmz/wsgate/pkg/logger"
)

// LoggingConfig 日志中间件配置
type LoggingConfig struct {
	// SkipEvents 跳过记录的事件名
	SkipEvents []string
}

// Logging 创建分发日志中间件
//
// 记录事件名、连接 ID、耗时与结果状态。
func Logging(log logger.Logger, cfgs ...*LoggingConfig) wsgate.Middleware {
	skip := make(map[string]struct{})
	if len(cfgs) > 0 && cfgs[0] != nil {
		for _, e := range cfgs[0].SkipEvents {
			skip[e] = struct{}{}
		}
	}

	return func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (any, error) {
		if _, ok := skip[msg.Event]; ok {
			return next(msg)
		}

		start := time.Now()
		result, err := next(msg)
		cost := time.Since(start)

		fields := []zap.Field{
			zap.String("conn_id", c.ID),
			zap.String("event", msg.Event),
			zap.Duration("cost", cost),
		}
		if err != nil {
			log.Error("dispatch failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("dispatch", fields...)
		}
		return result, err
	}
}
