package middleware

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate"
	"github.com/tokmz/wsgate/pkg/logger"
)

// Recovery 创建 panic 恢复中间件
//
// 捕获处理器与后续中间件中的 panic，记录堆栈并转换为普通错误，
// 使故障隔离在单次分发内。
func Recovery(log logger.Logger) wsgate.Middleware {
	return func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("handler panic recovered",
					zap.String("conn_id", c.ID),
					zap.String("event", msg.Event),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				result = nil
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return next(msg)
	}
}
