package wsgate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate/pkg/logger"
)

// heartbeat 探活监控
//
// 每个连接的状态机：ALIVE ⇄ SUSPECT → TERMINATED。
// 每轮扫描把 ALIVE 连接置为 SUSPECT 并发送 ping；
// 扫描开始时仍为 SUSPECT 的连接（上一轮 ping 未应答）被强制终止，
// 且不再发送新的 ping。收到 pong 回到 ALIVE。
// 即：连接连续错过两个探活周期才会被终止。
type heartbeat struct {
	pool     *Pool
	interval time.Duration
	log      logger.Logger
}

func newHeartbeat(pool *Pool, interval time.Duration, log logger.Logger) *heartbeat {
	return &heartbeat{
		pool:     pool,
		interval: interval,
		log:      log,
	}
}

// run 周期扫描，ctx 取消时停止
func (h *heartbeat) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep 单轮扫描
func (h *heartbeat) sweep() {
	h.pool.Range(func(c *Conn) bool {
		if c.IsClosed() {
			return true
		}

		// ALIVE -> SUSPECT，发送探活
		if c.alive.CompareAndSwap(true, false) {
			if err := c.ping(); err != nil {
				h.log.Debug("liveness probe failed",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
			}
			return true
		}

		// 上一轮探活未应答，强制终止
		h.log.Info("connection terminated by liveness monitor",
			zap.String("conn_id", c.ID),
		)
		c.close(ErrLivenessTimeout)
		return true
	})
}
