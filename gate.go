package wsgate

import (
	"context"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate/pkg/logger"
)

// UpgradePredicate 升级鉴权谓词
//
// 在握手完成前对升级请求求值，每次升级最多求值一次。
// 本层不叠加多个谓词，组合逻辑由谓词自身负责；
// 也不内置超时，需要限时的调用方自行包装 ctx。
type UpgradePredicate func(ctx context.Context, r *http.Request) (bool, error)

// gate 升级闸口
type gate struct {
	pred atomic.Pointer[UpgradePredicate]
	log  logger.Logger
}

func newGate(log logger.Logger) *gate {
	return &gate{log: log}
}

// install 安装谓词，传 nil 表示移除并恢复无条件放行
func (g *gate) install(p UpgradePredicate) {
	if p == nil {
		g.pred.Store(nil)
		return
	}
	g.pred.Store(&p)
}

// allow 求值升级决定
//
// 谓词返回 false、返回错误或 panic 三者对调用方不可区分，均视为拒绝。
func (g *gate) allow(ctx context.Context, r *http.Request) (allowed bool) {
	p := g.pred.Load()
	if p == nil {
		return true
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.log.Warn("upgrade predicate panicked",
				zap.Any("panic", rec),
				zap.String("remote", r.RemoteAddr),
			)
			allowed = false
		}
	}()

	ok, err := (*p)(ctx, r)
	if err != nil {
		g.log.Warn("upgrade rejected",
			zap.Error(err),
			zap.String("remote", r.RemoteAddr),
		)
		return false
	}
	if !ok {
		g.log.Warn("upgrade rejected by predicate",
			zap.String("remote", r.RemoteAddr),
		)
	}
	return ok
}

// destroySocket 强制销毁底层套接字
//
// 拒绝升级时对端只能观察到传输层的突然断开；
// ResponseWriter 不支持劫持时退化为 403。
func destroySocket(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	w.WriteHeader(http.StatusForbidden)
}
