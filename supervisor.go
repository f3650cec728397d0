package wsgate

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/wsgate/pkg/logger"
)

// Supervisor 连接监督器
//
// 网关顶层组件：持有连接池、升级闸口、探活监控与事件路由，
// 负责每条新连接的接入编排与整体生命周期。
// 在线连接集合仅由 Supervisor 变更。
type Supervisor struct {
	config *Config

	pool     *Pool
	gate     *gate
	binder   *binder
	hb       *heartbeat
	upgrader *websocket.Upgrader

	// 分组与路由
	mu        sync.Mutex
	group     *Group
	router    atomic.Pointer[router]
	msgMw     []Middleware // 进程级消息中间件
	connectMw []Middleware // 连接建立管道（进程级）
	auth      Authorizer

	// 生命周期
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	log logger.Logger
}

// New 创建监督器
func New(opts ...Option) (*Supervisor, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := NewPool(config.MaxConnections)

	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	s := &Supervisor{
		config: config,
		pool:   pool,
		gate:   newGate(config.Logger),
		binder: newBinder(pool, config.Logger),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			HandshakeTimeout:  config.HandshakeTimeout,
			CheckOrigin:       checkOrigin,
			EnableCompression: config.EnableCompression,
		},
		ctx:    ctx,
		cancel: cancel,
		log:    config.Logger,
	}

	if config.EnableHeartbeat {
		s.hb = newHeartbeat(pool, config.HeartbeatInterval, config.Logger)
	}

	return s, nil
}

// RegisterGroup 注册连接分组（仅支持一个活跃分组），注册即冻结
func (s *Supervisor) RegisterGroup(g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group != nil {
		return ErrGroupRegistered
	}
	if err := g.freeze(); err != nil {
		return err
	}
	s.group = g
	return nil
}

// Use 追加进程级消息中间件，须在 Run 之前调用
func (s *Supervisor) Use(mw ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgMw = append(s.msgMw, mw...)
}

// UseConnect 追加连接建立管道中间件，须在 Run 之前调用
func (s *Supervisor) UseConnect(mw ...Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectMw = append(s.connectMw, mw...)
}

// SetAuthorizer 设置鉴权检查，须在 Run 之前调用
func (s *Supervisor) SetAuthorizer(a Authorizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = a
}

// SetUpgradePredicate 安装升级鉴权谓词
//
// 可在运行期随时更换；传 nil 移除谓词，恢复无条件放行。
func (s *Supervisor) SetUpgradePredicate(p UpgradePredicate) {
	s.gate.install(p)
}

// Run 启动监督器
//
// 固化路由表；配置启用时启动探活监控。
func (s *Supervisor) Run() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group == nil {
		return ErrGroupMissing
	}
	if s.running.Swap(true) {
		return nil
	}

	s.router.Store(newRouter(s.group, s.binder, s.msgMw, s.auth, s.log))

	if s.hb != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hb.run(s.ctx)
		}()
	}

	return nil
}

// Shutdown 优雅关闭
//
// 取消上下文（探活监控随之停止），并发关闭所有连接，等待协程退出或超时。
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()

	var closeWg sync.WaitGroup
	s.pool.Range(func(c *Conn) bool {
		closeWg.Add(1)
		go func(conn *Conn) {
			defer closeWg.Done()
			conn.Close()
		}(c)
		return true
	})

	clientsDone := make(chan struct{})
	go func() {
		closeWg.Wait()
		close(clientsDone)
	}()

	select {
	case <-clientsDone:
	case <-ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpgrade 处理升级请求
//
// 闸口 → 握手 → 建连 → 工厂解析作用域实例 → 连接建立管道 →
// 连接事件处理器 → 启动读写协程。监听在读协程启动前即已就绪。
func (s *Supervisor) HandleUpgrade(w http.ResponseWriter, r *http.Request, opts ...ConnOption) error {
	rt := s.router.Load()
	if rt == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return ErrGroupMissing
	}

	// 升级闸口：拒绝即销毁套接字，握手不会完成
	if !s.gate.allow(r.Context(), r) {
		destroySocket(w)
		return ErrUpgradeRejected
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	_, err = s.accept(sock, r, opts...)
	return err
}

// accept 接入一条已完成握手的连接
//
// 建连 → 工厂解析作用域实例 → 连接建立管道 → 连接事件处理器 →
// 启动读写协程。
func (s *Supervisor) accept(sock Socket, r *http.Request, opts ...ConnOption) (*Conn, error) {
	rt := s.router.Load()
	if rt == nil {
		_ = sock.Close()
		return nil, ErrGroupMissing
	}

	c := newConn(sock, r, s, opts...)

	if err := s.pool.Add(c); err != nil {
		// 关闭释放连接上下文，此时尚未入池，removeConn 不会动到在池的同名连接
		c.close(err)
		s.log.Warn("connection rejected",
			zap.String("conn_id", c.ID),
			zap.Error(err),
		)
		return nil, err
	}

	// 每 (连接, 分组) 解析一次作用域实例
	if s.group.factory != nil {
		scoped, err := s.group.factory(c)
		if err != nil {
			s.log.Error("handler factory failed",
				zap.String("conn_id", c.ID),
				zap.Error(err),
			)
			c.close(err)
			return nil, err
		}
		c.scoped = scoped
	}

	// 连接建立管道：失败则放弃该连接（监听尚未绑定）
	if err := s.runConnectPipeline(c); err != nil {
		s.log.Error("connect pipeline failed",
			zap.String("conn_id", c.ID),
			zap.Error(err),
		)
		c.close(err)
		return nil, err
	}

	// 连接事件处理器同步执行，完成后连接对断开事件可见
	rt.connect(c)
	c.bound.Store(true)

	s.log.Info("connection accepted",
		zap.String("conn_id", c.ID),
		zap.String("remote", r.RemoteAddr),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		c.run()
	}()

	return c, nil
}

// runConnectPipeline 运行进程级连接建立管道
func (s *Supervisor) runConnectPipeline(c *Conn) error {
	if len(s.connectMw) == 0 {
		return nil
	}
	_, err := compose(s.connectMw, c, nil)(connectMessage())
	return err
}

// Handler 返回标准库挂载点
func (s *Supervisor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = s.HandleUpgrade(w, r)
	}
}

// GinHandler 返回 Gin 挂载点
func (s *Supervisor) GinHandler(opts ...ConnOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = s.HandleUpgrade(c.Writer, c.Request, opts...)
	}
}

// dispatch 分发入站消息（由读协程调用）
func (s *Supervisor) dispatch(c *Conn, msg *Message) {
	if rt := s.router.Load(); rt != nil {
		rt.dispatch(c, msg)
	}
}

// disconnected 连接关闭回调，触发断开事件处理器
func (s *Supervisor) disconnected(c *Conn, reason error) {
	if !c.bound.Load() {
		return
	}
	if rt := s.router.Load(); rt != nil {
		rt.disconnect(c, reason)
	}
}

// Broadcast 向所有在线连接发送消息
func (s *Supervisor) Broadcast(msg []byte) {
	s.pool.Range(func(c *Conn) bool {
		if !c.Ready() {
			return true
		}
		if err := c.Send(msg); err != nil {
			s.log.Debug("broadcast send failed",
				zap.String("conn_id", c.ID),
				zap.Error(err),
			)
		}
		return true
	})
}

// Get 获取连接
func (s *Supervisor) Get(connID string) (*Conn, bool) {
	return s.pool.Get(connID)
}

// Count 获取在线连接数
func (s *Supervisor) Count() int {
	return s.pool.Count()
}
