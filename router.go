package wsgate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tokmz/wsgate/pkg/logger"
)

// Authorizer 鉴权检查
//
// 外部协作者：对 (连接, 分组, 方法) 作出布尔判定。
// 仅作用于连接建立处理器；判定失败抛出 ErrForbidden 而不调用处理器。
type Authorizer func(ctx context.Context, c *Conn, group, method string) (bool, error)

// router 事件路由器
//
// 每个连接读取一次描述符表：连接描述符在建立时同步执行，
// 消息与断开监听在读协程启动前就已绑定（分发表在分组冻结时预编译），
// 连接建立与监听注册之间不会漏掉任何入站事件。
type router struct {
	group  *Group
	binder *binder
	global []Middleware // 进程级消息中间件，排在分组链之前
	auth   Authorizer
	log    logger.Logger
}

func newRouter(g *Group, b *binder, global []Middleware, auth Authorizer, log logger.Logger) *router {
	return &router{
		group:  g,
		binder: b,
		global: global,
		auth:   auth,
		log:    log,
	}
}

// connect 按声明顺序执行连接建立描述符
//
// 管道为描述符自身中间件加鉴权检查，随后调用处理器 (连接, 原始请求)。
// 任何失败（含 panic）被捕获并记录，不向外传播，连接保持打开。
func (rt *router) connect(c *Conn) {
	for _, d := range rt.group.connects {
		rt.runConnect(c, d)
	}
}

// runConnect 执行单个连接建立描述符，每连接至多一次
func (rt *router) runConnect(c *Conn, d *Descriptor) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.log.Error("connect handler panicked",
				zap.String("conn_id", c.ID),
				zap.String("method", d.Method),
				zap.Any("panic", rec),
			)
		}
	}()

	chain := concat(d.Middleware, []Middleware{rt.authorize(d.Method)})
	final := func(*Message) (any, error) {
		return d.Connect(c, c.request)
	}

	if _, err := compose(chain, c, final)(connectMessage()); err != nil {
		rt.log.Error("connect handler failed",
			zap.String("conn_id", c.ID),
			zap.String("method", d.Method),
			zap.Error(err),
		)
	}
}

// authorize 鉴权中间件，置于描述符中间件之后、处理器之前
func (rt *router) authorize(method string) Middleware {
	return func(c *Conn, msg *Message, next NextFunc) (any, error) {
		if rt.auth == nil {
			return next(msg)
		}
		ok, err := rt.auth(c.Context(), c, rt.group.name, method)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrForbidden, rt.group.name, method, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrForbidden, rt.group.name, method)
		}
		return next(msg)
	}
}

// dispatch 分发单条入站消息
//
// 管道为 进程级 + 分组级 + 描述符级 中间件加处理器。
// RequestID 非空表示请求-应答式消息：结果直接回执给发起方，
// 绕过响应绑定器。失败按次捕获记录，监听保持注册。
func (rt *router) dispatch(c *Conn, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.log.Error("message handler panicked",
				zap.String("conn_id", c.ID),
				zap.String("event", msg.Event),
				zap.Any("panic", rec),
			)
			if msg.RequestID != "" {
				_ = c.SendError(msg.RequestID, 500, "internal error")
			}
		}
	}()

	d, ok := rt.group.messageDescriptor(msg.Event)
	if !ok {
		rt.log.Warn("handler not found",
			zap.String("conn_id", c.ID),
			zap.String("event", msg.Event),
		)
		if msg.RequestID != "" {
			_ = c.SendError(msg.RequestID, 404, ErrHandlerNotFound.Error())
		}
		return
	}

	chain := concat(concat(rt.global, rt.group.middleware), d.Middleware)
	final := func(m *Message) (any, error) {
		return d.Message(c, m)
	}

	result, err := compose(chain, c, final)(msg)
	if err != nil {
		rt.log.Error("message handler failed",
			zap.String("conn_id", c.ID),
			zap.String("event", msg.Event),
			zap.String("method", d.Method),
			zap.Error(err),
		)
		if msg.RequestID != "" {
			_ = c.SendError(msg.RequestID, 500, err.Error())
		}
		return
	}

	if msg.RequestID != "" {
		// 请求-应答式消息：结果直接回执，不经过响应策略
		if err := c.SendResponse(msg.RequestID, 200, "success", result); err != nil {
			rt.log.Debug("ack send failed",
				zap.String("conn_id", c.ID),
				zap.String("event", msg.Event),
				zap.Error(err),
			)
		}
		return
	}

	rt.binder.apply(rt.group, c, d.Method, result)
}

// disconnect 按声明顺序执行断开描述符
func (rt *router) disconnect(c *Conn, reason error) {
	for _, d := range rt.group.disconnects {
		rt.runDisconnect(c, d, reason)
	}
}

// runDisconnect 执行单个断开描述符
func (rt *router) runDisconnect(c *Conn, d *Descriptor, reason error) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.log.Error("disconnect handler panicked",
				zap.String("conn_id", c.ID),
				zap.String("method", d.Method),
				zap.Any("panic", rec),
			)
		}
	}()

	result, err := d.Disconnect(c, reason)
	if err != nil {
		rt.log.Error("disconnect handler failed",
			zap.String("conn_id", c.ID),
			zap.String("method", d.Method),
			zap.Error(err),
		)
		return
	}

	rt.binder.apply(rt.group, c, d.Method, result)
}

// connectMessage 连接建立管道的合成载荷
func connectMessage() *Message {
	return &Message{Type: MessageTypeNotify, Event: "connect"}
}
