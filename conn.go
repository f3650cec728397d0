package wsgate

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Socket 底层传输连接
//
// 由外部传输层提供，*websocket.Conn 天然满足该接口；
// 测试中可用内存实现替代。
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
	RemoteAddr() net.Addr
}

// Conn 网关连接
type Conn struct {
	ID         string
	sock       Socket
	request    *http.Request
	supervisor *Supervisor

	// 发送队列
	send     chan []byte
	sendHigh chan []byte // 高优先级队列（系统消息）

	// 连接级作用域
	scoped   any // 工厂解析出的处理器实例
	metadata sync.Map

	// 探活
	alive atomic.Bool // true=ALIVE，false=SUSPECT（待应答）

	// 生命周期
	ctx         context.Context
	cancel      context.CancelFunc
	bound       atomic.Bool // 连接事件处理器已执行，断开事件可见
	closed      atomic.Bool
	closeOnce   sync.Once
	closeReason atomic.Pointer[error]
	writeDone   chan struct{} // 标记 writePump 已退出

	// 限流
	invalidMsgCount atomic.Int32 // 无效消息计数

	config *Config
}

// ConnOption 连接选项
type ConnOption func(*Conn)

// WithConnID 设置连接 ID
func WithConnID(id string) ConnOption {
	return func(c *Conn) {
		c.ID = id
	}
}

// WithConnMetadata 设置连接元数据
func WithConnMetadata(key string, value any) ConnOption {
	return func(c *Conn) {
		c.metadata.Store(key, value)
	}
}

// newConn 创建连接
func newConn(sock Socket, r *http.Request, s *Supervisor, opts ...ConnOption) *Conn {
	ctx, cancel := context.WithCancel(s.ctx)

	c := &Conn{
		ID:         uuid.NewString(),
		sock:       sock,
		request:    r,
		supervisor: s,
		send:       make(chan []byte, s.config.SendQueueSize),
		sendHigh:   make(chan []byte, s.config.HighPriorityQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		writeDone:  make(chan struct{}),
		config:     s.config,
	}

	for _, opt := range opts {
		opt(c)
	}

	// 新建连接初始为 ALIVE
	c.alive.Store(true)

	sock.SetReadLimit(s.config.MaxMessageSize)
	sock.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	return c
}

// run 运行读写协程，任一退出后关闭连接
func (c *Conn) run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.readPump()
	}()

	go func() {
		defer wg.Done()
		c.writePump()
	}()

	wg.Wait()
	c.close(nil)
}

// readPump 读取并分发入站消息
//
// 同一连接的消息在本协程内串行分发，顺序与传输层交付顺序一致。
func (c *Conn) readPump() {
	defer func() {
		c.close(nil)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := c.sock.ReadMessage()
			if err != nil {
				c.close(err)
				return
			}

			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				count := c.invalidMsgCount.Add(1)
				if count > 10 {
					// 超过阈值，关闭连接
					c.close(ErrInvalidMessageFlood)
					return
				}
				_ = c.SendError("", 400, "invalid message format")
				continue
			}
			c.invalidMsgCount.Store(0)

			c.supervisor.dispatch(c, &msg)
		}
	}
}

// writePump 写入出站消息
func (c *Conn) writePump() {
	defer func() {
		_ = c.sock.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.sock.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return

		case message, ok := <-c.sendHigh:
			if !ok {
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}

		case message, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}
		}
	}
}

// writeMessage 带超时写入单条消息
func (c *Conn) writeMessage(message []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, message)
}

// Send 发送字节消息（非阻塞）
func (c *Conn) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// SendHigh 发送高优先级字节消息
func (c *Conn) SendHigh(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendHigh <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// SendJSON 发送 JSON 消息
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// SendResponse 发送请求应答
func (c *Conn) SendResponse(requestID string, code int, message string, data any) error {
	return c.SendJSON(NewResponse(requestID, code, message, data))
}

// SendError 发送错误应答
func (c *Conn) SendError(requestID string, code int, message string) error {
	return c.SendJSON(NewErrorResponse(requestID, code, message))
}

// ping 发送探活指令
func (c *Conn) ping() error {
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
}

// Close 关闭连接
func (c *Conn) Close() {
	c.close(nil)
}

// close 带原因关闭连接，断开处理器只会执行一次
func (c *Conn) close(reason error) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if reason != nil {
			c.closeReason.Store(&reason)
		}
		c.cancel()

		// 从连接池移除（仅限本实例，ID 冲突被拒时不影响在池连接）
		c.supervisor.pool.removeConn(c)

		// 触发断开事件
		c.supervisor.disconnected(c, reason)

		// 关闭传输连接（writePump 随之退出）
		_ = c.sock.Close()

		// 等待 writePump 退出后再关闭通道，超时保护防止 writePump 未启动
		go func() {
			select {
			case <-c.writeDone:
			case <-time.After(5 * time.Second):
			}
			close(c.send)
			close(c.sendHigh)
		}()

		if log := c.config.Logger; log != nil {
			log.Debug("connection closed",
				zap.String("conn_id", c.ID),
				zap.Error(reason),
			)
		}
	})
}

// IsClosed 检查连接是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Ready 检查连接是否处于可发送状态
func (c *Conn) Ready() bool {
	return !c.closed.Load()
}

// CloseReason 返回关闭原因，未关闭或正常关闭时为 nil
func (c *Conn) CloseReason() error {
	if p := c.closeReason.Load(); p != nil {
		return *p
	}
	return nil
}

// Context 返回连接上下文
func (c *Conn) Context() context.Context {
	return c.ctx
}

// Request 返回发起升级的原始请求
func (c *Conn) Request() *http.Request {
	return c.request
}

// Scoped 返回工厂解析出的连接级处理器实例
func (c *Conn) Scoped() any {
	return c.scoped
}

// GetMetadata 获取连接元数据
func (c *Conn) GetMetadata(key string) (any, bool) {
	return c.metadata.Load(key)
}

// SetMetadata 设置连接元数据
func (c *Conn) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// RemoteAddr 返回对端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}
