package wsgate

import (
	"fmt"
	"net/http"
	"sync"
)

// Kind 事件描述符类型
type Kind uint8

const (
	// KindConnect 连接建立事件
	KindConnect Kind = iota + 1
	// KindMessage 具名消息事件
	KindMessage
	// KindDisconnect 连接断开事件
	KindDisconnect
	// KindEmit 响应策略：回发给触发连接
	KindEmit
	// KindBroadcast 响应策略：广播给所有在线连接
	KindBroadcast
)

// String 返回类型名称
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindMessage:
		return "message"
	case KindDisconnect:
		return "disconnect"
	case KindEmit:
		return "emit"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ConnectHandler 连接建立处理器
type ConnectHandler func(c *Conn, r *http.Request) (any, error)

// MessageHandler 消息处理器
type MessageHandler func(c *Conn, msg *Message) (any, error)

// DisconnectHandler 连接断开处理器，reason 为关闭原因
type DisconnectHandler func(c *Conn, reason error) (any, error)

// HandlerFactory 连接级处理器实例工厂
//
// 每个 (连接, 分组) 只调用一次，返回绑定该连接作用域的实例，
// 处理器内通过 Conn.Scoped 获取。
type HandlerFactory func(c *Conn) (any, error)

// Descriptor 事件描述符
//
// 将处理器方法名与事件类型、事件级中间件静态绑定。
// 不可变，分组冻结后按声明顺序被消费。
type Descriptor struct {
	Kind       Kind
	Event      string // KindMessage 的事件名称
	Method     string // 处理器方法名（响应策略按此键关联）
	Connect    ConnectHandler
	Message    MessageHandler
	Disconnect DisconnectHandler
	Middleware []Middleware
}

// Group 连接分组
//
// 一组事件描述符与分组级中间件的集合，整个网关同时只有一个活跃分组。
// 注册到 Supervisor 时冻结：预编译消息分发表和响应策略表，此后不可修改。
type Group struct {
	name        string
	factory     HandlerFactory
	middleware  []Middleware
	descriptors []Descriptor

	mu     sync.Mutex
	frozen bool

	// 冻结时预编译
	byEvent     map[string]*Descriptor   // 事件名 -> 消息描述符
	connects    []*Descriptor            // 连接事件，声明顺序
	disconnects []*Descriptor            // 断开事件，声明顺序
	responses   map[string][]*Descriptor // 方法名 -> 响应策略描述符，声明顺序
}

// NewGroup 创建连接分组
func NewGroup(name string) *Group {
	return &Group{
		name: name,
	}
}

// Name 返回分组名称
func (g *Group) Name() string {
	return g.name
}

// WithFactory 设置连接级处理器实例工厂
func (g *Group) WithFactory(f HandlerFactory) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.frozen {
		g.factory = f
	}
	return g
}

// Use 追加分组级中间件
func (g *Group) Use(mw ...Middleware) *Group {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.frozen {
		g.middleware = append(g.middleware, mw...)
	}
	return g
}

// OnConnect 注册连接建立处理器
func (g *Group) OnConnect(method string, h ConnectHandler, mw ...Middleware) *Group {
	g.append(Descriptor{
		Kind:       KindConnect,
		Method:     method,
		Connect:    h,
		Middleware: mw,
	})
	return g
}

// OnMessage 注册具名消息处理器
func (g *Group) OnMessage(event, method string, h MessageHandler, mw ...Middleware) *Group {
	g.append(Descriptor{
		Kind:       KindMessage,
		Event:      event,
		Method:     method,
		Message:    h,
		Middleware: mw,
	})
	return g
}

// OnDisconnect 注册连接断开处理器
func (g *Group) OnDisconnect(method string, h DisconnectHandler, mw ...Middleware) *Group {
	g.append(Descriptor{
		Kind:       KindDisconnect,
		Method:     method,
		Disconnect: h,
		Middleware: mw,
	})
	return g
}

// Emit 为方法声明回发策略：结果发送给触发连接
func (g *Group) Emit(method string) *Group {
	g.append(Descriptor{
		Kind:   KindEmit,
		Method: method,
	})
	return g
}

// Broadcast 为方法声明广播策略：结果发送给所有在线连接
func (g *Group) Broadcast(method string) *Group {
	g.append(Descriptor{
		Kind:   KindBroadcast,
		Method: method,
	})
	return g
}

// append 追加描述符，冻结后忽略
func (g *Group) append(d Descriptor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return
	}
	g.descriptors = append(g.descriptors, d)
}

// Descriptors 返回描述符快照（声明顺序）
func (g *Group) Descriptors() []Descriptor {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Descriptor, len(g.descriptors))
	copy(out, g.descriptors)
	return out
}

// freeze 冻结分组并预编译分发表
func (g *Group) freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return ErrGroupFrozen
	}
	g.frozen = true

	g.byEvent = make(map[string]*Descriptor)
	g.responses = make(map[string][]*Descriptor)

	for i := range g.descriptors {
		d := &g.descriptors[i]
		switch d.Kind {
		case KindConnect:
			g.connects = append(g.connects, d)
		case KindMessage:
			if _, exists := g.byEvent[d.Event]; exists {
				return fmt.Errorf("%w: duplicate event %q", ErrInvalidConfig, d.Event)
			}
			g.byEvent[d.Event] = d
		case KindDisconnect:
			g.disconnects = append(g.disconnects, d)
		case KindEmit, KindBroadcast:
			g.responses[d.Method] = append(g.responses[d.Method], d)
		}
	}
	return nil
}

// responsesFor 返回方法的响应策略描述符（声明顺序）
func (g *Group) responsesFor(method string) []*Descriptor {
	return g.responses[method]
}

// messageDescriptor 按事件名查找消息描述符
func (g *Group) messageDescriptor(event string) (*Descriptor, bool) {
	d, ok := g.byEvent[event]
	return d, ok
}
