package wsgate

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestConnectRunsOncePerConnection(t *testing.T) {
	var connects atomic.Int32
	var dispatches atomic.Int32

	g := NewGroup("chat").
		OnConnect("HandleConnection", func(c *Conn, r *http.Request) (any, error) {
			connects.Add(1)
			return nil, nil
		}).
		OnMessage("chat.send", "SendMessage", func(c *Conn, msg *Message) (any, error) {
			dispatches.Add(1)
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	acceptFake(t, s, sock)

	// 连接事件在接入时同步执行，且恰好一次
	assert.Equal(t, int32(1), connects.Load())

	// 紧随其后的消息不会丢失，也不会再次触发连接事件
	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "chat.send"})
	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "chat.send"})
	waitFor(t, func() bool { return dispatches.Load() == 2 })
	assert.Equal(t, int32(1), connects.Load())
}

func TestConnectDescriptorOrderAndArguments(t *testing.T) {
	var mu sync.Mutex
	var trace []string

	g := NewGroup("chat").
		OnConnect("First", func(c *Conn, r *http.Request) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			require.NotNil(t, r)
			trace = append(trace, "first:"+r.URL.Path)
			return nil, nil
		}).
		OnConnect("Second", func(c *Conn, r *http.Request) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			trace = append(trace, "second")
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	acceptFake(t, s, newFakeSocket())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:/ws", "second"}, trace)
}

func TestAuthorizerBlocksConnectHandler(t *testing.T) {
	var invoked atomic.Bool

	g := NewGroup("chat").
		OnConnect("HandleConnection", func(c *Conn, r *http.Request) (any, error) {
			invoked.Store(true)
			return nil, nil
		})

	s, err := New()
	require.NoError(t, err)
	s.SetAuthorizer(func(ctx context.Context, c *Conn, group, method string) (bool, error) {
		return false, nil
	})
	require.NoError(t, s.RegisterGroup(g))
	require.NoError(t, s.Run())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	c := acceptFake(t, s, newFakeSocket())

	// 鉴权失败：处理器未被调用，连接保持打开
	assert.False(t, invoked.Load())
	assert.False(t, c.IsClosed())
}

func TestConnectFailureKeepsConnectionOpen(t *testing.T) {
	var dispatches atomic.Int32

	g := NewGroup("chat").
		OnConnect("HandleConnection", func(c *Conn, r *http.Request) (any, error) {
			return nil, errors.New("connect failed")
		}).
		OnMessage("chat.send", "SendMessage", func(c *Conn, msg *Message) (any, error) {
			dispatches.Add(1)
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	assert.False(t, c.IsClosed())

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "chat.send"})
	waitFor(t, func() bool { return dispatches.Load() == 1 })
}

func TestDispatchDefaultEmit(t *testing.T) {
	g := NewGroup("chat").
		OnMessage("echo", "Echo", func(c *Conn, msg *Message) (any, error) {
			return map[string]any{"ok": true}, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	acceptFake(t, s, sock)

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "echo"})

	// 未声明策略：结果恰好一次回发给触发连接
	waitFor(t, func() bool { return len(sock.writtenMessages()) == 1 })
	time.Sleep(20 * time.Millisecond)
	written := sock.writtenMessages()
	require.Len(t, written, 1)
	assert.JSONEq(t, `{"ok":true}`, string(written[0]))
}

func TestDispatchAckBypassesBinder(t *testing.T) {
	g := NewGroup("chat").
		OnMessage("echo", "Echo", func(c *Conn, msg *Message) (any, error) {
			return map[string]any{"ok": true}, nil
		}).
		Broadcast("Echo")

	s := newTestSupervisor(t, g)
	origin := newFakeSocket()
	other := newFakeSocket()
	acceptFake(t, s, origin)
	acceptFake(t, s, other)

	origin.deliver(t, &Message{Type: MessageTypeRequest, Event: "echo", RequestID: "req-1"})

	// 结果只进回执通道，广播策略不生效
	waitFor(t, func() bool { return len(origin.writtenMessages()) == 1 })

	var resp Response
	require.NoError(t, json.Unmarshal(origin.writtenMessages()[0], &resp))
	assert.Equal(t, MessageTypeResponse, resp.Type)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, 200, resp.Code)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, other.writtenMessages())
}

func TestDispatchErrorKeepsListener(t *testing.T) {
	var calls atomic.Int32

	g := NewGroup("chat").
		OnMessage("flaky", "Flaky", func(c *Conn, msg *Message) (any, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("first call fails")
			}
			return "recovered", nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	sock.deliver(t, &Message{Type: MessageTypeRequest, Event: "flaky", RequestID: "req-1"})
	waitFor(t, func() bool { return len(sock.writtenMessages()) == 1 })

	// 失败回执错误响应，连接与监听保持
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(sock.writtenMessages()[0], &errResp))
	assert.Equal(t, MessageTypeError, errResp.Type)
	assert.Equal(t, 500, errResp.Code)
	assert.False(t, c.IsClosed())

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "flaky"})
	waitFor(t, func() bool { return calls.Load() == 2 })
	waitFor(t, func() bool { return len(sock.writtenMessages()) == 2 })
	assert.Equal(t, "recovered", string(sock.writtenMessages()[1]))
}

func TestDispatchPanicIsolated(t *testing.T) {
	var calls atomic.Int32

	g := NewGroup("chat").
		OnMessage("panicky", "Panicky", func(c *Conn, msg *Message) (any, error) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "panicky"})
	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "panicky"})

	waitFor(t, func() bool { return calls.Load() == 2 })
	assert.False(t, c.IsClosed())
}

func TestDispatchUnknownEvent(t *testing.T) {
	g := NewGroup("chat").
		OnMessage("known", "Known", func(c *Conn, msg *Message) (any, error) {
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	sock.deliver(t, &Message{Type: MessageTypeRequest, Event: "missing", RequestID: "req-1"})

	waitFor(t, func() bool { return len(sock.writtenMessages()) == 1 })
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(sock.writtenMessages()[0], &errResp))
	assert.Equal(t, 404, errResp.Code)
	assert.False(t, c.IsClosed())
}

func TestMiddlewareChainOrdering(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	record := func(name string) Middleware {
		return func(c *Conn, msg *Message, next NextFunc) (any, error) {
			mu.Lock()
			trace = append(trace, name)
			mu.Unlock()
			return next(msg)
		}
	}

	g := NewGroup("chat").
		Use(record("group")).
		OnMessage("ping", "Ping", func(c *Conn, msg *Message) (any, error) {
			mu.Lock()
			trace = append(trace, "handler")
			mu.Unlock()
			return nil, nil
		}, record("descriptor"))

	s, err := New()
	require.NoError(t, err)
	s.Use(record("global"))
	require.NoError(t, s.RegisterGroup(g))
	require.NoError(t, s.Run())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	sock := newFakeSocket()
	acceptFake(t, s, sock)

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "ping"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(trace) == 4
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"global", "group", "descriptor", "handler"}, trace)
}

func TestDisconnectHandlerReceivesReason(t *testing.T) {
	var calls atomic.Int32
	reasonCh := make(chan error, 1)

	g := NewGroup("chat").
		OnDisconnect("HandleDisconnect", func(c *Conn, reason error) (any, error) {
			calls.Add(1)
			reasonCh <- reason
			return nil, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	_ = sock.Close()

	select {
	case reason := <-reasonCh:
		assert.ErrorIs(t, reason, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler not invoked")
	}

	waitFor(t, func() bool { return c.IsClosed() })
	waitFor(t, func() bool { return s.Count() == 0 })

	// 至多一次
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScopedInstancePerConnection(t *testing.T) {
	type session struct{ id string }

	g := NewGroup("chat").
		WithFactory(func(c *Conn) (any, error) {
			return &session{id: c.ID}, nil
		}).
		OnMessage("whoami", "WhoAmI", func(c *Conn, msg *Message) (any, error) {
			return c.Scoped().(*session).id, nil
		})

	s := newTestSupervisor(t, g)
	sock := newFakeSocket()
	c := acceptFake(t, s, sock)

	require.NotNil(t, c.Scoped())
	assert.Equal(t, c.ID, c.Scoped().(*session).id)

	sock.deliver(t, &Message{Type: MessageTypeNotify, Event: "whoami"})
	waitFor(t, func() bool { return len(sock.writtenMessages()) == 1 })
	assert.Equal(t, c.ID, string(sock.writtenMessages()[0]))
}
