package wsgate

import (
	"context"
	"encoding/json"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeSocket 内存传输实现，驱动读写协程而不依赖网络
type fakeSocket struct {
	incoming chan []byte

	mu          sync.Mutex
	written     [][]byte
	pings       int
	pongHandler func(string) error

	closeOnce sync.Once
	closedCh  chan struct{}
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		incoming: make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.incoming:
		return websocket.TextMessage, data, nil
	case <-s.closedCh:
		return 0, nil, net.ErrClosed
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-s.closedCh:
		return net.ErrClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.written = append(s.written, buf)
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if messageType == websocket.PingMessage {
		s.mu.Lock()
		s.pings++
		s.mu.Unlock()
	}
	return nil
}

func (s *fakeSocket) SetReadLimit(int64)               {}
func (s *fakeSocket) SetReadDeadline(time.Time) error  { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) SetPongHandler(h func(string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pongHandler = h
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closedCh)
	})
	return nil
}

func (s *fakeSocket) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345}
}

// deliver 投递一条入站消息
func (s *fakeSocket) deliver(t *testing.T, msg *Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	select {
	case s.incoming <- data:
	case <-time.After(time.Second):
		t.Fatal("deliver timed out")
	}
}

// firePong 模拟收到 pong 应答
func (s *fakeSocket) firePong() {
	s.mu.Lock()
	h := s.pongHandler
	s.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func (s *fakeSocket) writtenMessages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

func (s *fakeSocket) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// newTestSupervisor 创建已注册分组并启动的监督器
func newTestSupervisor(t *testing.T, g *Group, opts ...Option) *Supervisor {
	t.Helper()

	s, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, s.RegisterGroup(g))
	require.NoError(t, s.Run())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// acceptFake 以内存套接字接入一条连接
func acceptFake(t *testing.T, s *Supervisor, sock *fakeSocket) *Conn {
	t.Helper()
	c, err := s.accept(sock, httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	return c
}
