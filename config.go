package wsgate

import (
	"net/http"
	"time"

	"github.com/tokmz/wsgate/pkg/logger"
)

// Config 网关配置
type Config struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	ReadBufferSize   int           // 读缓冲区大小
	WriteBufferSize  int           // 写缓冲区大小
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 最大消息大小
	WriteWait        time.Duration // 单次写超时

	// 队列配置
	SendQueueSize         int // 发送队列大小
	HighPriorityQueueSize int // 高优先级队列大小

	// 心跳配置
	HeartbeatInterval time.Duration // 探活扫描间隔
	EnableHeartbeat   bool          // 是否启动探活监控

	// Upgrader 配置
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	EnableCompression bool                     // 是否启用压缩

	// 日志
	Logger logger.Logger
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:        10000,
		ReadBufferSize:        1024,
		WriteBufferSize:       1024,
		HandshakeTimeout:      10 * time.Second,
		MaxMessageSize:        512 * 1024, // 512KB
		WriteWait:             10 * time.Second,
		SendQueueSize:         256,
		HighPriorityQueueSize: 64,
		HeartbeatInterval:     30 * time.Second,
		EnableHeartbeat:       false,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxMessageSize <= 0 {
		return ErrInvalidConfig
	}
	if c.SendQueueSize <= 0 || c.HighPriorityQueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.EnableHeartbeat && c.HeartbeatInterval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(n int) Option {
	return func(c *Config) {
		c.MaxConnections = n
	}
}

// WithBufferSize 设置读写缓冲区大小
func WithBufferSize(read, write int) Option {
	return func(c *Config) {
		c.ReadBufferSize = read
		c.WriteBufferSize = write
	}
}

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithMaxMessageSize 设置最大消息大小
func WithMaxMessageSize(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithWriteWait 设置单次写超时
func WithWriteWait(d time.Duration) Option {
	return func(c *Config) {
		c.WriteWait = d
	}
}

// WithQueueSize 设置发送队列大小
func WithQueueSize(normal, high int) Option {
	return func(c *Config) {
		c.SendQueueSize = normal
		c.HighPriorityQueueSize = high
	}
}

// WithHeartbeat 启用探活监控并设置扫描间隔
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Config) {
		c.EnableHeartbeat = true
		c.HeartbeatInterval = interval
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(f func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = f
	}
}

// WithCompression 启用压缩
func WithCompression() Option {
	return func(c *Config) {
		c.EnableCompression = true
	}
}

// WithLogger 设置日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
