package wsgate

import "errors"

// 错误定义
var (
	// 升级相关错误
	ErrUpgradeRejected = errors.New("wsgate: upgrade rejected")
	ErrForbidden       = errors.New("wsgate: forbidden invocation")

	// 连接相关错误
	ErrTooManyConnections  = errors.New("wsgate: too many connections")
	ErrClientIDExists      = errors.New("wsgate: connection id already exists")
	ErrConnectionClosed    = errors.New("wsgate: connection closed")
	ErrChannelFull         = errors.New("wsgate: send channel full")
	ErrLivenessTimeout     = errors.New("wsgate: liveness timeout")
	ErrInvalidMessageFlood = errors.New("wsgate: too many invalid messages")

	// 路由相关错误
	ErrHandlerNotFound = errors.New("wsgate: handler not found")
	ErrGroupFrozen     = errors.New("wsgate: group is frozen")
	ErrGroupRegistered = errors.New("wsgate: group already registered")
	ErrGroupMissing    = errors.New("wsgate: no group registered")

	// 配置相关错误
	ErrInvalidConfig = errors.New("wsgate: invalid config")
)
