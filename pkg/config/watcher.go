package config

import (
	"github.com/fsnotify/fsnotify"
)

// StartWatch 开始监控配置文件变更
//
// 变更事件触发 OnChange 回调；重复调用不会重复注册。
// viper 未提供停止底层 fsnotify watcher 的方法，StopWatch 仅使回调失效。
func (c *Config) StartWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watching {
		return
	}
	c.watching = true

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		onError := c.onError
		c.mu.RUnlock()

		if !watching {
			return
		}

		if err := c.viper.ReadInConfig(); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}

		if onChange != nil {
			onChange()
		}
	})
	c.viper.WatchConfig()
}

// StopWatch 停止监控配置文件
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// Watching 是否正在监控
func (c *Config) Watching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// OnChange 设置配置变更回调
func (c *Config) OnChange(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = f
}
