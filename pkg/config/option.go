package config

import "strings"

// Option 配置选项
type Option func(*Config)

// WithConfigFile 指定配置文件完整路径
func WithConfigFile(file string) Option {
	return func(c *Config) {
		c.configFile = file
	}
}

// WithConfigName 指定配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(c *Config) {
		c.configName = name
	}
}

// WithConfigType 指定配置文件类型（yaml/json/toml）
func WithConfigType(t string) Option {
	return func(c *Config) {
		c.configType = t
	}
}

// WithConfigPaths 追加配置文件搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) {
		c.configPaths = append(c.configPaths, paths...)
	}
}

// WithDefaults 设置默认配置值
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		if c.defaults == nil {
			c.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			c.defaults[k] = v
		}
	}
}

// WithEnvPrefix 设置环境变量前缀并开启自动绑定
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
		c.envKeyReplacer = strings.NewReplacer(".", "_")
	}
}

// WithAutoWatch 加载后自动开启文件监控
func WithAutoWatch(enable bool) Option {
	return func(c *Config) {
		c.autoWatch = enable
	}
}

// WithOnChange 设置配置变更回调
func WithOnChange(f func()) Option {
	return func(c *Config) {
		c.onChange = f
	}
}

// WithOnError 设置错误回调
func WithOnError(f func(error)) Option {
	return func(c *Config) {
		c.onError = f
	}
}
