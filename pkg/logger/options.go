package logger

// Option 配置选项
type Option func(*Config)

// WithLevel 设置日志级别
func WithLevel(level Level) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithFormat 设置日志格式
func WithFormat(format Format) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithConsoleOutput 输出到控制台
func WithConsoleOutput() Option {
	return func(c *Config) {
		c.Console = true
	}
}

// WithFileOutput 输出到文件
func WithFileOutput(path string) Option {
	return func(c *Config) {
		c.File = path
	}
}

// WithRotate 输出到轮转文件
func WithRotate(rotate *RotateConfig) Option {
	return func(c *Config) {
		c.Rotate = rotate
	}
}

// WithCaller 是否记录调用位置
func WithCaller(enable bool) Option {
	return func(c *Config) {
		c.EnableCaller = enable
	}
}

// WithStacktrace 是否记录堆栈
func WithStacktrace(enable bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enable
	}
}
