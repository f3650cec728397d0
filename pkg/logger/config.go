package logger

// Format 日志格式
type Format string

const (
	// JSONFormat JSON 格式（生产环境）
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式（开发环境）
	ConsoleFormat Format = "console"
)

// Config 日志配置
type Config struct {
	// 基础配置
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）

	// 输出配置
	Console bool          // 是否输出到控制台
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	// 功能配置
	EnableCaller     bool // 是否记录调用位置
	EnableStacktrace bool // 是否记录堆栈（Error 及以上）
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 未配置任何输出时默认输出到控制台
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

// RotateConfig 日志轮转配置
type RotateConfig struct {
	Filename   string // 日志文件路径
	MaxSize    int    // 单文件最大大小（MB）
	MaxAge     int    // 最长保留天数
	MaxBackups int    // 最多保留份数
	LocalTime  bool   // 使用本地时间命名
	Compress   bool   // 压缩历史文件
}

// setDefaults 设置默认值
func (c *RotateConfig) setDefaults() {
	if c.MaxSize == 0 {
		c.MaxSize = 100
	}
	if c.MaxAge == 0 {
		c.MaxAge = 7
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 10
	}
}
