package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }, false},
		{"sampling rate below range", func(c *Config) { c.SamplingRate = -0.1 }, false},
		{"sampling rate above range", func(c *Config) { c.SamplingRate = 1.5 }, false},
		{"unknown exporter", func(c *Config) { c.ExporterType = "jaeger" }, false},
		{"otlp grpc", func(c *Config) { c.ExporterType = "otlp-grpc" }, true},
		{"otlp http", func(c *Config) { c.ExporterType = "otlp-http" }, true},
		{"noop", func(c *Config) { c.ExporterType = "noop" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if tt.wantOK {
				assert.NoError(t, c.Validate())
			} else {
				assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
			}
		})
	}
}

func TestSetBatchDefaults(t *testing.T) {
	def := DefaultConfig()

	// 零值回填为默认
	c := &Config{ServiceName: "svc", ExporterType: "noop", SamplingRate: 1.0}
	c.setBatchDefaults()
	assert.Equal(t, def.BatchTimeout, c.BatchTimeout)
	assert.Equal(t, def.MaxExportBatchSize, c.MaxExportBatchSize)
	assert.Equal(t, def.MaxQueueSize, c.MaxQueueSize)

	// 显式设置的值保留
	c = &Config{
		ServiceName:        "svc",
		ExporterType:       "noop",
		SamplingRate:       1.0,
		BatchTimeout:       time.Second,
		MaxExportBatchSize: 64,
		MaxQueueSize:       128,
	}
	c.setBatchDefaults()
	assert.Equal(t, time.Second, c.BatchTimeout)
	assert.Equal(t, 64, c.MaxExportBatchSize)
	assert.Equal(t, 128, c.MaxQueueSize)
}

func TestNewTracerProviderPartialConfig(t *testing.T) {
	// 只给必填项，批处理参数由提供者回填
	cfg := &Config{ServiceName: "svc", ExporterType: "noop", SamplingRate: 1.0}

	tp, err := NewTracerProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.Equal(t, DefaultConfig().BatchTimeout, cfg.BatchTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, Shutdown(ctx))
}

func TestNewTracerProviderNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExporterType = "noop"

	tp, err := NewTracerProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)

	// 全局注册生效，可直接开 Span
	_, span := otel.Tracer("test").Start(context.Background(), "op")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, Shutdown(ctx))
}

func TestNewTracerProviderRejectsInvalidConfig(t *testing.T) {
	_, err := NewTracerProvider(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
