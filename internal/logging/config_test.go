package logging

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output.Stream)
	assert.False(t, cfg.Output.OTEL)
	assert.Equal(t, time.Second, cfg.Sampling.Tick.Duration())
	assert.Equal(t, "ctxfuse", cfg.Fields["service"])
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"bad stream", func(c *Config) { c.Output.Stream = "file" }, "output stream must be"},
		{"no output", func(c *Config) { c.Output.Stream = "" }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Tick = config.Duration(0) }, "sampling tick"},
		{"negative skip", func(c *Config) { c.Caller.Skip = -1 }, "caller skip"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"env": ""} }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}

	otelOnly := NewDefaultConfig()
	otelOnly.Output = OutputConfig{OTEL: true}
	assert.NoError(t, otelOnly.Validate())
}
