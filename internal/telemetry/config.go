package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
)

// Protocols accepted for OTLP export.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string

	// SampleRate is the root-span sampling ratio in [0,1].
	SampleRate float64

	MetricsEnabled        bool
	MetricsExportInterval time.Duration
	ShutdownTimeout       time.Duration
}

// NewDefaultConfig returns telemetry defaults. Export is off unless enabled.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:               false,
		Endpoint:              "localhost:4317",
		Protocol:              ProtocolGRPC,
		Insecure:              true,
		ServiceName:           "ctxfuse",
		ServiceVersion:        "dev",
		SampleRate:            1.0,
		MetricsEnabled:        true,
		MetricsExportInterval: 15 * time.Second,
		ShutdownTimeout:       5 * time.Second,
	}
}

// FromConfig maps the file/env telemetry section onto Config.
func FromConfig(tc config.TelemetryConfig, version string) *Config {
	c := NewDefaultConfig()
	c.Enabled = tc.Enabled
	c.Insecure = tc.Insecure
	c.SampleRate = tc.SampleRate
	if tc.Endpoint != "" {
		c.Endpoint = tc.Endpoint
	}
	if tc.Protocol != "" {
		c.Protocol = tc.Protocol
	}
	if tc.ServiceName != "" {
		c.ServiceName = tc.ServiceName
	}
	if version != "" {
		c.ServiceVersion = version
	}
	return c
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	// Plaintext export is only allowed to a local collector.
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.MetricsEnabled && c.MetricsExportInterval <= 0 {
		return fmt.Errorf("metrics export interval must be positive when metrics enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint host is a loopback address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
