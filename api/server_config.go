package api

import (
	"log/slog"
	"time"
)

// Fallbacks applied by HTTPServerConfig.WithDefaults.
const (
	DefaultListenAddr               = "127.0.0.1:8080"
	DefaultGracefulShutdownDuration = 30 * time.Second
	DefaultReadTimeout              = 60 * time.Second
	DefaultWriteTimeout             = 30 * time.Second
)

// HTTPServerConfig configures the registry API listener and its metrics listener.
type HTTPServerConfig struct {
	// ListenAddr is the host:port of the registry API.
	ListenAddr string

	// MetricsAddr is the host:port serving /metrics. Empty disables metrics.
	MetricsAddr string

	// EnablePprof mounts net/http/pprof under /debug.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain keeps reporting not-ready before the
	// process is expected to stop.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds how long Shutdown waits for in-flight requests.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WithDefaults returns a copy with unset fields filled in.
func (c HTTPServerConfig) WithDefaults() *HTTPServerConfig {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.GracefulShutdownDuration == 0 {
		c.GracefulShutdownDuration = DefaultGracefulShutdownDuration
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return &c
}
