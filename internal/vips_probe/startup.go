package vips_probe

import (
	"fmt"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"
)

// Config sizes libvips for header probing. Probing never decodes pixels, so
// the operation cache only needs to be small.
type Config struct {
	MaxCacheMB  int
	Concurrency int
}

func (c Config) validate() error {
	if c.MaxCacheMB < 0 {
		return fmt.Errorf("vips cache size must not be negative: %d MB", c.MaxCacheMB)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("vips concurrency must not be negative: %d", c.Concurrency)
	}
	return nil
}

// Startup initialises libvips and routes its warnings and errors to log.
// The returned func shuts libvips down.
func Startup(cfg Config, log *zap.Logger) (func(), error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log = log.Named("vips")
	vips.SetLogging(logBridge(log), vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024,
		VectorEnabled:    true,
	})

	log.Info("libvips started", zap.Int("max_cache_mb", cfg.MaxCacheMB), zap.Int("concurrency", cfg.Concurrency))
	return vips.Shutdown, nil
}

func logBridge(log *zap.Logger) func(domain string, level vips.LogLevel, message string) {
	return func(domain string, level vips.LogLevel, message string) {
		fields := []zap.Field{zap.String("domain", domain), zap.String("message", message)}
		if level >= vips.LogLevelError {
			log.Error("libvips error", fields...)
			return
		}
		log.Warn("libvips warning", fields...)
	}
}
