package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              int
	ImageDir          string
	TargetWidth       int
	TargetHeight      int
	MaxTargetSide     int
	DecodeWorkers     int
	CacheCapacity     int
	EvictionRadius    int
	IdleBackoff       time.Duration
	PixelStore        string
	PixelStoreDir     string
	PixelStoreEntries int
	ProbeDimensions   bool
	VipsMaxCacheMB    int
	VipsConcurrency   int
	JPEGQuality       int
	Warmup            bool
	LogLevel          string
	LogFormat         string
	AllowedOrigin     string
}

func Load() *Config {
	imageDir := getEnv("IMAGE_DIR", "./images")

	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		ImageDir:          imageDir,
		TargetWidth:       getEnvInt("TARGET_WIDTH", 1280),
		TargetHeight:      getEnvInt("TARGET_HEIGHT", 720),
		MaxTargetSide:     getEnvInt("MAX_TARGET_SIDE", 8192),
		DecodeWorkers:     getEnvInt("DECODE_WORKERS", 0),
		CacheCapacity:     getEnvInt("CACHE_CAPACITY", 50),
		EvictionRadius:    getEnvInt("EVICTION_RADIUS", 25),
		IdleBackoff:       getEnvDuration("IDLE_BACKOFF_MS", 100*time.Millisecond),
		PixelStore:        getEnv("PIXEL_STORE", "disabled"),
		PixelStoreDir:     getEnv("PIXEL_STORE_DIR", filepath.Join(imageDir, ".boxmark-cache")),
		PixelStoreEntries: getEnvInt("PIXEL_STORE_ENTRIES", 200),
		ProbeDimensions:   getEnvBool("PROBE_DIMENSIONS", true),
		VipsMaxCacheMB:    getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency:   getEnvInt("VIPS_CONCURRENCY", 1),
		JPEGQuality:       getEnvInt("JPEG_QUALITY", 85),
		Warmup:            getEnvBool("WARMUP", true),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		AllowedOrigin:     getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// Workers resolves DecodeWorkers, where zero means one worker per CPU.
func (c *Config) Workers() int {
	if c.DecodeWorkers > 0 {
		return c.DecodeWorkers
	}
	return runtime.NumCPU()
}

func (c *Config) Validate() error {
	if c.TargetWidth < 0 || c.TargetHeight < 0 {
		return fmt.Errorf("target size must not be negative: %dx%d", c.TargetWidth, c.TargetHeight)
	}
	if c.MaxTargetSide < 1 {
		return fmt.Errorf("MAX_TARGET_SIDE must be positive: %d", c.MaxTargetSide)
	}
	if c.TargetWidth > c.MaxTargetSide || c.TargetHeight > c.MaxTargetSide {
		return fmt.Errorf("target size %dx%d exceeds MAX_TARGET_SIDE %d", c.TargetWidth, c.TargetHeight, c.MaxTargetSide)
	}
	if c.DecodeWorkers < 0 {
		return fmt.Errorf("DECODE_WORKERS must not be negative: %d", c.DecodeWorkers)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be positive: %d", c.CacheCapacity)
	}
	if c.EvictionRadius < 0 {
		return fmt.Errorf("EVICTION_RADIUS must not be negative: %d", c.EvictionRadius)
	}
	if c.IdleBackoff <= 0 {
		return fmt.Errorf("IDLE_BACKOFF_MS must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100: %d", c.JPEGQuality)
	}
	switch c.PixelStore {
	case "memory", "file", "disabled":
	default:
		return fmt.Errorf("unknown PIXEL_STORE: %s (supported: memory, file, disabled)", c.PixelStore)
	}

	info, err := os.Stat(c.ImageDir)
	if err != nil {
		return fmt.Errorf("image directory %s does not exist: %w", c.ImageDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", c.ImageDir)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a millisecond count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
