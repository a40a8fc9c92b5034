package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"boxmark/internal/cache"
	"boxmark/internal/config"
	httphandlers "boxmark/internal/http"
	"boxmark/internal/image_cache"
	"boxmark/internal/image_list"
	"boxmark/internal/image_renderer"
	"boxmark/internal/logger"
	"boxmark/internal/vips_probe"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Starting boxmark server",
		zap.Int("port", cfg.Port),
		zap.String("image_dir", cfg.ImageDir),
		zap.Int("workers", cfg.Workers()),
	)

	var prober image_list.Prober
	if cfg.ProbeDimensions {
		shutdown, err := vips_probe.Startup(vips_probe.Config{
			MaxCacheMB:  cfg.VipsMaxCacheMB,
			Concurrency: cfg.VipsConcurrency,
		}, log)
		if err != nil {
			log.Fatal("Failed to start libvips", zap.Error(err))
		}
		defer shutdown()
		prober = vips_probe.Prober{}
	}

	scanner := image_list.New(cfg.ImageDir, prober, log)
	if err := scanner.Scan(); err != nil {
		log.Fatal("Initial scan failed", zap.Error(err))
	}

	store, err := cache.NewCache(cfg.PixelStore, cfg.PixelStoreDir, cfg.PixelStoreEntries, log)
	if err != nil {
		log.Fatal("Failed to initialize pixel store", zap.Error(err))
	}

	imageCache := image_cache.New(
		image_cache.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight},
		image_cache.Config{
			Workers:     cfg.Workers(),
			Capacity:    cfg.CacheCapacity,
			Radius:      cfg.EvictionRadius,
			IdleBackoff: cfg.IdleBackoff,
			Decoder:     image_cache.ImagingDecoder{AutoOrient: true},
			Store:       store,
		},
		log,
	)
	renderer := image_renderer.New(scanner, imageCache, cfg.JPEGQuality, cfg.MaxTargetSide, log)
	defer renderer.Close()

	handlers := httphandlers.New(cfg, log, renderer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Warmup && scanner.Len() > 0 {
		go warmup(ctx, renderer, cfg.IdleBackoff, log)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	<-ctx.Done()

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}

// warmup fills the prefetch window around index 0 before the first client asks.
func warmup(ctx context.Context, renderer *image_renderer.Renderer, poll time.Duration, log *zap.Logger) {
	start := time.Now()
	log.Info("Starting cache warmup")

	switch err := renderer.Warmup(ctx, poll); {
	case err == nil:
		log.Info("Cache warmup completed", zap.Duration("duration", time.Since(start)))
	case errors.Is(err, context.Canceled):
	default:
		log.Warn("Warmup stopped", zap.Error(err))
	}
}
