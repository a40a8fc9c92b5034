package vips_probe

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestStartupRejectsBadConfig(t *testing.T) {
	for _, cfg := range []Config{
		{MaxCacheMB: -1, Concurrency: 1},
		{MaxCacheMB: 64, Concurrency: -1},
	} {
		shutdown, err := Startup(cfg, zaptest.NewLogger(t))
		if err == nil {
			shutdown()
			t.Errorf("Startup(%+v) accepted a bad config", cfg)
		}
	}
}

func TestHeaderLoadersCoverRasterFormats(t *testing.T) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff"} {
		if headerLoaders[ext] == nil {
			t.Errorf("no libvips header loader for %s", ext)
		}
	}
	if headerLoaders[".gif"] != nil {
		t.Error(".gif should fall back to the Go decoders")
	}
}
