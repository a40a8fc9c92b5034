package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// FileCache keeps zstd-compressed pixel buffers on disk so they survive restarts.
// Layout: {storeDir}/{sha256(path)[:16]}/{modTime}_{width}x{height}.px.zst
type FileCache struct {
	mu       sync.RWMutex
	storeDir string
	log      *zap.Logger

	// EncodeAll and DecodeAll are safe for concurrent use.
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewFileCache(storeDir string, log *zap.Logger) (*FileCache, error) {
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pixel store directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &FileCache{
		storeDir: storeDir,
		log:      log.Named("pixel_store"),
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

func (c *FileCache) sourceDir(path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(c.storeDir, hex.EncodeToString(sum[:])[:16])
}

func (c *FileCache) entryPath(key PixelKey) string {
	name := fmt.Sprintf("%d_%dx%d.px.zst", key.ModTime, key.Width, key.Height)
	return filepath.Join(c.sourceDir(key.Path), name)
}

func (c *FileCache) Has(key PixelKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.entryPath(key))
	return err == nil
}

func (c *FileCache) Get(key PixelKey) ([]byte, bool) {
	c.mu.RLock()
	compressed, err := os.ReadFile(c.entryPath(key))
	c.mu.RUnlock()
	if err != nil {
		return nil, false
	}

	data, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		c.log.Warn("Corrupt pixel store entry", zap.String("path", key.Path), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Set writes the entry and drops entries left behind by older versions of the same file.
func (c *FileCache) Set(key PixelKey, value []byte) {
	compressed := c.encoder.EncodeAll(value, make([]byte, 0, len(value)/4))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(c.entryPath(key), compressed); err != nil {
		c.log.Warn("Failed to write pixel store entry", zap.String("path", key.Path), zap.Error(err))
		return
	}
	c.pruneOlder(key)
}

func (c *FileCache) write(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (c *FileCache) pruneOlder(key PixelKey) {
	dir := c.sourceDir(key.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	current := strconv.FormatInt(key.ModTime, 10) + "_"
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), current) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			c.log.Debug("Pruned stale pixel store entry", zap.String("path", key.Path), zap.String("entry", e.Name()))
		}
	}
}

func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.storeDir); err != nil {
		c.log.Warn("Failed to clear pixel store", zap.Error(err))
		return
	}
	if err := os.MkdirAll(c.storeDir, 0755); err != nil {
		c.log.Warn("Failed to recreate pixel store directory", zap.Error(err))
	}
}
