package image_renderer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"boxmark/internal/image_cache"
	"boxmark/internal/image_list"
)

var (
	ErrNotFound    = errors.New("image not found")
	ErrNotReady    = errors.New("image not decoded yet")
	ErrEmpty       = errors.New("image decoded to zero size")
	ErrBadFormat   = errors.New("unsupported frame format")
	ErrBadViewport = errors.New("viewport out of range")
)

// Renderer serves frames out of the prefetching cache. The cache must be
// driven from one goroutine at a time, so every call goes through mu.
type Renderer struct {
	mu            sync.Mutex
	scanner       *image_list.Scanner
	cache         *image_cache.Cache
	jpegQuality   int
	maxTargetSide int
	logger        *zap.Logger
}

type Frame struct {
	Data        []byte
	ETag        string
	Size        int
	ContentType string
}

type Meta struct {
	Index   int                   `json:"index"`
	Name    string                `json:"name"`
	State   image_cache.State     `json:"state"`
	Width   int                   `json:"width,omitempty"`
	Height  int                   `json:"height,omitempty"`
	Average string                `json:"average,omitempty"`
	Target  image_cache.Size      `json:"target"`
	Stored  bool                  `json:"stored"`
	Error   string                `json:"error,omitempty"`
	Source  *image_list.ImageFile `json:"source,omitempty"`
}

// New wraps cache. Viewports wider or taller than maxTargetSide are rejected.
func New(scanner *image_list.Scanner, cache *image_cache.Cache, jpegQuality, maxTargetSide int, logger *zap.Logger) *Renderer {
	return &Renderer{
		scanner:       scanner,
		cache:         cache,
		jpegQuality:   jpegQuality,
		maxTargetSide: maxTargetSide,
		logger:        logger,
	}
}

func (r *Renderer) Images() []image_list.ImageFile {
	return r.scanner.GetImages()
}

// get drives one cache step for index. Callers hold mu.
func (r *Renderer) get(index int) (*image_cache.DecodedImage, image_list.ImageFile, error) {
	info, ok := r.scanner.GetImage(index)
	if !ok {
		return nil, image_list.ImageFile{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return r.cache.Get(image_cache.ImageLookup{Index: index}, r.scanner), info, nil
}

// Meta reports the cache state of index, prefetching around it.
func (r *Renderer) Meta(index int) (*Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, info, err := r.get(index)
	if err != nil {
		return nil, err
	}

	lookup := image_cache.ImageLookup{Index: index}
	meta := &Meta{
		Index:  index,
		Name:   info.Name,
		State:  r.cache.Status(lookup),
		Target: r.cache.TargetSize(),
		Stored: r.cache.Stored(info.Path, info.ModTime),
		Source: &info,
	}
	if err := r.cache.LastError(lookup); err != nil {
		meta.Error = err.Error()
	}
	if img != nil {
		meta.Width = img.Width
		meta.Height = img.Height
		meta.Average = img.AverageHex()
	}
	return meta, nil
}

// Frame encodes the decoded image at index as "jpg" or "png".
func (r *Renderer) Frame(index int, format string) (*Frame, error) {
	var (
		imgFormat   imaging.Format
		contentType string
	)
	switch format {
	case "jpg", "jpeg":
		format, imgFormat, contentType = "jpg", imaging.JPEG, "image/jpeg"
	case "png":
		imgFormat, contentType = imaging.PNG, "image/png"
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadFormat, format)
	}

	r.mu.Lock()
	img, info, err := r.get(index)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNotReady
	}
	if img.Empty() {
		return nil, ErrEmpty
	}

	// DecodedImage is immutable, so encoding happens outside the lock.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img.RGBA(), imgFormat, imaging.JPEGQuality(r.jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &Frame{
		Data:        buf.Bytes(),
		ETag:        r.generateETag(info, img, format),
		Size:        buf.Len(),
		ContentType: contentType,
	}, nil
}

// Warmup drives the cache at index 0 every poll until it is decoded. It
// returns index 0's decode error if that decode fails; failures elsewhere in
// the prefetch window do not stop it.
func (r *Renderer) Warmup(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	lookup := image_cache.ImageLookup{Index: 0}
	for {
		r.mu.Lock()
		img, _, err := r.get(0)
		if err == nil && img == nil {
			err = r.cache.LastError(lookup)
		}
		r.mu.Unlock()

		if err != nil {
			return err
		}
		if img != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetViewport retargets the cache. It reports whether cached frames were dropped.
func (r *Renderer) SetViewport(width, height int) (bool, error) {
	if width < 0 || height < 0 || width > r.maxTargetSide || height > r.maxTargetSide {
		return false, fmt.Errorf("%w: %dx%d, limit %d", ErrBadViewport, width, height, r.maxTargetSide)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.SetTargetSize(image_cache.Size{Width: width, Height: height}), nil
}

func (r *Renderer) Stats() image_cache.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Stats()
}

func (r *Renderer) ClearStore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.ClearStore()
}

func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Close()
}

// generateETag keys on the file version the pixels were decoded from, not the
// version seen at scan time.
func (r *Renderer) generateETag(info image_list.ImageFile, img *image_cache.DecodedImage, format string) string {
	keyStr := fmt.Sprintf("%s_%d_%d_%d/%s.%s", info.Name, info.Bytes, info.Index,
		img.SourceModTime.UnixNano(), img.Target, format)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])[:16]
}
