package image_cache

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// ImageLookup is the cache key: a position in the ordered image list.
type ImageLookup struct {
	Index int
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// DecodedImage is the immutable output of one decode. Pixels holds
// premultiplied RGBA values, row-major, len(Pixels) == Width*Height.
type DecodedImage struct {
	Width   int
	Height  int
	Pixels  []color.RGBA
	Average color.RGBA
	// Target is the target size the worker resized for.
	Target Size
	// SourceModTime is the file's modification time when it was read.
	SourceModTime time.Time
}

// Empty reports a zero-dimension decode, which callers must not display.
func (d *DecodedImage) Empty() bool {
	return d.Width == 0 || d.Height == 0
}

// RGBA copies the pixels into an *image.RGBA for encoders and GPU upload.
func (d *DecodedImage) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	for i, p := range d.Pixels {
		o := i * 4
		img.Pix[o+0] = p.R
		img.Pix[o+1] = p.G
		img.Pix[o+2] = p.B
		img.Pix[o+3] = p.A
	}
	return img
}

// AverageHex renders the average color as #rrggbb, or "" for a fully transparent average.
func (d *DecodedImage) AverageHex() string {
	c, ok := colorful.MakeColor(d.Average)
	if !ok {
		return ""
	}
	return c.Hex()
}

// Source resolves image indices to file paths.
type Source interface {
	PathAt(index int) (string, bool)
}

// Request asks a worker to decode one image. ID correlates worker log lines.
type Request struct {
	Lookup ImageLookup
	Path   string
	ID     string
}

// Result is exactly one of Image or Err.
type Result struct {
	Lookup ImageLookup
	Image  *DecodedImage
	Err    error
}

type State int

const (
	Unrequested State = iota
	Pending
	Cached
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Cached:
		return "cached"
	default:
		return "unrequested"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Stats struct {
	Workers   int    `json:"workers"`
	Target    Size   `json:"target"`
	Cached    int    `json:"cached"`
	Pending   int    `json:"pending"`
	Requested uint64 `json:"requested"`
	Decoded   uint64 `json:"decoded"`
	Failed    uint64 `json:"failed"`
	Stale     uint64 `json:"stale"`
	Evicted   uint64 `json:"evicted"`
}

// sharedSize is the target size: written by the coordinator, copied by workers.
type sharedSize struct {
	mu   sync.Mutex
	size Size
}

func (s *sharedSize) Load() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Store replaces the size and reports whether it differed.
func (s *sharedSize) Store(size Size) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == size {
		return false
	}
	s.size = size
	return true
}
