package cache

// PixelKey identifies one resized pixel buffer: the source file as it was when
// decoded and the target box it was resized to.
type PixelKey struct {
	Path    string
	ModTime int64
	Width   int
	Height  int
}

// Cache is a second-level store of encoded pixel buffers shared by decode workers.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key PixelKey) ([]byte, bool)
	Set(key PixelKey, value []byte)
	Has(key PixelKey) bool // Check without reading the payload
	Clear()
}
