package cache

// NoopCache is the disabled pixel store: every lookup misses and writes are dropped.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (*NoopCache) Get(PixelKey) ([]byte, bool) { return nil, false }
func (*NoopCache) Set(PixelKey, []byte) {}
func (*NoopCache) Has(PixelKey) bool { return false }
func (*NoopCache) Clear() {}
