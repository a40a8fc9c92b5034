// Package image_cache decodes and resizes images on a worker pool ahead of
// the viewer and keeps a window of ready pixel buffers around the current index.
//
// A Cache is driven by a single goroutine (the interactive loop): Get,
// SetTargetSize and Close must not be called concurrently. Workers only ever
// touch the request and response queues and the shared target size.
package image_cache

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"boxmark/internal/cache"
)

type Config struct {
	// Workers is the pool size and the capacity of both queues. Zero means one per CPU.
	Workers int
	// Capacity is the entry count above which distance eviction runs.
	Capacity int
	// Radius is the largest index distance an entry may have from the
	// current lookup and survive eviction.
	Radius int
	// IdleBackoff bounds how long an idle worker waits before polling again.
	IdleBackoff time.Duration
	Decoder     Decoder
	// Store is consulted by workers before decoding. Nil disables it.
	Store cache.Cache
}

func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		Capacity:    50,
		Radius:      25,
		IdleBackoff: 100 * time.Millisecond,
		Decoder:     ImagingDecoder{AutoOrient: true},
		Store:       cache.NewNoopCache(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.Radius < 0 {
		c.Radius = def.Radius
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = def.IdleBackoff
	}
	if c.Decoder == nil {
		c.Decoder = def.Decoder
	}
	if c.Store == nil {
		c.Store = def.Store
	}
	return c
}

// Cache is the prefetching coordinator.
type Cache struct {
	cfg  Config
	size *sharedSize
	log  *zap.Logger

	entries map[ImageLookup]*DecodedImage
	pending map[ImageLookup]struct{}
	// failures holds the most recent decode error per lookup until it decodes.
	failures map[ImageLookup]error

	requests chan Request
	results  chan Result
	done     chan struct{}
	wg       sync.WaitGroup
	closed   bool

	stats Stats
}

// New starts the worker pool and returns a cache targeting size.
func New(size Size, cfg Config, log *zap.Logger) *Cache {
	c := newCoordinator(size, cfg, log)
	c.startWorkers()
	return c
}

// newCoordinator builds the cache and its queues without starting workers.
func newCoordinator(size Size, cfg Config, log *zap.Logger) *Cache {
	cfg = cfg.withDefaults()

	return &Cache{
		cfg:      cfg,
		size:     &sharedSize{size: size},
		log:      log.Named("image_cache"),
		entries:  make(map[ImageLookup]*DecodedImage),
		pending:  make(map[ImageLookup]struct{}),
		failures: make(map[ImageLookup]error),
		requests: make(chan Request, cfg.Workers),
		results:  make(chan Result, cfg.Workers),
		done:     make(chan struct{}),
	}
}

func (c *Cache) startWorkers() {
	workerLog := c.log.Named("worker")

	for i := 1; i <= c.cfg.Workers; i++ {
		w := &worker{
			id:       i,
			requests: c.requests,
			results:  c.results,
			done:     c.done,
			size:     c.size,
			decoder:  c.cfg.Decoder,
			store:    c.cfg.Store,
			backoff:  c.cfg.IdleBackoff,
			log:      workerLog.With(zap.Int("worker", i)),
		}
		c.wg.Add(1)
		go w.run(&c.wg)
	}

	c.log.Info("Started decode workers",
		zap.Int("workers", c.cfg.Workers),
		zap.Stringer("target", c.size.Load()),
	)
}

// SetTargetSize changes the size workers resize to. When it differs from the
// current size every cached entry is dropped and true is returned.
func (c *Cache) SetTargetSize(size Size) bool {
	if !c.size.Store(size) {
		return false
	}

	dropped := len(c.entries)
	c.stats.Evicted += uint64(dropped)
	clear(c.entries)
	clear(c.failures)

	c.log.Info("Target size changed", zap.Stringer("target", size), zap.Int("dropped", dropped))
	return true
}

func (c *Cache) TargetSize() Size {
	return c.size.Load()
}

// Get returns the decoded image for lookup, or nil while it is not ready.
// Each call also collects finished decodes, evicts distant entries once over
// capacity, and requests the prefetch window starting at lookup.
func (c *Cache) Get(lookup ImageLookup, src Source) *DecodedImage {
	c.drain()

	if len(c.entries) > c.cfg.Capacity {
		c.evict(lookup)
	}

	c.prefetch(lookup, src)

	if _, ok := c.pending[lookup]; ok {
		return nil
	}
	return c.entries[lookup]
}

// drain moves every available result into the cache without blocking.
func (c *Cache) drain() {
	for {
		select {
		case res := <-c.results:
			c.accept(res)
		default:
			return
		}
	}
}

func (c *Cache) accept(res Result) {
	delete(c.pending, res.Lookup)

	if res.Err != nil {
		c.failures[res.Lookup] = res.Err
		c.stats.Failed++
		c.log.Warn("Failed to decode image", zap.Int("index", res.Lookup.Index), zap.Error(res.Err))
		return
	}

	if target := c.size.Load(); res.Image.Target != target {
		c.stats.Stale++
		c.log.Debug("Discarding decode for old target size",
			zap.Int("index", res.Lookup.Index),
			zap.Stringer("decoded_for", res.Image.Target),
			zap.Stringer("target", target),
		)
		return
	}

	c.entries[res.Lookup] = res.Image
	delete(c.failures, res.Lookup)
	c.stats.Decoded++
	c.log.Debug("Cached image", zap.Int("index", res.Lookup.Index))
}

// evict drops every entry further than Radius from lookup.
func (c *Cache) evict(lookup ImageLookup) {
	evicted := 0
	for key := range c.entries {
		if distance(key.Index, lookup.Index) > uint(c.cfg.Radius) {
			delete(c.entries, key)
			evicted++
		}
	}

	for key := range c.failures {
		if distance(key.Index, lookup.Index) > uint(c.cfg.Radius) {
			delete(c.failures, key)
		}
	}

	c.stats.Evicted += uint64(evicted)
	if evicted > 0 {
		c.log.Debug("Evicted distant images",
			zap.Int("index", lookup.Index),
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(c.entries)),
		)
	}
}

// prefetch requests lookup and the Workers/2 indices after it.
func (c *Cache) prefetch(lookup ImageLookup, src Source) {
	for offset := 0; offset <= c.cfg.Workers/2; offset++ {
		if lookup.Index > math.MaxInt-offset {
			return
		}
		next := ImageLookup{Index: lookup.Index + offset}

		if _, ok := c.entries[next]; ok {
			continue
		}
		if _, ok := c.pending[next]; ok {
			continue
		}
		if !c.request(next, src) {
			return
		}
	}
}

// request enqueues one decode. It returns false when the queue is full or
// closed, meaning no later index can be queued during this call either.
func (c *Cache) request(lookup ImageLookup, src Source) bool {
	if c.closed {
		return false
	}

	path, ok := src.PathAt(lookup.Index)
	if !ok {
		c.log.Debug("No image at index", zap.Int("index", lookup.Index))
		return true
	}

	req := Request{Lookup: lookup, Path: path, ID: uuid.NewString()}
	select {
	case c.requests <- req:
		c.pending[lookup] = struct{}{}
		c.stats.Requested++
		c.log.Debug("Requested decode", zap.Int("index", lookup.Index), zap.String("request_id", req.ID))
		return true
	default:
		c.log.Debug("Request queue full", zap.Int("index", lookup.Index))
		return false
	}
}

func (c *Cache) Status(lookup ImageLookup) State {
	if _, ok := c.pending[lookup]; ok {
		return Pending
	}
	if _, ok := c.entries[lookup]; ok {
		return Cached
	}
	return Unrequested
}

// LastError returns the error of the most recent failed decode of lookup, or
// nil once it has decoded. The failed lookup itself is requested again by the
// next Get that covers it.
func (c *Cache) LastError(lookup ImageLookup) error {
	return c.failures[lookup]
}

// Stored reports whether the pixel store holds path, as modified at modTime,
// resized for the current target size.
func (c *Cache) Stored(path string, modTime time.Time) bool {
	size := c.size.Load()
	return c.cfg.Store.Has(cache.PixelKey{
		Path:    path,
		ModTime: modTime.UnixNano(),
		Width:   size.Width,
		Height:  size.Height,
	})
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Pending returns the number of requested but undrained images.
func (c *Cache) Pending() int {
	return len(c.pending)
}

func (c *Cache) Stats() Stats {
	s := c.stats
	s.Workers = c.cfg.Workers
	s.Target = c.size.Load()
	s.Cached = len(c.entries)
	s.Pending = len(c.pending)
	return s
}

// ClearStore empties the pixel store shared by the workers. Entries already
// in the cache are kept.
func (c *Cache) ClearStore() {
	c.cfg.Store.Clear()
	c.log.Info("Cleared pixel store")
}

// Close stops the workers and waits for them to exit. Pending requests are
// abandoned. Close is idempotent; Get after Close never issues requests.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	c.closed = true

	close(c.done)
	close(c.requests)
	c.wg.Wait()

	c.log.Info("Stopped decode workers", zap.Int("abandoned", len(c.pending)))
}

// distance is |a-b| computed in unsigned space so extreme indices cannot overflow.
func distance(a, b int) uint {
	if a > b {
		return uint(a) - uint(b)
	}
	return uint(b) - uint(a)
}
