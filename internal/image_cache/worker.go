package image_cache

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"boxmark/internal/cache"
	"boxmark/internal/image_list"
)

// worker drains the shared request queue until it is closed.
type worker struct {
	id       int
	requests <-chan Request
	results  chan<- Result
	done     <-chan struct{}
	size     *sharedSize
	decoder  Decoder
	store    cache.Cache
	backoff  time.Duration
	log      *zap.Logger
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	w.log.Debug("Started decode worker")
	defer w.log.Debug("Stopped decode worker")

	idle := time.NewTimer(w.backoff)
	defer idle.Stop()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		idle.Reset(w.backoff)

		select {
		case <-w.done:
			return
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			if !w.send(w.process(req)) {
				return
			}
		case <-idle.C:
			// Nothing queued within one backoff interval; poll again.
		}
	}
}

// send blocks while the response queue is full. It gives up, dropping the
// result, only when the cache is closing.
func (w *worker) send(res Result) bool {
	select {
	case w.results <- res:
		return true
	case <-w.done:
		w.log.Debug("Dropped result, cache is closing", zap.Int("index", res.Lookup.Index))
		return false
	}
}

func (w *worker) process(req Request) (res Result) {
	start := time.Now()
	log := w.log.With(
		zap.Int("index", req.Lookup.Index),
		zap.String("request_id", req.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			res = Result{Lookup: req.Lookup, Err: &DecodeError{
				Lookup: req.Lookup,
				Path:   req.Path,
				Kind:   KindPanic,
				Err:    fmt.Errorf("%v", r),
			}}
		}
	}()

	info, err := image_list.CheckFile(req.Path)
	if err != nil {
		return Result{Lookup: req.Lookup, Err: err}
	}

	size := w.size.Load()
	key := cache.PixelKey{Path: req.Path, ModTime: info.ModTime().UnixNano(), Width: size.Width, Height: size.Height}
	if data, ok := w.store.Get(key); ok {
		img, err := unmarshalPixels(data)
		if err == nil {
			img.SourceModTime = info.ModTime()
			log.Debug("Pixel store hit", zap.Stringer("target", size))
			return Result{Lookup: req.Lookup, Image: img}
		}
		log.Warn("Discarding pixel store entry", zap.String("path", req.Path), zap.Error(err))
	}

	src, err := w.decoder.Decode(req.Path)
	if err != nil {
		return Result{Lookup: req.Lookup, Err: &DecodeError{
			Lookup: req.Lookup,
			Path:   req.Path,
			Kind:   classify(err),
			Err:    err,
		}}
	}

	// Take the size again: it may have changed while decoding.
	size = w.size.Load()
	img := newDecodedImage(resizeToFit(src, size), size)
	img.SourceModTime = info.ModTime()

	key.Width, key.Height = size.Width, size.Height
	w.store.Set(key, marshalPixels(img))

	log.Debug("Decoded image",
		zap.String("path", req.Path),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Duration("duration", time.Since(start)),
	)

	return Result{Lookup: req.Lookup, Image: img}
}
