package image_cache

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"

	"boxmark/internal/cache"
	"boxmark/internal/image_list"
)

func writeJPEG(t testing.TB, path string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 40, G: 120, B: 200, A: 255})
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		t.Fatal(err)
	}
}

func newTestWorker(t *testing.T, size Size, decoder Decoder, store cache.Cache) *worker {
	return &worker{
		id:       1,
		requests: make(chan Request),
		results:  make(chan Result, 1),
		done:     make(chan struct{}),
		size:     &sharedSize{size: size},
		decoder:  decoder,
		store:    store,
		backoff:  10 * time.Millisecond,
		log:      zaptest.NewLogger(t),
	}
}

type panicDecoder struct{}

func (panicDecoder) Decode(string) (image.Image, error) {
	panic("corrupt huffman table")
}

type countingDecoder struct {
	calls int
}

func (d *countingDecoder) Decode(path string) (image.Image, error) {
	d.calls++
	return ImagingDecoder{}.Decode(path)
}

func TestProcessDecodesAndResizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	writeJPEG(t, path, 640, 480)

	w := newTestWorker(t, Size{500, 500}, ImagingDecoder{AutoOrient: true}, cache.NewNoopCache())
	res := w.process(Request{Lookup: ImageLookup{Index: 3}, Path: path})

	if res.Err != nil {
		t.Fatalf("process: %v", res.Err)
	}
	if res.Lookup.Index != 3 {
		t.Errorf("Lookup = %+v, want index 3", res.Lookup)
	}
	img := res.Image
	if img.Width != 500 || img.Height != 375 {
		t.Errorf("decoded to %dx%d, want 500x375", img.Width, img.Height)
	}
	if img.Target != (Size{500, 500}) {
		t.Errorf("Target = %v, want 500x500", img.Target)
	}
	if len(img.Pixels) != img.Width*img.Height {
		t.Errorf("len(Pixels) = %d, want %d", len(img.Pixels), img.Width*img.Height)
	}
	if img.Average.A != 255 {
		t.Errorf("opaque source averaged to alpha %d", img.Average.A)
	}
}

func TestProcessErrors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(garbage, []byte("this is not an image at all"), 0644); err != nil {
		t.Fatal(err)
	}

	full := filepath.Join(dir, "full.jpg")
	writeJPEG(t, full, 64, 64)
	data, err := os.ReadFile(full)
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.jpg")
	if err := os.WriteFile(truncated, data[:len(data)/3], 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		decoder Decoder
		kind    Kind
	}{
		{"unknown format", garbage, ImagingDecoder{}, KindFormat},
		{"truncated", truncated, ImagingDecoder{}, KindOpen},
		{"decoder panic", full, panicDecoder{}, KindPanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorker(t, Size{100, 100}, tt.decoder, cache.NewNoopCache())
			res := w.process(Request{Lookup: ImageLookup{Index: 7}, Path: tt.path})

			if res.Image != nil {
				t.Fatal("failed decode returned an image")
			}
			var decErr *DecodeError
			if !errors.As(res.Err, &decErr) {
				t.Fatalf("error %v is not a *DecodeError", res.Err)
			}
			if decErr.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", decErr.Kind, tt.kind)
			}
			if decErr.Lookup.Index != 7 || decErr.Path != tt.path {
				t.Errorf("error carries %+v / %q", decErr.Lookup, decErr.Path)
			}
		})
	}
}

func TestProcessMissingFile(t *testing.T) {
	w := newTestWorker(t, Size{100, 100}, ImagingDecoder{}, cache.NewNoopCache())
	res := w.process(Request{Lookup: ImageLookup{Index: 0}, Path: filepath.Join(t.TempDir(), "gone.png")})

	var srcErr *image_list.SourceError
	if !errors.As(res.Err, &srcErr) {
		t.Fatalf("error %v is not a *image_list.SourceError", res.Err)
	}
	if !errors.Is(res.Err, os.ErrNotExist) {
		t.Errorf("error %v does not wrap os.ErrNotExist", res.Err)
	}
}

func TestProcessUsesPixelStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	writeJPEG(t, path, 200, 100)

	store := cache.NewMemoryCache(8)
	decoder := &countingDecoder{}
	w := newTestWorker(t, Size{100, 100}, decoder, store)

	first := w.process(Request{Lookup: ImageLookup{Index: 0}, Path: path})
	if first.Err != nil {
		t.Fatalf("first process: %v", first.Err)
	}
	second := w.process(Request{Lookup: ImageLookup{Index: 0}, Path: path})
	if second.Err != nil {
		t.Fatalf("second process: %v", second.Err)
	}

	if decoder.calls != 1 {
		t.Errorf("decoder called %d times, want 1", decoder.calls)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range []Result{first, second} {
		if !res.Image.SourceModTime.Equal(info.ModTime()) {
			t.Errorf("SourceModTime = %v, want %v", res.Image.SourceModTime, info.ModTime())
		}
	}
	if second.Image.Width != 100 || second.Image.Height != 50 || second.Image.Average != first.Image.Average {
		t.Errorf("stored image differs: %+v vs %+v", second.Image.Target, first.Image.Target)
	}

	// A new size misses the store.
	w.size.Store(Size{50, 50})
	third := w.process(Request{Lookup: ImageLookup{Index: 0}, Path: path})
	if third.Err != nil {
		t.Fatalf("third process: %v", third.Err)
	}
	if decoder.calls != 2 {
		t.Errorf("decoder called %d times after resize, want 2", decoder.calls)
	}
	if third.Image.Width != 50 || third.Image.Height != 25 {
		t.Errorf("decoded to %dx%d, want 50x25", third.Image.Width, third.Image.Height)
	}
}

func TestWorkerExitsWhenRequestsClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	writeJPEG(t, path, 32, 32)

	requests := make(chan Request, 1)
	results := make(chan Result, 1)
	done := make(chan struct{})
	w := newTestWorker(t, Size{16, 16}, ImagingDecoder{}, cache.NewNoopCache())
	w.requests, w.results, w.done = requests, results, done

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var wg sync.WaitGroup
		wg.Add(1)
		w.run(&wg)
	}()

	requests <- Request{Lookup: ImageLookup{Index: 1}, Path: path}
	select {
	case res := <-results:
		if res.Err != nil || res.Lookup.Index != 1 {
			t.Errorf("unexpected result %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker produced no result")
	}

	close(requests)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after requests closed")
	}
	close(done)
}

func TestWorkerUnblocksOnDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	writeJPEG(t, path, 32, 32)

	requests := make(chan Request, 2)
	results := make(chan Result) // never read
	done := make(chan struct{})
	w := newTestWorker(t, Size{16, 16}, ImagingDecoder{}, cache.NewNoopCache())
	w.requests, w.results, w.done = requests, results, done

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var wg sync.WaitGroup
		wg.Add(1)
		w.run(&wg)
	}()

	requests <- Request{Lookup: ImageLookup{Index: 0}, Path: path}
	time.Sleep(50 * time.Millisecond)
	close(done)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("worker blocked on a full result queue after done closed")
	}
}
