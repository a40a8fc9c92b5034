package image_cache

import (
	"image"
	"image/color"
	"testing"
)

func TestFitDimensions(t *testing.T) {
	tests := []struct {
		w, h  int
		box   Size
		wantW int
		wantH int
	}{
		{640, 480, Size{500, 500}, 500, 375},
		{100, 400, Size{500, 500}, 125, 500},
		{200, 150, Size{500, 500}, 500, 375},
		{500, 500, Size{500, 500}, 500, 500},
		{3000, 10, Size{300, 300}, 300, 1},
		{0, 10, Size{300, 300}, 0, 0},
		{10, 10, Size{0, 300}, 0, 0},
	}

	for _, tt := range tests {
		w, h := fitDimensions(tt.w, tt.h, tt.box)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitDimensions(%d, %d, %v) = %dx%d, want %dx%d", tt.w, tt.h, tt.box, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestResizeToFitPremultiplies(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 128})
		}
	}

	img := newDecodedImage(resizeToFit(src, Size{2, 2}), Size{2, 2})

	if img.Width != 2 || img.Height != 1 {
		t.Fatalf("resized to %dx%d, want 2x1", img.Width, img.Height)
	}
	if len(img.Pixels) != img.Width*img.Height {
		t.Fatalf("len(Pixels) = %d, want %d", len(img.Pixels), img.Width*img.Height)
	}
	for i, p := range img.Pixels {
		if p.A != 128 || p.R != 128 || p.G != 0 || p.B != 0 {
			t.Errorf("pixel %d = %+v, want premultiplied {128 0 0 128}", i, p)
		}
	}
}

func TestResizeToFitZeroTarget(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img := newDecodedImage(resizeToFit(src, Size{}), Size{})

	if !img.Empty() {
		t.Errorf("zero target should give an empty image, got %dx%d", img.Width, img.Height)
	}
	if len(img.Pixels) != 0 {
		t.Errorf("empty image has %d pixels", len(img.Pixels))
	}
	if img.Average != (color.RGBA{}) {
		t.Errorf("average of no pixels = %+v", img.Average)
	}
}

func TestAverageColorKeepsChannelOrder(t *testing.T) {
	pixels := []color.RGBA{
		{R: 200, G: 10, B: 0, A: 255},
		{R: 100, G: 30, B: 60, A: 255},
	}

	got := averageColor(pixels)
	want := color.RGBA{R: 150, G: 20, B: 30, A: 255}
	if got != want {
		t.Errorf("averageColor = %+v, want %+v", got, want)
	}
}

func TestAverageColorLargeBuffer(t *testing.T) {
	// 4096x4096 white pixels overflow 32-bit channel sums.
	pixels := make([]color.RGBA, 4096*4096)
	for i := range pixels {
		pixels[i] = color.RGBA{255, 255, 255, 255}
	}
	if got := averageColor(pixels); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("averageColor = %+v, want white", got)
	}
}

func TestAverageHex(t *testing.T) {
	img := &DecodedImage{Average: color.RGBA{R: 255, G: 128, B: 0, A: 255}}
	if got := img.AverageHex(); got != "#ff8000" {
		t.Errorf("AverageHex = %q, want #ff8000", got)
	}

	transparent := &DecodedImage{}
	if got := transparent.AverageHex(); got != "" {
		t.Errorf("AverageHex of transparent = %q, want empty", got)
	}
}

func TestPixelPayload(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	want := newDecodedImage(src, Size{3, 3})

	got, err := unmarshalPixels(marshalPixels(want))
	if err != nil {
		t.Fatalf("unmarshalPixels: %v", err)
	}
	if got.Width != want.Width || got.Height != want.Height || got.Target != want.Target || got.Average != want.Average {
		t.Errorf("header changed: got %+v", got)
	}
	for i := range want.Pixels {
		if got.Pixels[i] != want.Pixels[i] {
			t.Fatalf("pixel %d = %+v, want %+v", i, got.Pixels[i], want.Pixels[i])
		}
	}

	if _, err := unmarshalPixels([]byte("BXPX")); err == nil {
		t.Error("short payload accepted")
	}
	truncated := marshalPixels(want)
	if _, err := unmarshalPixels(truncated[:len(truncated)-1]); err == nil {
		t.Error("truncated payload accepted")
	}
}

func TestRGBA(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(1, 1, color.RGBA{1, 2, 3, 4})
	img := newDecodedImage(src, Size{2, 2})

	if got := img.RGBA().RGBAAt(1, 1); got != (color.RGBA{1, 2, 3, 4}) {
		t.Errorf("RGBA().RGBAAt(1,1) = %+v", got)
	}
}
