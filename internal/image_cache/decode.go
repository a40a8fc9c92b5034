package image_cache

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decoder turns an image file into an image.Image.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// ImagingDecoder decodes with the formats registered in the image package
// (jpeg, png, gif, bmp, tiff, webp), optionally applying EXIF orientation.
type ImagingDecoder struct {
	AutoOrient bool
}

func (d ImagingDecoder) Decode(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(d.AutoOrient))
}

// fitDimensions scales (w, h) to the largest size that fits inside box
// while keeping the aspect ratio. Any zero input yields 0x0.
func fitDimensions(w, h int, box Size) (int, int) {
	if w <= 0 || h <= 0 || box.Width <= 0 || box.Height <= 0 {
		return 0, 0
	}

	ratio := math.Min(float64(box.Width)/float64(w), float64(box.Height)/float64(h))
	nw := int(math.Round(float64(w) * ratio))
	nh := int(math.Round(float64(h) * ratio))

	nw = max(1, min(nw, box.Width))
	nh = max(1, min(nh, box.Height))
	return nw, nh
}

// resizeToFit nearest-neighbour scales src into a premultiplied RGBA image fitting box.
func resizeToFit(src image.Image, box Size) *image.RGBA {
	b := src.Bounds()
	w, h := fitDimensions(b.Dx(), b.Dy(), box)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w > 0 && h > 0 {
		xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	}
	return dst
}

// newDecodedImage flattens img into a pixel buffer and computes its average color.
func newDecodedImage(img *image.RGBA, target Size) *DecodedImage {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	pixels := make([]color.RGBA, 0, w*h)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			pixels = append(pixels, color.RGBA{R: row[x], G: row[x+1], B: row[x+2], A: row[x+3]})
		}
	}

	return &DecodedImage{
		Width:   w,
		Height:  h,
		Pixels:  pixels,
		Average: averageColor(pixels),
		Target:  target,
	}
}

// averageColor sums each channel in a 64-bit accumulator before dividing.
func averageColor(pixels []color.RGBA) color.RGBA {
	if len(pixels) == 0 {
		return color.RGBA{}
	}

	var r, g, b, a uint64
	for _, p := range pixels {
		r += uint64(p.R)
		g += uint64(p.G)
		b += uint64(p.B)
		a += uint64(p.A)
	}

	n := uint64(len(pixels))
	return color.RGBA{
		R: uint8(r / n),
		G: uint8(g / n),
		B: uint8(b / n),
		A: uint8(a / n),
	}
}

// Pixel store payload: magic, width, height, target width, target height,
// average RGBA, then width*height RGBA pixels.
const (
	pixelMagic      = "BXPX"
	pixelHeaderSize = len(pixelMagic) + 4*4 + 4
)

var errBadPixelPayload = errors.New("malformed pixel store payload")

func marshalPixels(d *DecodedImage) []byte {
	buf := make([]byte, pixelHeaderSize, pixelHeaderSize+len(d.Pixels)*4)
	copy(buf, pixelMagic)
	o := len(pixelMagic)
	binary.LittleEndian.PutUint32(buf[o:], uint32(d.Width))
	binary.LittleEndian.PutUint32(buf[o+4:], uint32(d.Height))
	binary.LittleEndian.PutUint32(buf[o+8:], uint32(d.Target.Width))
	binary.LittleEndian.PutUint32(buf[o+12:], uint32(d.Target.Height))
	buf[o+16], buf[o+17], buf[o+18], buf[o+19] = d.Average.R, d.Average.G, d.Average.B, d.Average.A

	for _, p := range d.Pixels {
		buf = append(buf, p.R, p.G, p.B, p.A)
	}
	return buf
}

func unmarshalPixels(data []byte) (*DecodedImage, error) {
	if len(data) < pixelHeaderSize || string(data[:len(pixelMagic)]) != pixelMagic {
		return nil, errBadPixelPayload
	}

	o := len(pixelMagic)
	w := int(binary.LittleEndian.Uint32(data[o:]))
	h := int(binary.LittleEndian.Uint32(data[o+4:]))
	target := Size{
		Width:  int(binary.LittleEndian.Uint32(data[o+8:])),
		Height: int(binary.LittleEndian.Uint32(data[o+12:])),
	}
	avg := color.RGBA{R: data[o+16], G: data[o+17], B: data[o+18], A: data[o+19]}

	body := data[pixelHeaderSize:]
	if len(body) != w*h*4 {
		return nil, errBadPixelPayload
	}

	pixels := make([]color.RGBA, w*h)
	for i := range pixels {
		p := body[i*4 : i*4+4]
		pixels[i] = color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
	}

	return &DecodedImage{
		Width:   w,
		Height:  h,
		Pixels:  pixels,
		Average: avg,
		Target:  target,
	}, nil
}
