package vips_probe

import (
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"

	"boxmark/internal/image_list"
)

type headerLoader func(path string) (*vips.Image, error)

// Sequential access lets libvips stop after the header.
var headerLoaders = map[string]headerLoader{
	".jpg":  loadJpeg,
	".jpeg": loadJpeg,
	".png": func(path string) (*vips.Image, error) {
		opts := vips.DefaultPngloadOptions()
		opts.Access = vips.AccessSequential
		return vips.NewPngload(path, opts)
	},
	".webp": func(path string) (*vips.Image, error) {
		opts := vips.DefaultWebploadOptions()
		opts.Access = vips.AccessSequential
		return vips.NewWebpload(path, opts)
	},
	".tif":  loadTiff,
	".tiff": loadTiff,
}

func loadJpeg(path string) (*vips.Image, error) {
	opts := vips.DefaultJpegloadOptions()
	opts.Access = vips.AccessSequential
	return vips.NewJpegload(path, opts)
}

func loadTiff(path string) (*vips.Image, error) {
	opts := vips.DefaultTiffloadOptions()
	opts.Access = vips.AccessSequential
	return vips.NewTiffload(path, opts)
}

// Prober reads dimensions through libvips, falling back to the Go decoders
// for formats libvips is not asked to handle or fails on. Startup must have
// been called.
type Prober struct{}

func (Prober) Probe(path string) (int, int, error) {
	load, ok := headerLoaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return image_list.ConfigProber{}.Probe(path)
	}

	img, err := load(path)
	if err != nil {
		return image_list.ConfigProber{}.Probe(path)
	}
	defer img.Close()

	return img.Width(), img.Height(), nil
}
