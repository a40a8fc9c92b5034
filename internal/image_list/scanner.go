package image_list

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotAFile   = errors.New("not a file")
	ErrNotAnImage = errors.New("not a supported image")
)

// SourceError reports a path the image list refuses to hand to a decoder.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("image source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// IsSupported reports whether the file extension is one the decoders handle.
func IsSupported(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// CheckFile rejects anything that is not a regular file with a supported extension.
func CheckFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &SourceError{Path: path, Err: ErrNotAFile}
	}
	if !IsSupported(path) {
		return nil, &SourceError{Path: path, Err: ErrNotAnImage}
	}
	return info, nil
}

type ImageFile struct {
	Index   int       `json:"index"`
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"mod_time"`
}

// Prober reads pixel dimensions without decoding the whole image.
type Prober interface {
	Probe(path string) (width, height int, err error)
}

// Scanner keeps the sorted list of images found in one directory.
type Scanner struct {
	dataDir string
	prober  Prober
	logger  *zap.Logger

	mu     sync.RWMutex
	images []ImageFile
}

// New creates a scanner. prober may be nil, in which case dimensions are left at zero.
func New(dataDir string, prober Prober, logger *zap.Logger) *Scanner {
	return &Scanner{
		dataDir: dataDir,
		prober:  prober,
		logger:  logger,
		images:  []ImageFile{},
	}
}

func (s *Scanner) Scan() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read image directory: %w", err)
	}

	images := make([]ImageFile, 0, len(entries))
	skipped := 0

	for _, entry := range entries {
		path := filepath.Join(s.dataDir, entry.Name())

		info, err := CheckFile(path)
		if err != nil {
			if !entry.IsDir() {
				s.logger.Debug("Skipping file", zap.String("path", path), zap.Error(err))
				skipped++
			}
			continue
		}

		images = append(images, ImageFile{
			Name:    entry.Name(),
			Path:    path,
			Bytes:   info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Path < images[j].Path
	})

	for i := range images {
		images[i].Index = i
		if s.prober == nil {
			continue
		}
		w, h, err := s.prober.Probe(images[i].Path)
		if err != nil {
			s.logger.Warn("Failed to probe image", zap.String("path", images[i].Path), zap.Error(err))
			continue
		}
		images[i].Width = w
		images[i].Height = h
	}

	s.mu.Lock()
	s.images = images
	s.mu.Unlock()

	s.logger.Info("Scanned image directory",
		zap.String("dir", s.dataDir),
		zap.Int("images", len(images)),
		zap.Int("skipped", skipped))

	return nil
}

func (s *Scanner) GetImages() []ImageFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ImageFile, len(s.images))
	copy(out, s.images)
	return out
}

func (s *Scanner) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

func (s *Scanner) GetImage(index int) (ImageFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.images) {
		return ImageFile{}, false
	}
	return s.images[index], true
}

// PathAt resolves an index to a file path; out-of-range indices report false.
func (s *Scanner) PathAt(index int) (string, bool) {
	img, ok := s.GetImage(index)
	if !ok {
		return "", false
	}
	return img.Path, true
}
