package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"printview/internal/thumbcache"
)

// Pixel bounds for the two thumbnail variants served to the touchscreen.
const (
	smallMaxDim = 160
	largeMaxDim = 480
)

// LocationLocal is the location name for files on the printer's own storage.
const LocationLocal = "local"

// BackendExtractor asks the printer backend to extract a thumbnail, used for
// sliced print formats whose previews only the backend can decode.
type BackendExtractor interface {
	ExtractThumbnailBytes(ctx context.Context, location, subdirectory, fileName string, size string) ([]byte, error)
}

// Router picks an extraction strategy per request: plain image files on local
// storage are downscaled in-process with vips, everything else is delegated
// to the backend. Implements thumbcache.Extractor.
type Router struct {
	local   *LocalExtractor
	backend BackendExtractor
}

func NewRouter(dataDir string, backend BackendExtractor, logger *zap.Logger) *Router {
	return &Router{
		local:   NewLocalExtractor(dataDir, logger),
		backend: backend,
	}
}

func (r *Router) ExtractThumbnailBytes(ctx context.Context, location, subdirectory, fileName string, size thumbcache.Size) ([]byte, error) {
	if location == LocationLocal && isImageFile(fileName) {
		return r.local.Extract(ctx, subdirectory, fileName, size)
	}
	return r.backend.ExtractThumbnailBytes(ctx, location, subdirectory, fileName, string(size))
}

// LocalExtractor renders thumbnails from image files on local storage.
type LocalExtractor struct {
	dataDir string
	logger  *zap.Logger
}

func NewLocalExtractor(dataDir string, logger *zap.Logger) *LocalExtractor {
	return &LocalExtractor{dataDir: dataDir, logger: logger}
}

func (e *LocalExtractor) Extract(ctx context.Context, subdirectory, fileName string, size thumbcache.Size) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(e.dataDir, subdirectory, fileName)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(e.dataDir)) {
		return nil, fmt.Errorf("file path escapes data directory: %s", path)
	}

	image, err := loadImage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer image.Close()

	maxDim := float64(image.Width())
	if h := float64(image.Height()); h > maxDim {
		maxDim = h
	}

	target := float64(smallMaxDim)
	if size == thumbcache.SizeLarge {
		target = float64(largeMaxDim)
	}

	// Never upscale; small sources are exported as-is.
	if scale := target / maxDim; scale < 1 {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := image.Resize(scale, resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = 82
	jpegOpts.Interlace = false

	data, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}

	return data, nil
}

func isImageFile(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".tif", ".tiff", ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}

// loadImage loads an image based on file extension
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// Thumbnails read the whole image once, so sequential access is enough.
	access := vips.AccessSequential

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", ext)
	}
}
