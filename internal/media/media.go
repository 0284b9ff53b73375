// Package media stores auction images and returns their public URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
)

var (
	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("image is empty")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("image exceeds size limit")
	// ErrUnsupportedType is returned for content that is not an image.
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Store persists an image and returns the URL it is served from.
type Store interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// Module provides the configured media store.
var Module = fx.Provide(New)

// New selects the disk or noop store.
func New(cfg config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Media.Driver {
	case "disk":
		if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
		logger.Info("media stored on disk", zap.String("dir", cfg.Media.Dir))
		return NewDisk(cfg.Media.Dir, cfg.Media.BaseURL, cfg.Media.MaxBytes), nil
	case "noop":
		return Noop{BaseURL: cfg.Media.BaseURL}, nil
	default:
		return nil, fmt.Errorf("unsupported media driver: %s", cfg.Media.Driver)
	}
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Disk writes images under a directory with generated names.
type Disk struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewDisk returns a disk store rooted at dir.
func NewDisk(dir, baseURL string, maxBytes int64) *Disk {
	return &Disk{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}
}

// Dir returns the directory images are written to.
func (d *Disk) Dir() string { return d.dir }

// Store writes the image under a fresh name and returns its public URL.
func (d *Disk) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return "", ErrTooLarge
	}

	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
	}

	filename := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(d.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return d.baseURL + "/" + filename, nil
}

// Noop pretends to store images; the URL points nowhere.
type Noop struct {
	BaseURL string
}

// Store rejects empty data and returns a placeholder URL without writing.
func (n Noop) Store(_ context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	return strings.TrimRight(n.BaseURL, "/") + "/" + uuid.NewString() + filepath.Ext(name), nil
}
