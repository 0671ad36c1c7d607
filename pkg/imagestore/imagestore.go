// Package imagestore persists uploaded product images and hands back a URL
// clients can load them from.
package imagestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"magazyn/pkg/config"
)

// MaxImageBytes bounds a single decoded image
const MaxImageBytes = 10 << 20

var (
	ErrNotDataURL    = errors.New("not a data URL")
	ErrInvalidImage  = errors.New("invalid image data")
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// Object is a stored image
type Object struct {
	Key string
	URL string
}

// Store saves image bytes under a product
type Store interface {
	Driver() string
	Save(ctx context.Context, data []byte, mimeType, productID string) (*Object, error)
}

// Resolver is implemented by stores whose saved reference is not itself a
// loadable URL. ResolveURL runs on every read; StoredRef maps a URL handed
// out by ResolveURL back to the reference to persist.
type Resolver interface {
	ResolveURL(ctx context.Context, stored string) (string, error)
	StoredRef(url string) string
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		return NewS3(ctx, cfg)
	case config.StorageDriverLocal, "":
		return NewLocal(cfg.LocalDir, cfg.PublicPath), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// IsDataURL reports whether s carries inline image data
func IsDataURL(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

// DecodeDataURL parses data:<mime>;base64,<payload>
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return nil, "", ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload", ErrInvalidImage)
	}

	params := strings.Split(meta, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: only base64 payloads are accepted", ErrInvalidImage)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+3 {
		return nil, "", ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some encoders drop the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return nil, "", ErrImageTooLarge
	}
	return data, mimeType, nil
}

var preferredExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
	"image/heic":    ".heic",
}

// Extension maps a MIME type to a file extension, ".bin" when unknown
func Extension(mimeType string) string {
	if ext, ok := preferredExt[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// ObjectKey returns products/<productId>/<uuid><ext>
func ObjectKey(productID, mimeType string) string {
	if productID == "" {
		productID = "general"
	}
	return path.Join("products", path.Base(productID), uuid.NewString()+Extension(mimeType))
}
