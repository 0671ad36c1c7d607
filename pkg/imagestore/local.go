package imagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"magazyn/pkg/config"
)

// Local writes images below a directory served by the HTTP server
type Local struct {
	dir        string
	publicPath string
}

// NewLocal stores files in dir and builds URLs under publicPath
func NewLocal(dir, publicPath string) *Local {
	return &Local{dir: dir, publicPath: strings.TrimRight(publicPath, "/")}
}

func (l *Local) Driver() string { return config.StorageDriverLocal }

// Dir is the directory to expose under the public path
func (l *Local) Dir() string { return l.dir }

func (l *Local) Save(ctx context.Context, data []byte, mimeType, productID string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := ObjectKey(productID, mimeType)
	target := filepath.Join(l.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	return &Object{Key: key, URL: l.publicPath + "/" + key}, nil
}
