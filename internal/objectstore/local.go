package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/sirupsen/logrus"
)

// Local stores documents below a directory. Existing files are kept.
type Local struct {
	root    string
	prefix  string
	baseURL string
	logger  *logrus.Logger
	now     nowFunc
}

// NewLocal creates the root directory if needed.
func NewLocal(cfg config.StorageConfig, logger *logrus.Logger) (*Local, error) {
	root := cfg.LocalDir
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		baseURL = "file://" + filepath.ToSlash(abs)
	}
	return &Local{root: root, prefix: cfg.Prefix, baseURL: baseURL, logger: logger, now: time.Now}, nil
}

func (l *Local) Save(ctx context.Context, data []byte, filename, ownerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.ContainsAny(filename, `/\`) || strings.ContainsAny(ownerID, `/\`) {
		return "", fmt.Errorf("invalid object name %q/%q", ownerID, filename)
	}

	key := Key(l.prefix, ownerID, l.now().Year(), filename)
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(full), err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		l.logger.WithField("key", key).Debug("Object already exists")
		return key, nil
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return key, nil
}

func (l *Local) PublicURL(key string) string {
	return l.baseURL + "/" + key
}

// Ping checks that the root directory is still there.
func (l *Local) Ping(context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", l.root)
	}
	return nil
}

func (l *Local) Close() error { return nil }
