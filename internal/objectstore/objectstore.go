// Package objectstore holds downloaded documents, in Google Cloud Storage
// or in a local directory.
package objectstore

import (
	"context"
	"path"
	"strconv"
	"time"

	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/sirupsen/logrus"
)

// Store saves document bytes under a key derived from the owner and the
// upload year.
type Store interface {
	Save(ctx context.Context, data []byte, filename, ownerID string) (string, error)
	PublicURL(key string) string
	Ping(ctx context.Context) error
	Close() error
}

// Key builds "{prefix}/{ownerID}/{year}/{filename}".
func Key(prefix, ownerID string, year int, filename string) string {
	if prefix == "" {
		return path.Join(ownerID, strconv.Itoa(year), filename)
	}
	return path.Join(prefix, ownerID, strconv.Itoa(year), filename)
}

// New returns a GCS store when a bucket is configured and a local one
// otherwise.
func New(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (Store, error) {
	if cfg.Bucket != "" {
		return NewGCS(ctx, cfg, logger)
	}
	logger.WithField("dir", cfg.LocalDir).Warn("No bucket configured, storing documents locally")
	return NewLocal(cfg, logger)
}

type nowFunc func() time.Time
