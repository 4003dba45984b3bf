package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

// GCS stores documents in a Cloud Storage bucket. Objects are written only
// if they do not exist yet, so a repeated upload is a no-op.
type GCS struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	prefix  string
	baseURL string
	logger  *logrus.Logger
	now     nowFunc
}

// NewGCS opens a client with application default credentials.
func NewGCS(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}

	return &GCS{
		client:  client,
		bucket:  client.Bucket(cfg.Bucket),
		name:    cfg.Bucket,
		prefix:  cfg.Prefix,
		baseURL: baseURL,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Save uploads data and returns the object key.
func (g *GCS) Save(ctx context.Context, data []byte, filename, ownerID string) (string, error) {
	key := Key(g.prefix, ownerID, g.now().Year(), filename)

	writer := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType(filename)

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			g.logger.WithField("key", key).Debug("Object already exists")
			return key, nil
		}
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			g.logger.WithField("key", key).Debug("Object already exists")
			return key, nil
		}
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return key, nil
}

// PublicURL returns the URL an object is served from.
func (g *GCS) PublicURL(key string) string {
	return g.baseURL + "/" + key
}

// Ping reads the bucket attributes.
func (g *GCS) Ping(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	return err
}

func (g *GCS) Close() error {
	return g.client.Close()
}

// alreadyExists reports a failed DoesNotExist precondition.
func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
