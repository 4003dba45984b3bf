package services

import (
	"context"
	"time"

	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/models"
)

// DownloadServiceInterface defines the interface for invoice download runs
type DownloadServiceInterface interface {
	// Start validates the request and queues a background run
	Start(ctx context.Context, req models.DownloadRequest) (*models.DownloadAccepted, error)

	// Run executes a run for one taxpayer and waits for its result
	Run(ctx context.Context, ruc string, startDate *time.Time, mode models.RunMode) (*models.RunResult, error)

	// RunAll runs every registered company one after another
	RunAll(ctx context.Context, startDate *time.Time, mode models.RunMode) ([]*models.RunResult, error)

	// Status returns the last known run of a taxpayer
	Status(ctx context.Context, ruc string) (*models.RunStatus, error)

	// Health returns service health status
	Health() map[string]interface{}

	// Close waits for queued runs and releases resources
	Close() error
}

// RunCacheInterface defines the per-taxpayer run lock and status cache
type RunCacheInterface interface {
	// AcquireLock takes the run lock of ruc for owner. It reports false
	// when another owner holds it.
	AcquireLock(ctx context.Context, ruc, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock frees the lock if owner still holds it
	ReleaseLock(ctx context.Context, ruc, owner string) error

	// SetStatus stores the status of a run
	SetStatus(ctx context.Context, status *models.RunStatus) error

	// GetStatus returns the last stored status of ruc
	GetStatus(ctx context.Context, ruc string) (*models.RunStatus, error)

	// Health returns cache service health status
	Health() map[string]interface{}
}

// BrowserServiceInterface defines the interface for browser service
type BrowserServiceInterface interface {
	// Launch starts a tracked browser for one run
	Launch(ctx context.Context) (browser.Driver, error)

	// GetStats returns browser statistics
	GetStats() map[string]interface{}

	// Health returns browser service health status
	Health() map[string]interface{}

	// Close closes all browsers still open
	Close() error
}

// Downloader runs the portal automation for one taxpayer
type Downloader interface {
	RunDownload(ctx context.Context, taxID string, startDate *time.Time, mode models.RunMode) (*models.RunResult, error)
}

// CompanyLister lists the companies with stored credentials
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]models.Company, error)
}
