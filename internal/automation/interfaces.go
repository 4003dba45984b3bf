package automation

import (
	"context"

	"github.com/nexconsult/sri-invoices/internal/models"
)

// CredentialsProvider returns decrypted portal credentials for a taxpayer,
// or models.ErrNotFound.
type CredentialsProvider interface {
	GetDecrypted(ctx context.Context, taxID string) (*models.Credentials, error)
}

// InvoiceStore persists invoice metadata keyed by access key.
type InvoiceStore interface {
	FindByNumber(ctx context.Context, number string) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
}

// DocumentStore persists document metadata, at most one per
// (access key, type).
type DocumentStore interface {
	FindByInvoiceAndType(ctx context.Context, accessKey string, docType models.DocumentType) (*models.DocumentArtifact, error)
	Create(ctx context.Context, doc *models.DocumentArtifact) error
}

// ObjectStore holds document bytes.
type ObjectStore interface {
	Save(ctx context.Context, data []byte, filename, ownerID string) (string, error)
	PublicURL(key string) string
}

// DocumentFetcher retrieves the bytes of one document of a scraped record.
type DocumentFetcher interface {
	Fetch(ctx context.Context, record models.InvoiceRecord, docType models.DocumentType) ([]byte, error)
}
