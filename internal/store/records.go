// Package store persists companies, invoices and document metadata, in
// MySQL through gorm or in memory when no database is reachable.
package store

import (
	"time"

	"github.com/nexconsult/sri-invoices/internal/models"
)

type companyRecord struct {
	ID                uint      `gorm:"primaryKey"`
	UUID              string    `gorm:"column:company_uuid;type:varchar(36);uniqueIndex;not null"`
	Name              string    `gorm:"column:company_name;type:varchar(255)"`
	RUC               string    `gorm:"column:ruc;type:varchar(13);uniqueIndex;not null"`
	Username          string    `gorm:"column:sri_username;type:varchar(64)"`
	EncryptedPassword string    `gorm:"column:sri_password;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (companyRecord) TableName() string { return "companies" }

func (r companyRecord) model() *models.Company {
	return &models.Company{
		UUID:              r.UUID,
		Name:              r.Name,
		RUC:               r.RUC,
		Username:          r.Username,
		EncryptedPassword: r.EncryptedPassword,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type invoiceRecord struct {
	ID            uint      `gorm:"primaryKey"`
	UUID          string    `gorm:"column:invoice_uuid;type:varchar(36);uniqueIndex;not null"`
	CompanyUUID   string    `gorm:"column:company_uuid;type:varchar(36);index"`
	InvoiceNumber string    `gorm:"column:invoice_number;type:varchar(49);uniqueIndex;not null"`
	Series        string    `gorm:"column:series;type:varchar(32)"`
	IssuerRUC     string    `gorm:"column:issuer_ruc;type:varchar(13)"`
	InvoiceDate   time.Time `gorm:"column:invoice_date"`
	Amount        float64   `gorm:"column:amount"`
	Description   string    `gorm:"column:description;type:varchar(255)"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (invoiceRecord) TableName() string { return "invoices" }

func (r invoiceRecord) model() *models.Invoice {
	return &models.Invoice{
		UUID:          r.UUID,
		CompanyUUID:   r.CompanyUUID,
		InvoiceNumber: r.InvoiceNumber,
		Series:        r.Series,
		IssuerRUC:     r.IssuerRUC,
		InvoiceDate:   r.InvoiceDate,
		Amount:        r.Amount,
		Description:   r.Description,
		CreatedAt:     r.CreatedAt,
	}
}

func newInvoiceRecord(inv *models.Invoice) invoiceRecord {
	return invoiceRecord{
		UUID:          inv.UUID,
		CompanyUUID:   inv.CompanyUUID,
		InvoiceNumber: inv.InvoiceNumber,
		Series:        inv.Series,
		IssuerRUC:     inv.IssuerRUC,
		InvoiceDate:   inv.InvoiceDate,
		Amount:        inv.Amount,
		Description:   inv.Description,
		CreatedAt:     inv.CreatedAt,
	}
}

// documentRecord is unique per (access_key, file_type).
type documentRecord struct {
	ID          uint      `gorm:"primaryKey"`
	UUID        string    `gorm:"column:document_uuid;type:varchar(36);uniqueIndex;not null"`
	InvoiceUUID string    `gorm:"column:invoice_uuid;type:varchar(36);index"`
	AccessKey   string    `gorm:"column:access_key;type:varchar(49);uniqueIndex:idx_document_key_type;not null"`
	FileType    string    `gorm:"column:file_type;type:varchar(8);uniqueIndex:idx_document_key_type;not null"`
	FileName    string    `gorm:"column:file_name;type:varchar(255)"`
	StorageKey  string    `gorm:"column:storage_key;type:varchar(512)"`
	URL         string    `gorm:"column:url;type:varchar(1024)"`
	FileSize    int64     `gorm:"column:file_size"`
	UploadedAt  time.Time `gorm:"column:upload_date"`
}

func (documentRecord) TableName() string { return "invoice_files" }

func (r documentRecord) model() *models.DocumentArtifact {
	return &models.DocumentArtifact{
		UUID:        r.UUID,
		InvoiceUUID: r.InvoiceUUID,
		AccessKey:   r.AccessKey,
		Type:        models.DocumentType(r.FileType),
		FileName:    r.FileName,
		StorageKey:  r.StorageKey,
		URL:         r.URL,
		Size:        r.FileSize,
		UploadedAt:  r.UploadedAt,
	}
}

func newDocumentRecord(doc *models.DocumentArtifact) documentRecord {
	return documentRecord{
		UUID:        doc.UUID,
		InvoiceUUID: doc.InvoiceUUID,
		AccessKey:   doc.AccessKey,
		FileType:    string(doc.Type),
		FileName:    doc.FileName,
		StorageKey:  doc.StorageKey,
		URL:         doc.URL,
		FileSize:    doc.Size,
		UploadedAt:  doc.UploadedAt,
	}
}
