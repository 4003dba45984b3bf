package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores and providers when a lookup has no match.
var ErrNotFound = errors.New("not found")

// DocumentType identifies which form of an invoice a document holds.
type DocumentType string

const (
	// DocumentXML is the machine-readable authorized voucher.
	DocumentXML DocumentType = "xml"
	// DocumentPDF is the printable representation (RIDE).
	DocumentPDF DocumentType = "pdf"
)

// DocumentTypes lists every type the pipeline tries to persist, in order.
var DocumentTypes = []DocumentType{DocumentXML, DocumentPDF}

// Extension returns the file extension used for stored objects.
func (t DocumentType) Extension() string {
	return string(t)
}

// ContentType returns the MIME type for uploads.
func (t DocumentType) ContentType() string {
	switch t {
	case DocumentXML:
		return "application/xml"
	case DocumentPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Taxpayer is the identity a session authenticates as.
type Taxpayer struct {
	RUC         string `json:"ruc"`
	CompanyUUID string `json:"company_uuid"`
	Name        string `json:"name,omitempty"`
}

// Company is a registered taxpayer with stored, encrypted portal credentials.
type Company struct {
	UUID              string    `json:"company_uuid"`
	Name              string    `json:"company_name"`
	RUC               string    `json:"ruc"`
	Username          string    `json:"username"`
	EncryptedPassword string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Credentials are the decrypted portal credentials for one taxpayer.
type Credentials struct {
	Username string
	Password string
	OwnerID  string
	Taxpayer Taxpayer
}

// InvoiceRecord is one row of the portal's received-vouchers table.
// It is rebuilt on every scrape; AccessKey is its identity.
type InvoiceRecord struct {
	AccessKey   string    `json:"access_key"`
	IssuerRUC   string    `json:"issuer_ruc"`
	IssuerName  string    `json:"issuer_name,omitempty"`
	Series      string    `json:"series"`
	IssueDate   time.Time `json:"issue_date"`
	Total       float64   `json:"total"`
	RowIndex    int       `json:"row_index"`
	XMLSelector string    `json:"-"`
	PDFSelector string    `json:"-"`
}

// DownloadSelector returns the UI control that triggers retrieval of t.
func (r InvoiceRecord) DownloadSelector(t DocumentType) string {
	if t == DocumentPDF {
		return r.PDFSelector
	}
	return r.XMLSelector
}

// Invoice is the persisted form of an InvoiceRecord.
type Invoice struct {
	UUID          string    `json:"invoice_uuid"`
	CompanyUUID   string    `json:"company_uuid"`
	InvoiceNumber string    `json:"invoice_number"`
	Series        string    `json:"series"`
	IssuerRUC     string    `json:"issuer_ruc"`
	InvoiceDate   time.Time `json:"invoice_date"`
	Amount        float64   `json:"amount"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DocumentArtifact is a stored document of one invoice.
// At most one exists per (AccessKey, Type).
type DocumentArtifact struct {
	UUID        string       `json:"document_uuid"`
	InvoiceUUID string       `json:"invoice_uuid"`
	AccessKey   string       `json:"access_key"`
	Type        DocumentType `json:"file_type"`
	FileName    string       `json:"file_name"`
	StorageKey  string       `json:"storage_key"`
	URL         string       `json:"url"`
	Size        int64        `json:"file_size"`
	UploadedAt  time.Time    `json:"upload_date"`
	Data        []byte       `json:"-"`
}
