package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

var retryPause = behavior.Ms(1000, 2500)

// Pipeline stores the documents of scraped records, fetching only what
// the stores do not already hold.
type Pipeline struct {
	invoices  InvoiceStore
	documents DocumentStore
	objects   ObjectStore
	src       behavior.Source
	retries   int
	logger    *logrus.Entry

	// Validate checks downloaded bytes before they are stored.
	Validate func(models.DocumentType, []byte) error
}

// NewPipeline creates a pipeline. retries is the number of extra attempts
// per document after the first failure.
func NewPipeline(invoices InvoiceStore, documents DocumentStore, objects ObjectStore, src behavior.Source, retries int, logger *logrus.Entry) *Pipeline {
	if retries < 0 {
		retries = 0
	}
	return &Pipeline{
		invoices:  invoices,
		documents: documents,
		objects:   objects,
		src:       src,
		retries:   retries,
		logger:    logger,
		Validate:  ValidateDocument,
	}
}

// Process handles records one at a time in discovery order. A failure on
// one document never stops the others; it is returned in the failure list.
func (p *Pipeline) Process(ctx context.Context, fetcher DocumentFetcher, owner models.Taxpayer, records []models.InvoiceRecord) ([]models.ProcessedInvoice, []models.Failure) {
	var (
		processed []models.ProcessedInvoice
		failures  []models.Failure
	)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			failures = append(failures, models.Failure{AccessKey: rec.AccessKey, Stage: "process", Error: err.Error()})
			continue
		}
		item, fails := p.processRecord(ctx, fetcher, owner, rec)
		processed = append(processed, item)
		failures = append(failures, fails...)
	}
	return processed, failures
}

func (p *Pipeline) processRecord(ctx context.Context, fetcher DocumentFetcher, owner models.Taxpayer, rec models.InvoiceRecord) (models.ProcessedInvoice, []models.Failure) {
	item := models.ProcessedInvoice{Record: rec}
	var failures []models.Failure
	log := p.logger.WithField("access_key", rec.AccessKey)

	invoice, err := p.ensureInvoice(ctx, owner, rec)
	if err != nil {
		log.WithError(err).Error("Failed to persist invoice")
		item.Status = models.RecordPartiallyFailed
		item.Failed = append(item.Failed, models.DocumentTypes...)
		failures = append(failures, models.Failure{AccessKey: rec.AccessKey, Stage: "invoice", Error: err.Error()})
		return item, failures
	}

	for _, docType := range models.DocumentTypes {
		existing, err := p.documents.FindByInvoiceAndType(ctx, rec.AccessKey, docType)
		switch {
		case err == nil && existing != nil:
			item.Present = append(item.Present, docType)
			continue
		case err != nil && !errors.Is(err, models.ErrNotFound):
			perr := &PersistenceError{AccessKey: rec.AccessKey, Type: docType, Op: "lookup document", Err: err}
			log.WithError(perr).Error("Document lookup failed")
			item.Failed = append(item.Failed, docType)
			failures = append(failures, models.Failure{AccessKey: rec.AccessKey, DocumentType: docType, Stage: "lookup", Error: perr.Error()})
			continue
		}

		if stage, err := p.storeWithRetry(ctx, fetcher, owner, invoice, rec, docType); err != nil {
			log.WithError(err).WithField("document_type", docType).Error("Document could not be stored")
			item.Failed = append(item.Failed, docType)
			failures = append(failures, models.Failure{AccessKey: rec.AccessKey, DocumentType: docType, Stage: stage, Error: err.Error()})
			continue
		}
		item.Downloaded = append(item.Downloaded, docType)
	}

	switch {
	case len(item.Failed) > 0:
		item.Status = models.RecordPartiallyFailed
	case len(item.Downloaded) > 0:
		item.Status = models.RecordNewlyDownloaded
	default:
		item.Status = models.RecordAlreadyPresent
	}
	return item, failures
}

func (p *Pipeline) ensureInvoice(ctx context.Context, owner models.Taxpayer, rec models.InvoiceRecord) (*models.Invoice, error) {
	invoice, err := p.invoices.FindByNumber(ctx, rec.AccessKey)
	if err == nil {
		return invoice, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, &PersistenceError{AccessKey: rec.AccessKey, Op: "lookup invoice", Err: err}
	}

	invoice = &models.Invoice{
		UUID:          uuid.NewString(),
		CompanyUUID:   owner.CompanyUUID,
		InvoiceNumber: rec.AccessKey,
		Series:        rec.Series,
		IssuerRUC:     rec.IssuerRUC,
		InvoiceDate:   rec.IssueDate,
		Amount:        rec.Total,
		Description:   rec.IssuerName,
		CreatedAt:     p.src.Clock.Now(),
	}
	if err := p.invoices.Create(ctx, invoice); err != nil {
		return nil, &PersistenceError{AccessKey: rec.AccessKey, Op: "create invoice", Err: err}
	}
	return invoice, nil
}

// storeWithRetry runs fetch, validate, upload and record for one document,
// retrying the whole sequence. It returns the stage of the last failure.
func (p *Pipeline) storeWithRetry(ctx context.Context, fetcher DocumentFetcher, owner models.Taxpayer, invoice *models.Invoice, rec models.InvoiceRecord, docType models.DocumentType) (string, error) {
	var (
		stage string
		err   error
	)
	for try := 0; try <= p.retries; try++ {
		if try > 0 {
			p.logger.WithFields(logrus.Fields{
				"access_key":    rec.AccessKey,
				"document_type": docType,
				"retry":         try,
			}).WithError(err).Warn("Retrying document")
			if err := p.src.Pause(ctx, retryPause); err != nil {
				return "download", err
			}
		}

		stage, err = p.store(ctx, fetcher, owner, invoice, rec, docType)
		if err == nil {
			return "", nil
		}
		if ctx.Err() != nil {
			return stage, err
		}
	}
	return stage, err
}

func (p *Pipeline) store(ctx context.Context, fetcher DocumentFetcher, owner models.Taxpayer, invoice *models.Invoice, rec models.InvoiceRecord, docType models.DocumentType) (string, error) {
	data, err := fetcher.Fetch(ctx, rec, docType)
	if err != nil {
		return "download", fmt.Errorf("download %s: %w", docType, err)
	}
	if p.Validate != nil {
		if err := p.Validate(docType, data); err != nil {
			return "validate", err
		}
	}

	fileName := rec.AccessKey + "." + docType.Extension()
	key, err := p.objects.Save(ctx, data, fileName, owner.RUC)
	if err != nil {
		return "upload", &PersistenceError{AccessKey: rec.AccessKey, Type: docType, Op: "upload", Err: err}
	}

	doc := &models.DocumentArtifact{
		UUID:        uuid.NewString(),
		InvoiceUUID: invoice.UUID,
		AccessKey:   rec.AccessKey,
		Type:        docType,
		FileName:    fileName,
		StorageKey:  key,
		URL:         p.objects.PublicURL(key),
		Size:        int64(len(data)),
		UploadedAt:  p.src.Clock.Now(),
	}
	if err := p.documents.Create(ctx, doc); err != nil {
		return "record", &PersistenceError{AccessKey: rec.AccessKey, Type: docType, Op: "record document", Err: err}
	}

	p.logger.WithFields(logrus.Fields{
		"access_key":    rec.AccessKey,
		"document_type": docType,
		"storage_key":   key,
		"size":          doc.Size,
	}).Info("Document stored")
	return "", nil
}
