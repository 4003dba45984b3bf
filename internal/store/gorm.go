package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrDuplicate is returned when a unique key already exists.
var ErrDuplicate = errors.New("record already exists")

// GormStore implements the company, invoice and document stores on MySQL.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// OpenMySQL connects, tunes the pool and optionally migrates the schema.
func OpenMySQL(cfg config.DatabaseConfig, logger *logrus.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := NewGormStore(db, logger)
	if cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"database": cfg.Name,
	}).Info("MySQL connected")
	return s, nil
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&companyRecord{}, &invoiceRecord{}, &documentRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindCompanyByRUC returns the company registered under ruc.
func (s *GormStore) FindCompanyByRUC(ctx context.Context, ruc string) (*models.Company, error) {
	var rec companyRecord
	if err := s.db.WithContext(ctx).Where("ruc = ?", ruc).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

// ListCompanies returns every company ordered by name.
func (s *GormStore) ListCompanies(ctx context.Context) ([]models.Company, error) {
	var recs []companyRecord
	if err := s.db.WithContext(ctx).Order("company_name").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.Company, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r.model())
	}
	return out, nil
}

// SaveCompany creates or updates a company by RUC.
func (s *GormStore) SaveCompany(ctx context.Context, c *models.Company) error {
	rec := companyRecord{
		UUID:              c.UUID,
		Name:              c.Name,
		RUC:               c.RUC,
		Username:          c.Username,
		EncryptedPassword: c.EncryptedPassword,
	}

	var existing companyRecord
	err := s.db.WithContext(ctx).Where("ruc = ?", c.RUC).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&rec).Error
	case err != nil:
		return err
	}
	return s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"company_name": rec.Name,
		"sri_username": rec.Username,
		"sri_password": rec.EncryptedPassword,
	}).Error
}

// DeleteCompany removes the company registered under ruc.
func (s *GormStore) DeleteCompany(ctx context.Context, ruc string) error {
	result := s.db.WithContext(ctx).Where("ruc = ?", ruc).Delete(&companyRecord{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindByNumber returns the invoice whose access key is number.
func (s *GormStore) FindByNumber(ctx context.Context, number string) (*models.Invoice, error) {
	var rec invoiceRecord
	if err := s.db.WithContext(ctx).Where("invoice_number = ?", number).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

// Create inserts an invoice.
func (s *GormStore) Create(ctx context.Context, inv *models.Invoice) error {
	rec := newInvoiceRecord(inv)
	return translate(s.db.WithContext(ctx).Create(&rec).Error)
}

// ListInvoices returns a company's invoices, newest first.
func (s *GormStore) ListInvoices(ctx context.Context, companyUUID string, limit int) ([]models.Invoice, error) {
	var recs []invoiceRecord
	q := s.db.WithContext(ctx).Where("company_uuid = ?", companyUUID).Order("invoice_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.Invoice, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r.model())
	}
	return out, nil
}

// Documents returns the document side of the store.
func (s *GormStore) Documents() *GormDocuments {
	return &GormDocuments{db: s.db}
}

// GormDocuments implements the document store. It is a separate type
// because its Create has a different signature from the invoice one.
type GormDocuments struct {
	db *gorm.DB
}

// FindByInvoiceAndType returns the stored document of one type.
func (d *GormDocuments) FindByInvoiceAndType(ctx context.Context, accessKey string, docType models.DocumentType) (*models.DocumentArtifact, error) {
	var rec documentRecord
	err := d.db.WithContext(ctx).
		Where("access_key = ? AND file_type = ?", accessKey, string(docType)).
		First(&rec).Error
	if err != nil {
		return nil, translate(err)
	}
	return rec.model(), nil
}

// Create inserts a document. A second document for the same access key and
// type fails with ErrDuplicate.
func (d *GormDocuments) Create(ctx context.Context, doc *models.DocumentArtifact) error {
	rec := newDocumentRecord(doc)
	return translate(d.db.WithContext(ctx).Create(&rec).Error)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
