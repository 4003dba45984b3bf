package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/sri-invoices/internal/credentials"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/utils"
	"github.com/sirupsen/logrus"
)

// CompanyStore persists companies and their encrypted credentials
type CompanyStore interface {
	credentials.CompanyLookup
	CompanyLister
	SaveCompany(ctx context.Context, c *models.Company) error
	DeleteCompany(ctx context.Context, ruc string) error
}

// CompanyService manages the stored portal credentials
type CompanyService struct {
	store  CompanyStore
	cipher *credentials.Cipher
	logger *logrus.Logger
	now    func() time.Time
}

// NewCompanyService creates a new company service
func NewCompanyService(store CompanyStore, cipher *credentials.Cipher, logger *logrus.Logger) *CompanyService {
	return &CompanyService{store: store, cipher: cipher, logger: logger, now: time.Now}
}

func cleanRUC(ruc string) (string, error) {
	ruc = utils.CleanRUC(ruc)
	if !utils.IsValidRUC(ruc) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRUC, ruc)
	}
	return ruc, nil
}

// Save creates or updates the credentials of a company. The password is
// encrypted before it is stored; an existing company keeps its UUID.
func (s *CompanyService) Save(ctx context.Context, req models.CompanyCredentialsRequest) (*models.Company, error) {
	ruc, err := cleanRUC(req.RUC)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.CompanyName)
	username := strings.TrimSpace(req.Username)
	if name == "" || username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: company_name, username and password are required", ErrInvalidRequest)
	}

	encrypted, err := s.cipher.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}

	now := s.now()
	company := &models.Company{
		UUID:              uuid.NewString(),
		Name:              name,
		RUC:               ruc,
		Username:          username,
		EncryptedPassword: encrypted,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created := false
	existing, err := s.store.FindCompanyByRUC(ctx, ruc)
	switch {
	case err == nil:
		company.UUID = existing.UUID
		company.CreatedAt = existing.CreatedAt
	case errors.Is(err, models.ErrNotFound):
		created = true
	default:
		return nil, fmt.Errorf("find company: %w", err)
	}

	if err := s.store.SaveCompany(ctx, company); err != nil {
		return nil, fmt.Errorf("save company: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"ruc":          ruc,
		"company_uuid": company.UUID,
		"created":      created,
	}).Info("Company credentials saved")
	return company, nil
}

// List returns every company without secrets
func (s *CompanyService) List(ctx context.Context) ([]models.Company, error) {
	return s.store.ListCompanies(ctx)
}

// Get returns one company by RUC
func (s *CompanyService) Get(ctx context.Context, ruc string) (*models.Company, error) {
	ruc, err := cleanRUC(ruc)
	if err != nil {
		return nil, err
	}
	return s.store.FindCompanyByRUC(ctx, ruc)
}

// UpdatePassword replaces the stored password of a company
func (s *CompanyService) UpdatePassword(ctx context.Context, ruc, password string) (*models.Company, error) {
	company, err := s.Get(ctx, ruc)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidRequest)
	}

	company.EncryptedPassword, err = s.cipher.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	company.UpdatedAt = s.now()

	if err := s.store.SaveCompany(ctx, company); err != nil {
		return nil, fmt.Errorf("save company: %w", err)
	}

	s.logger.WithField("ruc", company.RUC).Info("Company password updated")
	return company, nil
}

// Delete removes a company and its credentials
func (s *CompanyService) Delete(ctx context.Context, ruc string) error {
	ruc, err := cleanRUC(ruc)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCompany(ctx, ruc); err != nil {
		return err
	}
	s.logger.WithField("ruc", ruc).Info("Company deleted")
	return nil
}
