package credentials

import (
	"context"
	"fmt"

	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// CompanyLookup finds a registered company by RUC, or models.ErrNotFound.
type CompanyLookup interface {
	FindCompanyByRUC(ctx context.Context, ruc string) (*models.Company, error)
}

// Provider decrypts the stored credentials of a company.
type Provider struct {
	companies CompanyLookup
	cipher    *Cipher
	logger    *logrus.Logger
}

func NewProvider(companies CompanyLookup, cipher *Cipher, logger *logrus.Logger) *Provider {
	return &Provider{companies: companies, cipher: cipher, logger: logger}
}

// GetDecrypted returns the portal credentials of taxID. It returns
// models.ErrNotFound when the company or its credentials are missing.
func (p *Provider) GetDecrypted(ctx context.Context, taxID string) (*models.Credentials, error) {
	company, err := p.companies.FindCompanyByRUC(ctx, taxID)
	if err != nil {
		return nil, err
	}
	if company.Username == "" || company.EncryptedPassword == "" {
		p.logger.WithField("ruc", taxID).Warn("Company has no stored credentials")
		return nil, models.ErrNotFound
	}

	password, err := p.cipher.Decrypt(company.EncryptedPassword)
	if err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", taxID, err)
	}

	return &models.Credentials{
		Username: company.Username,
		Password: password,
		OwnerID:  company.RUC,
		Taxpayer: models.Taxpayer{
			RUC:         company.RUC,
			CompanyUUID: company.UUID,
			Name:        company.Name,
		},
	}, nil
}
