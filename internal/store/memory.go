package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nexconsult/sri-invoices/internal/models"
)

type documentKey struct {
	accessKey string
	docType   models.DocumentType
}

// Memory is an in-process store used when MySQL is unavailable and in
// tests. It enforces the same unique keys as the database schema.
type Memory struct {
	mu        sync.RWMutex
	companies map[string]models.Company
	invoices  map[string]models.Invoice
	documents map[documentKey]models.DocumentArtifact
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		companies: make(map[string]models.Company),
		invoices:  make(map[string]models.Invoice),
		documents: make(map[documentKey]models.DocumentArtifact),
	}
}

func (m *Memory) FindCompanyByRUC(_ context.Context, ruc string) (*models.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[ruc]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListCompanies(context.Context) ([]models.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Company, 0, len(m.companies))
	for _, c := range m.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveCompany(_ context.Context, c *models.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.RUC] = *c
	return nil
}

func (m *Memory) DeleteCompany(_ context.Context, ruc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.companies[ruc]; !ok {
		return models.ErrNotFound
	}
	delete(m.companies, ruc)
	return nil
}

func (m *Memory) FindByNumber(_ context.Context, number string) (*models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[number]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &inv, nil
}

func (m *Memory) Create(_ context.Context, inv *models.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.InvoiceNumber]; ok {
		return ErrDuplicate
	}
	m.invoices[inv.InvoiceNumber] = *inv
	return nil
}

func (m *Memory) ListInvoices(_ context.Context, companyUUID string, limit int) ([]models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Invoice
	for _, inv := range m.invoices {
		if inv.CompanyUUID == companyUUID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceDate.After(out[j].InvoiceDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Documents returns the document side of the store.
func (m *Memory) Documents() *MemoryDocuments {
	return &MemoryDocuments{m: m}
}

// DocumentCount returns how many documents are stored.
func (m *Memory) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}

// MemoryDocuments is the document store view of a Memory.
type MemoryDocuments struct {
	m *Memory
}

func (d *MemoryDocuments) FindByInvoiceAndType(_ context.Context, accessKey string, docType models.DocumentType) (*models.DocumentArtifact, error) {
	d.m.mu.RLock()
	defer d.m.mu.RUnlock()
	doc, ok := d.m.documents[documentKey{accessKey, docType}]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &doc, nil
}

func (d *MemoryDocuments) Create(_ context.Context, doc *models.DocumentArtifact) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	key := documentKey{doc.AccessKey, doc.Type}
	if _, ok := d.m.documents[key]; ok {
		return ErrDuplicate
	}
	stored := *doc
	stored.Data = nil
	d.m.documents[key] = stored
	return nil
}
