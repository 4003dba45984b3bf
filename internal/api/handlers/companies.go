package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
)

// CompanyHandler manages stored portal credentials
type CompanyHandler struct {
	companies *services.CompanyService
	logger    *logrus.Logger
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(companies *services.CompanyService, logger *logrus.Logger) *CompanyHandler {
	return &CompanyHandler{
		companies: companies,
		logger:    logger,
	}
}

// SaveCredentials creates or updates the credentials of a company
// @Summary Save company credentials
// @Description Stores the SRI portal credentials of a company. The password is encrypted at rest.
// @Tags Companies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.CompanyCredentialsRequest true "Company credentials"
// @Success 201 {object} models.Company
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /companies/credentials [post]
func (h *CompanyHandler) SaveCredentials(c *gin.Context) {
	var req models.CompanyCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error(), models.ErrorCodeInvalidRequest)
		return
	}

	company, err := h.companies.Save(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

// ListCredentials lists every company
// @Summary List companies
// @Tags Companies
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} models.CompanyList
// @Router /companies/credentials [get]
func (h *CompanyHandler) ListCredentials(c *gin.Context) {
	companies, err := h.companies.List(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CompanyList{Data: companies, Count: len(companies)})
}

// GetCredentials returns one company without its password
// @Summary Get a company
// @Tags Companies
// @Produce json
// @Security ApiKeyAuth
// @Param ruc path string true "RUC (13 digits)"
// @Success 200 {object} models.Company
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /companies/credentials/{ruc} [get]
func (h *CompanyHandler) GetCredentials(c *gin.Context) {
	company, err := h.companies.Get(c.Request.Context(), c.Param("ruc"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// UpdatePassword replaces the stored password of a company
// @Summary Update a company password
// @Tags Companies
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param ruc path string true "RUC (13 digits)"
// @Param request body models.PasswordUpdateRequest true "New password"
// @Success 200 {object} models.Company
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /companies/credentials/{ruc}/password [patch]
func (h *CompanyHandler) UpdatePassword(c *gin.Context) {
	var req models.PasswordUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error(), models.ErrorCodeInvalidRequest)
		return
	}

	company, err := h.companies.UpdatePassword(c.Request.Context(), c.Param("ruc"), req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

// DeleteCredentials removes a company
// @Summary Delete a company
// @Tags Companies
// @Security ApiKeyAuth
// @Param ruc path string true "RUC (13 digits)"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /companies/credentials/{ruc} [delete]
func (h *CompanyHandler) DeleteCredentials(c *gin.Context) {
	if err := h.companies.Delete(c.Request.Context(), c.Param("ruc")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
