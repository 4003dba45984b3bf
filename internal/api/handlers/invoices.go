package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
)

// InvoiceHandler handles invoice download requests
type InvoiceHandler struct {
	downloads services.DownloadServiceInterface
	logger    *logrus.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(downloads services.DownloadServiceInterface, logger *logrus.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		downloads: downloads,
		logger:    logger,
	}
}

// StartDownload handles a download request
// @Summary Download received invoices
// @Description Logs in to the SRI portal as the taxpayer and stores every received invoice not stored yet. The run is queued unless wait=true.
// @Tags Invoices
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.DownloadRequest true "Taxpayer and filters"
// @Param wait query bool false "Run synchronously and return the result"
// @Success 200 {object} models.RunResult
// @Success 202 {object} models.DownloadAccepted
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /invoices/download [post]
func (h *InvoiceHandler) StartDownload(c *gin.Context) {
	requestID := c.GetString("request_id")

	var req models.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error(), models.ErrorCodeInvalidRequest)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"ruc":        req.RUC,
		"mode":       req.Mode,
	})

	if c.Query("wait") != "true" {
		accepted, err := h.downloads.Start(c.Request.Context(), req)
		if err != nil {
			log.WithError(err).Warn("Download request rejected")
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	startDate, err := services.ParseStartDate(req.StartDate)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	result, err := h.downloads.Run(c.Request.Context(), req.RUC, startDate, req.Mode)
	if result == nil {
		log.WithError(err).Warn("Download request rejected")
		respondServiceError(c, err)
		return
	}
	if err != nil {
		log.WithError(err).WithField("outcome", result.Outcome).Warn("Download run failed")
	}
	c.JSON(statusForOutcome(result.Outcome), result)
}

// GetRunStatus returns the last run of a taxpayer
// @Summary Last run of a taxpayer
// @Description Returns the state of the last run and, once finished, its result
// @Tags Invoices
// @Produce json
// @Security ApiKeyAuth
// @Param ruc path string true "RUC (13 digits)" example(1790011674001)
// @Success 200 {object} models.RunStatus
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /invoices/runs/{ruc} [get]
func (h *InvoiceHandler) GetRunStatus(c *gin.Context) {
	status, err := h.downloads.Status(c.Request.Context(), c.Param("ruc"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// statusForOutcome maps a finished run to an HTTP status. The body is
// always the full run result.
func statusForOutcome(outcome models.Outcome) int {
	switch outcome {
	case models.OutcomeSuccess, models.OutcomePartial:
		return http.StatusOK
	case models.OutcomeNoSession:
		return http.StatusNotFound
	case models.OutcomeLoginFailed:
		return http.StatusUnauthorized
	case models.OutcomeChallengeExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
