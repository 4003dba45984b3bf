package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsProvider returns usage counters of the services
type StatsProvider interface {
	Stats() map[string]interface{}
}

// MetricsHandler handles metrics requests
type MetricsHandler struct {
	services StatsProvider
	logger   *logrus.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(services StatsProvider, logger *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		services: services,
		logger:   logger,
	}
}

// GetMetrics handles metrics request
// @Summary Get application metrics
// @Description Browser launches, solver usage, run counters and process statistics
// @Tags Metrics
// @Produce json
// @Success 200 {object} models.MetricsResponse
// @Router /metrics [get]
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	h.logger.WithField("request_id", c.GetString("request_id")).Debug("Getting application metrics")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, models.MetricsResponse{
		Services: h.services.Stats(),
		System: models.SystemMetrics{
			MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
			MemorySysMB:   float64(m.Sys) / 1024 / 1024,
			Goroutines:    runtime.NumGoroutine(),
			NumGC:         m.NumGC,
		},
		Timestamp: time.Now(),
	})
}
