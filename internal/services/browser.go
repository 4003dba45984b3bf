package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/sirupsen/logrus"
)

// BrowserService launches one browser per run and keeps track of the open
// ones so shutdown can close them.
type BrowserService struct {
	factory browser.Factory
	logger  *logrus.Logger

	mu          sync.RWMutex
	active      map[string]*trackedDriver
	launches    int64
	failures    int64
	lastFailure string
	lastLaunch  time.Time
	closed      bool
}

// trackedDriver removes itself from the service when closed
type trackedDriver struct {
	browser.Driver
	id      string
	service *BrowserService
	once    sync.Once
}

// NewBrowserService creates a new browser service
func NewBrowserService(factory browser.Factory, logger *logrus.Logger) *BrowserService {
	return &BrowserService{
		factory: factory,
		logger:  logger,
		active:  make(map[string]*trackedDriver),
	}
}

// Launch starts a browser. It matches browser.Factory.
func (s *BrowserService) Launch(ctx context.Context) (browser.Driver, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("browser service is closed")
	}
	s.mu.RUnlock()

	driver, err := s.factory(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches++
	s.lastLaunch = time.Now()
	if err != nil {
		s.failures++
		s.lastFailure = err.Error()
		s.logger.WithError(err).Error("Failed to launch browser")
		return nil, err
	}

	tracked := &trackedDriver{Driver: driver, id: uuid.NewString(), service: s}
	s.active[tracked.id] = tracked
	s.logger.WithField("browser_id", tracked.id).Debug("Browser launched")
	return tracked, nil
}

// Close closes the underlying driver once and forgets it
func (d *trackedDriver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.Driver.Close()
		d.service.mu.Lock()
		delete(d.service.active, d.id)
		d.service.mu.Unlock()
	})
	return err
}

// GetStats returns browser statistics
func (s *BrowserService) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"active":   len(s.active),
		"launches": s.launches,
		"failures": s.failures,
	}
	if !s.lastLaunch.IsZero() {
		stats["last_launch"] = s.lastLaunch
	}
	if s.lastFailure != "" {
		stats["last_failure"] = s.lastFailure
	}
	return stats
}

// Health returns browser service health status. The service is degraded
// when every launch so far has failed.
func (s *BrowserService) Health() map[string]interface{} {
	stats := s.GetStats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "healthy"
	switch {
	case s.closed:
		status = "unhealthy"
	case s.launches > 0 && s.failures == s.launches:
		status = "degraded"
	}
	stats["status"] = status
	return stats
}

// Close closes all browsers still open
func (s *BrowserService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*trackedDriver, 0, len(s.active))
	for _, d := range s.active {
		open = append(open, d)
	}
	s.mu.Unlock()

	var errors []error
	for _, d := range open {
		if err := d.Close(); err != nil {
			errors = append(errors, fmt.Errorf("browser %s: %w", d.id, err))
		}
	}

	s.logger.WithField("closed", len(open)).Info("Browser service closed")

	if len(errors) > 0 {
		return fmt.Errorf("errors closing browsers: %v", errors)
	}
	return nil
}
