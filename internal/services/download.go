package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/sri-invoices/internal/automation"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// DateLayout is the format of start dates in requests and on the command line.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidRUC is returned for malformed taxpayer numbers.
	ErrInvalidRUC = errors.New("invalid RUC")
	// ErrInvalidRequest is returned for a bad start date or mode.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRunInProgress is returned while another run of the same taxpayer holds the lock.
	ErrRunInProgress = errors.New("a run for this RUC is already in progress")
)

// DownloadService serializes portal runs. Only one browser session runs at
// a time in the process, and one per taxpayer across processes sharing Redis.
type DownloadService struct {
	runner    Downloader
	cache     RunCacheInterface
	companies CompanyLister
	config    config.PortalConfig
	logger    *logrus.Logger

	gate   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	pending  int
	running  string
	finished int64
}

// NewDownloadService creates a new download service
func NewDownloadService(runner Downloader, cache RunCacheInterface, companies CompanyLister, cfg config.PortalConfig, logger *logrus.Logger) *DownloadService {
	ctx, cancel := context.WithCancel(context.Background())
	return &DownloadService{
		runner:    runner,
		cache:     cache,
		companies: companies,
		config:    cfg,
		logger:    logger,
		gate:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// ParseStartDate parses an optional YYYY-MM-DD date.
func ParseStartDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: start date %q is not YYYY-MM-DD", ErrInvalidRequest, value)
	}
	return &d, nil
}

func (s *DownloadService) validate(ruc string, mode models.RunMode) (string, models.RunMode, error) {
	ruc, err := cleanRUC(ruc)
	if err != nil {
		return "", "", err
	}
	if mode == "" {
		mode = models.ModeFull
	}
	if !mode.Valid() {
		return "", "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
	if mode == models.ModeDownload {
		return "", "", fmt.Errorf("%w: mode %q needs an authenticated session", ErrInvalidRequest, mode)
	}
	return ruc, mode, nil
}

func (s *DownloadService) lockTTL() time.Duration {
	return s.config.RunTimeout + time.Minute
}

// lock takes the per-taxpayer lock and records the run as queued.
func (s *DownloadService) lock(ctx context.Context, runID, ruc string) error {
	ok, err := s.cache.AcquireLock(ctx, ruc, runID, s.lockTTL())
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	s.setStatus(ctx, &models.RunStatus{RunID: runID, RUC: ruc, State: models.RunQueued, UpdatedAt: s.now()})
	return nil
}

// Start queues a run and returns immediately
func (s *DownloadService) Start(ctx context.Context, req models.DownloadRequest) (*models.DownloadAccepted, error) {
	ruc, mode, err := s.validate(req.RUC, req.Mode)
	if err != nil {
		return nil, err
	}
	startDate, err := ParseStartDate(req.StartDate)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if err := s.lock(ctx, runID, ruc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
		}()
		_, _ = s.execute(s.ctx, runID, ruc, startDate, mode)
	}()

	s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"ruc":    ruc,
		"mode":   mode,
	}).Info("Run queued")

	return &models.DownloadAccepted{
		RunID:     runID,
		RUC:       ruc,
		Status:    models.RunQueued,
		StatusURL: "/api/v1/invoices/runs/" + ruc,
		QueuedAt:  s.now(),
	}, nil
}

// Run executes a run and waits for it
func (s *DownloadService) Run(ctx context.Context, ruc string, startDate *time.Time, mode models.RunMode) (*models.RunResult, error) {
	ruc, mode, err := s.validate(ruc, mode)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	if err := s.lock(ctx, runID, ruc); err != nil {
		return nil, err
	}
	return s.execute(ctx, runID, ruc, startDate, mode)
}

// execute waits for the process gate, runs the automation and releases the
// taxpayer lock. The lock must already be held by runID.
func (s *DownloadService) execute(ctx context.Context, runID, ruc string, startDate *time.Time, mode models.RunMode) (*models.RunResult, error) {
	log := s.logger.WithFields(logrus.Fields{"run_id": runID, "ruc": ruc})
	defer func() {
		if err := s.cache.ReleaseLock(context.Background(), ruc, runID); err != nil {
			log.WithError(err).Warn("Failed to release run lock")
		}
	}()

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		err := fmt.Errorf("waiting for browser slot: %w", ctx.Err())
		s.finish(runID, ruc, &models.RunResult{RunID: runID, RUC: ruc, Mode: mode, Outcome: models.OutcomeFailed, Error: err.Error()})
		return nil, err
	}
	defer func() { <-s.gate }()

	s.mu.Lock()
	s.running = ruc
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = ""
		s.finished++
		s.mu.Unlock()
	}()

	s.setStatus(ctx, &models.RunStatus{RunID: runID, RUC: ruc, State: models.RunRunning, UpdatedAt: s.now()})

	runCtx := automation.WithRunID(ctx, runID)
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.config.RunTimeout)
		defer cancel()
	}

	result, err := s.runner.RunDownload(runCtx, ruc, startDate, mode)
	if result == nil {
		result = &models.RunResult{RunID: runID, RUC: ruc, Mode: mode, Outcome: models.OutcomeFailed}
		if err != nil {
			result.Error = err.Error()
		}
	}
	s.finish(runID, ruc, result)

	if err != nil {
		log.WithError(err).WithField("outcome", result.Outcome).Warn("Run failed")
	}
	return result, err
}

func (s *DownloadService) finish(runID, ruc string, result *models.RunResult) {
	s.setStatus(context.Background(), &models.RunStatus{
		RunID:     runID,
		RUC:       ruc,
		State:     models.RunFinished,
		UpdatedAt: s.now(),
		Result:    result,
	})
}

func (s *DownloadService) setStatus(ctx context.Context, status *models.RunStatus) {
	if err := s.cache.SetStatus(context.WithoutCancel(ctx), status); err != nil {
		s.logger.WithFields(logrus.Fields{
			"run_id": status.RunID,
			"ruc":    status.RUC,
			"state":  status.State,
		}).WithError(err).Warn("Failed to store run status")
	}
}

// RunAll runs every registered company serially with a pause in between.
// A failed company does not stop the others; its result is still returned.
func (s *DownloadService) RunAll(ctx context.Context, startDate *time.Time, mode models.RunMode) ([]*models.RunResult, error) {
	companies, err := s.companies.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	s.logger.WithField("companies", len(companies)).Info("Processing all companies")

	results := make([]*models.RunResult, 0, len(companies))
	for i, company := range companies {
		if i > 0 && s.config.CompanyPause > 0 {
			if err := s.sleep(ctx, s.config.CompanyPause); err != nil {
				return results, err
			}
		}

		log := s.logger.WithFields(logrus.Fields{
			"ruc":     company.RUC,
			"company": company.Name,
		})

		result, err := s.Run(ctx, company.RUC, startDate, mode)
		if err != nil {
			log.WithError(err).Error("Company run failed")
			if result == nil {
				result = &models.RunResult{RUC: company.RUC, Mode: mode, Outcome: models.OutcomeFailed, Error: err.Error()}
			}
		} else {
			log.WithField("outcome", result.Outcome).Info("Company run finished")
		}
		results = append(results, result)

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

// Status returns the last run of ruc
func (s *DownloadService) Status(ctx context.Context, ruc string) (*models.RunStatus, error) {
	ruc, err := cleanRUC(ruc)
	if err != nil {
		return nil, err
	}
	return s.cache.GetStatus(ctx, ruc)
}

// Health returns download service health status
func (s *DownloadService) Health() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := map[string]interface{}{
		"status":   "healthy",
		"pending":  s.pending,
		"finished": s.finished,
	}
	if s.running != "" {
		health["running"] = s.running
	}
	return health
}

// Close cancels queued runs and waits for the running one to stop
func (s *DownloadService) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
