package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/humanize"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

const screenshotTimeout = 10 * time.Second

// Session is one authenticated browser on the portal. It exclusively owns
// its driver; Close releases it and is safe to call any number of times.
type Session struct {
	driver browser.Driver
	human  *humanize.Synthesizer
	src    behavior.Source
	opts   Options
	solver captcha.ExternalSolver
	run    *RunContext
	logger *logrus.Entry

	state         LoginState
	authenticated bool
	taxpayer      models.Taxpayer

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps driver. solver may be nil, in which case the fallback
// path of the retry engine always fails.
func NewSession(driver browser.Driver, src behavior.Source, opts Options, solver captcha.ExternalSolver, run *RunContext) *Session {
	return &Session{
		driver: driver,
		human:  humanize.New(driver, src, run.Logger),
		src:    src,
		opts:   opts.withDefaults(),
		solver: solver,
		run:    run,
		logger: run.Logger,
		state:  StateStart,
	}
}

// Authenticated reports whether Login reached the search screen.
func (s *Session) Authenticated() bool {
	return s.authenticated
}

// State returns the last login state reached.
func (s *Session) State() LoginState {
	return s.state
}

// Taxpayer returns the identity the session logged in as.
func (s *Session) Taxpayer() models.Taxpayer {
	return s.taxpayer
}

// Close releases the browser. Only the first call does any work; later
// calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.authenticated = false
		if s.driver == nil {
			return
		}
		if err := s.driver.Close(); err != nil {
			s.closeErr = fmt.Errorf("close browser: %w", err)
			s.logger.WithError(err).Warn("Failed to close browser")
			return
		}
		s.logger.Debug("Session closed")
	})
	return s.closeErr
}

// Screenshot saves a diagnostic capture and returns its path. It runs
// even when ctx is already done and returns "" when capturing fails.
func (s *Session) Screenshot(ctx context.Context, label string) string {
	if s.opts.ScreenshotDir == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	data, err := s.driver.Screenshot(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to capture screenshot")
		return ""
	}

	if err := os.MkdirAll(s.opts.ScreenshotDir, 0o755); err != nil {
		s.logger.WithError(err).Warn("Failed to create screenshot dir")
		return ""
	}

	ruc := s.taxpayer.RUC
	if ruc == "" {
		ruc = s.run.RUC
	}
	path := filepath.Join(s.opts.ScreenshotDir, fmt.Sprintf("%s-%s-%d.png", ruc, label, s.src.Clock.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.WithError(err).Warn("Failed to write screenshot")
		return ""
	}

	s.logger.WithField("screenshot", path).Info("Diagnostic screenshot saved")
	return path
}

// fail builds the error surfaced to the caller, with a screenshot.
func (s *Session) fail(ctx context.Context, outcome models.Outcome, state string, attempts int, err error) *OperationFailedError {
	op := &OperationFailedError{
		Outcome:  outcome,
		State:    state,
		Attempts: attempts,
		Err:      err,
	}

	var ui *TransientUIError
	if errors.As(err, &ui) && ui.Screenshot != "" {
		op.Screenshot = ui.Screenshot
	} else {
		op.Screenshot = s.Screenshot(ctx, state)
	}
	return op
}

// poll evaluates cond every PollInterval until it reports done, returns an
// error, or timeout passes on the session clock.
func (s *Session) poll(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := s.src.Clock.Now().Add(timeout)
	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !s.src.Clock.Now().Before(deadline) {
			return context.DeadlineExceeded
		}
		if err := s.src.Clock.Sleep(ctx, s.opts.PollInterval); err != nil {
			return err
		}
	}
}

// exists is a poll condition that treats driver errors as "not yet".
func (s *Session) exists(selector string) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		found, err := s.driver.Exists(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.logger.WithError(err).WithField("selector", selector).Debug("Element lookup failed")
			return false, nil
		}
		return found, nil
	}
}

// Fetch implements DocumentFetcher by clicking the record's download
// control and capturing the file.
func (s *Session) Fetch(ctx context.Context, record models.InvoiceRecord, docType models.DocumentType) ([]byte, error) {
	selector := record.DownloadSelector(docType)
	if selector == "" {
		return nil, fmt.Errorf("no %s download control for %s", docType, record.AccessKey)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.DownloadTimeout)
	defer cancel()

	if _, err := s.human.MoveTo(ctx, selector); err != nil {
		s.logger.WithError(err).Debug("Could not hover download control")
	}
	data, err := s.driver.Download(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty %s download for %s", docType, record.AccessKey)
	}
	return data, nil
}
