package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoSession is returned when no credentials are stored for a taxpayer.
var ErrNoSession = errors.New("no stored credentials for taxpayer")

// RunnerDeps are the collaborators of a Runner.
type RunnerDeps struct {
	Credentials CredentialsProvider
	Invoices    InvoiceStore
	Documents   DocumentStore
	Objects     ObjectStore
	// Solver may be nil; the fallback then always fails.
	Solver   captcha.ExternalSolver
	Browsers browser.Factory
	// NewSource returns the random and clock source of one run. Defaults to
	// behavior.NewSource.
	NewSource func() behavior.Source
	// Validate overrides ValidateDocument when set.
	Validate func(models.DocumentType, []byte) error
}

// Runner opens one session per run and maps everything that happened into
// a RunResult.
type Runner struct {
	deps   RunnerDeps
	opts   Options
	logger *logrus.Logger
}

// NewRunner creates a runner.
func NewRunner(deps RunnerDeps, opts Options, logger *logrus.Logger) *Runner {
	if deps.NewSource == nil {
		deps.NewSource = behavior.NewSource
	}
	return &Runner{deps: deps, opts: opts.withDefaults(), logger: logger}
}

// RunDownload logs in as taxID and downloads every missing document since
// startDate. The result is always returned, also on error; failures that
// did not stop the run are listed in it.
func (r *Runner) RunDownload(ctx context.Context, taxID string, startDate *time.Time, mode models.RunMode) (*models.RunResult, error) {
	if mode == "" {
		mode = models.ModeFull
	}
	src := r.deps.NewSource()
	run := NewRunContext(r.logger, taxID, src.Clock.Now())
	if id, ok := RunIDFrom(ctx); ok {
		run = newRunContext(r.logger, id, taxID, run.StartedAt)
	}

	result := &models.RunResult{
		RunID:     run.ID,
		RUC:       taxID,
		Mode:      mode,
		Outcome:   models.OutcomeFailed,
		StartedAt: run.StartedAt,
	}
	finish := func(err error) (*models.RunResult, error) {
		result.FinishedAt = src.Clock.Now()
		if err != nil {
			result.Error = err.Error()
		}
		run.Logger.WithFields(logrus.Fields{
			"outcome":   result.Outcome,
			"processed": len(result.Processed),
			"failures":  len(result.Failures),
			"attempts":  result.Attempts,
			"solver":    result.UsedSolver,
		}).Info("Run finished")
		return result, err
	}

	if !mode.Valid() {
		return finish(fmt.Errorf("unknown run mode %q", mode))
	}
	if mode == models.ModeDownload {
		// A fresh session is never authenticated.
		return finish(fmt.Errorf("mode %q needs an authenticated session: %w", mode, ErrNotAuthenticated))
	}

	creds, err := r.deps.Credentials.GetDecrypted(ctx, taxID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			result.Outcome = models.OutcomeNoSession
			return finish(fmt.Errorf("%w: %s", ErrNoSession, taxID))
		}
		return finish(fmt.Errorf("load credentials: %w", err))
	}

	driver, err := r.deps.Browsers(ctx)
	if err != nil {
		return finish(fmt.Errorf("start browser: %w", err))
	}

	session := NewSession(driver, src, r.opts, r.deps.Solver, run)
	defer session.Close()

	pipeline := NewPipeline(r.deps.Invoices, r.deps.Documents, r.deps.Objects, src, r.opts.DownloadRetries, run.Logger)
	if r.deps.Validate != nil {
		pipeline.Validate = r.deps.Validate
	}

	run.Logger.WithField("mode", mode).Info("Run started")
	report, err := session.Execute(ctx, mode, creds, startDate, pipeline)
	return finish(r.fill(ctx, session, result, report, err))
}

// fill copies the report into result and chooses the outcome.
func (r *Runner) fill(ctx context.Context, session *Session, result *models.RunResult, report *DownloadReport, err error) error {
	if report != nil {
		result.Processed = report.Processed
		result.Failures = report.Failures
		if report.Retry != nil {
			result.Attempts = report.Retry.Attempts
			result.UsedSolver = report.Retry.SolverInvoked
		}
	}

	if err != nil {
		if op, ok := AsOperationFailed(err); ok {
			result.Outcome = op.Outcome
			result.Screenshot = op.Screenshot
			if op.Attempts > result.Attempts {
				result.Attempts = op.Attempts
			}
		} else {
			result.Outcome = models.OutcomeFailed
		}
		return err
	}

	if len(result.Failures) > 0 {
		result.Outcome = models.OutcomePartial
		result.Screenshot = session.Screenshot(ctx, "partial")
		return nil
	}
	result.Outcome = models.OutcomeSuccess
	return nil
}
