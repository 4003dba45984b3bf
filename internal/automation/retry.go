package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/humanize"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// RetryOutcome is the state of one search submission.
type RetryOutcome string

const (
	RetryPending   RetryOutcome = "pending"
	RetrySuccess   RetryOutcome = "success"
	RetryRejected  RetryOutcome = "rejected"
	RetryExhausted RetryOutcome = "exhausted"
)

// AttemptRecord is one submit and what the page answered.
type AttemptRecord struct {
	Attempt   int    `json:"attempt"`
	Profile   string `json:"profile"`
	Verdict   string `json:"verdict"`
	Message   string `json:"message,omitempty"`
	ViaSolver bool   `json:"via_solver,omitempty"`
}

// RetryState tracks one SubmitWithRetry call. Attempts only grows and never
// exceeds MaxAttempts; the solver submit is counted separately.
type RetryState struct {
	Attempts          int
	MaxAttempts       int
	Outcome           RetryOutcome
	Profile           behavior.Profile
	SolverInvoked     bool
	SolverSubmissions int
	ViaSolver         bool
	History           []AttemptRecord
}

type verdict int

const (
	verdictAccepted verdict = iota
	verdictRejected
	// verdictUnknown means neither a rejection nor a result could be seen.
	verdictUnknown
)

func (v verdict) String() string {
	switch v {
	case verdictAccepted:
		return "accepted"
	case verdictRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const (
	frustratedEvery = 3
	scrollTopEvery  = 5
	stateSearch     = "search_submit"
)

// SubmitWithRetry clicks the search button until the portal accepts the
// challenge, varying the interaction profile per attempt. When every local
// attempt fails, the external solver is used exactly once.
func (s *Session) SubmitWithRetry(ctx context.Context, maxAttempts int) (*RetryState, error) {
	if !s.authenticated {
		return nil, ErrNotAuthenticated
	}
	if maxAttempts < 1 {
		maxAttempts = s.opts.MaxAttempts
	}

	rs := &RetryState{MaxAttempts: maxAttempts, Outcome: RetryPending}
	var lastMessage string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rs.Attempts = attempt
		rs.Profile = behavior.ForAttempt(attempt)
		s.human.UseProfile(rs.Profile)

		log := s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"profile": rs.Profile.Name,
		})
		log.Info("Submitting search")

		v, msg, err := s.submitOnce(ctx, attempt)
		if err != nil {
			var ui *TransientUIError
			if ctx.Err() != nil || !errors.As(err, &ui) {
				return rs, s.fail(ctx, models.OutcomeFailed, stateSearch, attempt, err)
			}
			// A missed click costs the attempt, not the run
			log.WithError(err).Warn("Search submit failed")
			v, msg = verdictUnknown, err.Error()
		}

		rs.History = append(rs.History, AttemptRecord{Attempt: attempt, Profile: rs.Profile.Name, Verdict: v.String(), Message: msg})
		s.run.Record(s.src.Clock.Now(), "submit", attempt, rs.Profile.Name, v.String())

		if v == verdictAccepted {
			rs.Outcome = RetrySuccess
			log.Info("Search accepted")
			return rs, nil
		}

		rs.Outcome = RetryRejected
		lastMessage = msg
		if err == nil {
			log.WithField("message", msg).Warn("Search rejected")
		}

		if err := s.recover(ctx, attempt); err != nil {
			return rs, s.fail(ctx, models.OutcomeFailed, stateSearch, attempt, err)
		}
	}

	return s.fallback(ctx, rs, lastMessage)
}

// submitOnce clicks the submit control and waits for the page's verdict.
func (s *Session) submitOnce(ctx context.Context, attempt int) (verdict, string, error) {
	if err := s.human.Click(ctx, selSearchButton); err != nil {
		return verdictUnknown, "", &TransientUIError{State: StateSearchScreenReady, Element: selSearchButton, Err: err}
	}

	base := time.Duration(3000+attempt*500) * time.Millisecond
	if err := s.src.PauseBetween(ctx, base, base+2*time.Second); err != nil {
		return verdictUnknown, "", err
	}

	return s.awaitVerdict(ctx)
}

// awaitVerdict polls the page until it shows a rejection, a results table
// or the empty-result notice. A silent page is not a success.
func (s *Session) awaitVerdict(ctx context.Context) (verdict, string, error) {
	v := verdictUnknown
	var message string

	err := s.poll(ctx, s.opts.ResultsTimeout, func(ctx context.Context) (bool, error) {
		text, found, err := s.driver.Text(ctx, selMessages)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			s.logger.WithError(err).Debug("Message lookup failed")
		}

		lower := strings.ToLower(text)
		if found && strings.Contains(lower, rejectionMarker) {
			v, message = verdictRejected, strings.TrimSpace(text)
			return true, nil
		}
		for _, marker := range noDataMarkers {
			if strings.Contains(lower, marker) {
				v, message = verdictAccepted, strings.TrimSpace(text)
				return true, nil
			}
		}

		table, err := s.exists(selResultsTable)(ctx)
		if err != nil {
			return false, err
		}
		if table {
			v = verdictAccepted
			return true, nil
		}
		return false, nil
	})

	switch {
	case err == nil:
		return v, message, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return verdictUnknown, "no rejection or results detected", nil
	default:
		return verdictUnknown, "", err
	}
}

// recover prepares the page for the next attempt after a rejection.
func (s *Session) recover(ctx context.Context, attempt int) error {
	dismiss := fmt.Sprintf(`(() => { const b = document.querySelector(%s); if (b) b.click(); })()`, browser.JSString(selMessagesClose))
	if err := s.driver.Evaluate(ctx, dismiss, nil); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Debug("Could not dismiss message banner")
	}

	if found, _ := s.exists(selCaptchaRefresh)(ctx); found {
		if err := s.human.Click(ctx, selCaptchaRefresh); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Debug("Could not refresh captcha")
		}
	}

	if attempt%frustratedEvery == 0 {
		if err := s.src.PauseBetween(ctx, 2*time.Second, 3*time.Second); err != nil {
			return err
		}
		if err := s.human.Scroll(ctx, humanize.ScrollFull); err != nil {
			return err
		}
	}

	if attempt%scrollTopEvery == 0 {
		if err := s.human.Scroll(ctx, humanize.ScrollToTop); err != nil {
			return err
		}
		if err := s.src.PauseBetween(ctx, time.Second, 2*time.Second); err != nil {
			return err
		}
	}

	base := time.Duration(1000+attempt*200) * time.Millisecond
	if err := s.src.PauseBetween(ctx, base, base+800*time.Millisecond); err != nil {
		return err
	}
	return s.human.Wander(ctx)
}

// fallback runs the single external-solver attempt after local retries
// are exhausted.
func (s *Session) fallback(ctx context.Context, rs *RetryState, lastMessage string) (*RetryState, error) {
	rs.SolverInvoked = true
	log := s.logger.WithField("attempt", rs.Attempts)
	log.Warn("Local attempts exhausted, using external solver")

	token, solverErr := s.solve(ctx, rs)
	if solverErr == nil {
		var written int
		if err := s.driver.Evaluate(ctx, captcha.TokenInjectionScript(token), &written); err != nil {
			solverErr = &SolverFailureError{Err: fmt.Errorf("inject token: %w", err)}
		} else {
			log.WithField("fields", written).Info("Solver token injected")

			v, msg, err := s.submitOnce(ctx, rs.Attempts)
			if err != nil {
				return rs, s.fail(ctx, models.OutcomeFailed, stateSearch, rs.Attempts, err)
			}
			rs.History = append(rs.History, AttemptRecord{Attempt: rs.Attempts, Profile: rs.Profile.Name, Verdict: v.String(), Message: msg, ViaSolver: true})
			s.run.Record(s.src.Clock.Now(), "solver_submit", rs.Attempts, rs.Profile.Name, v.String())

			if v == verdictAccepted {
				rs.Outcome = RetrySuccess
				rs.ViaSolver = true
				log.Info("Search accepted with solver token")
				return rs, nil
			}
			lastMessage = msg
		}
	}

	rs.Outcome = RetryExhausted
	op := s.fail(ctx, models.OutcomeChallengeExhausted, stateSearch, rs.Attempts,
		&ChallengeRejectedError{Attempt: rs.Attempts, Message: lastMessage})
	op.LocalRetriesExhausted = true
	op.SolverErr = solverErr
	return rs, op
}

func (s *Session) solve(ctx context.Context, rs *RetryState) (string, error) {
	if s.solver == nil {
		return "", &SolverFailureError{Err: errors.New("no external solver configured")}
	}

	var siteKey string
	if err := s.driver.Evaluate(ctx, captcha.SiteKeyScript, &siteKey); err != nil {
		return "", &SolverFailureError{Err: fmt.Errorf("read site key: %w", err)}
	}
	if siteKey == "" {
		return "", &SolverFailureError{Err: errors.New("challenge site key not found on page")}
	}

	pageURL, err := s.driver.Location(ctx)
	if err != nil {
		return "", &SolverFailureError{Err: fmt.Errorf("read page url: %w", err)}
	}

	rs.SolverSubmissions++
	token, err := captcha.Resolve(ctx, s.solver, siteKey, pageURL, captcha.ResolveOptions{
		PollInterval: s.opts.SolverPollInterval,
		Timeout:      s.opts.SolverTimeout,
		Clock:        s.src.Clock,
		Logger:       s.logger,
	})
	if err != nil {
		return "", &SolverFailureError{Err: err}
	}
	return token, nil
}
