package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// LoginState is a node of the login state machine.
type LoginState string

const (
	StateStart                LoginState = "start"
	StatePortalLoaded         LoginState = "portal_loaded"
	StateLoginFormVisible     LoginState = "login_form_visible"
	StateCredentialsSubmitted LoginState = "credentials_submitted"
	StateMenuExpanded         LoginState = "menu_expanded"
	StateSearchScreenReady    LoginState = "search_screen_ready"
	StateFailed               LoginState = "failed"
)

const navigateRetryPause = 2 * time.Second

// transition moves the machine from one state to the next. element names
// the page condition gating the next state.
type transition struct {
	from    LoginState
	to      LoginState
	element string
	run     func(s *Session, ctx context.Context, creds *models.Credentials) error
}

var loginTransitions = []transition{
	{StateStart, StatePortalLoaded, selLoginLink, (*Session).loadPortal},
	{StatePortalLoaded, StateLoginFormVisible, selUsername, (*Session).openLoginForm},
	{StateLoginFormVisible, StateCredentialsSubmitted, selLoginSubmit, (*Session).submitCredentials},
	{StateCredentialsSubmitted, StateMenuExpanded, selMenu, (*Session).expandMenu},
	{StateMenuExpanded, StateSearchScreenReady, selSearchButton, (*Session).openSearchScreen},
}

// Login drives the portal from its home page to the invoice search screen.
// Each step is retried LoginStepRetries times on TransientUIError; any
// other failure ends the login.
func (s *Session) Login(ctx context.Context, creds *models.Credentials) error {
	if creds == nil {
		return fmt.Errorf("login: no credentials")
	}
	s.taxpayer = creds.Taxpayer
	s.state = StateStart

	for _, t := range loginTransitions {
		if err := s.step(ctx, t, creds); err != nil {
			from := s.state
			s.state = StateFailed

			outcome := models.OutcomeLoginFailed
			var netErr *NetworkError
			if errors.As(err, &netErr) || ctx.Err() != nil {
				outcome = models.OutcomeFailed
			}
			return s.fail(ctx, outcome, string(from), 0, err)
		}
		s.state = t.to
		s.run.Record(s.src.Clock.Now(), "login_state", 0, "", string(t.to))
		s.logger.WithField("state", t.to).Info("Login state reached")
	}

	s.authenticated = true
	return nil
}

func (s *Session) step(ctx context.Context, t transition, creds *models.Credentials) error {
	var err error
	for try := 0; try <= s.opts.LoginStepRetries; try++ {
		if try > 0 {
			s.logger.WithFields(logrus.Fields{
				"state":   t.from,
				"element": t.element,
				"retry":   try,
			}).WithError(err).Warn("Retrying login step")
		}

		stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
		err = t.run(s, stepCtx, creds)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var ui *TransientUIError
		if !errors.As(err, &ui) {
			return err
		}
	}

	var ui *TransientUIError
	if errors.As(err, &ui) {
		ui.Screenshot = s.Screenshot(ctx, string(t.from))
	}
	return err
}

// waitFor polls until selector exists, or fails with a TransientUIError.
func (s *Session) waitFor(ctx context.Context, state LoginState, selector string) error {
	if err := s.poll(ctx, s.opts.StepTimeout, s.exists(selector)); err != nil {
		return &TransientUIError{State: state, Element: selector, Err: err}
	}
	return nil
}

func (s *Session) loadPortal(ctx context.Context, _ *models.Credentials) error {
	var err error
	for try := 0; try <= s.opts.NavigateRetries; try++ {
		if try > 0 {
			if err := s.src.Clock.Sleep(ctx, navigateRetryPause); err != nil {
				return err
			}
		}
		if err = s.driver.Navigate(ctx, s.opts.LoginURL); err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.WithError(err).WithField("retry", try).Warn("Navigation failed")
	}
	if err != nil {
		return &NetworkError{URL: s.opts.LoginURL, Err: err}
	}

	if err := s.waitFor(ctx, StateStart, selLoginLink); err != nil {
		return err
	}
	return s.human.Dwell(ctx)
}

func (s *Session) openLoginForm(ctx context.Context, _ *models.Credentials) error {
	if err := s.human.Click(ctx, selLoginLink); err != nil {
		return &TransientUIError{State: StatePortalLoaded, Element: selLoginLink, Err: err}
	}
	return s.waitFor(ctx, StatePortalLoaded, selUsername)
}

// submitCredentials is the only step that transmits secrets. Values are
// never logged.
func (s *Session) submitCredentials(ctx context.Context, creds *models.Credentials) error {
	if err := s.human.Type(ctx, selUsername, creds.Username); err != nil {
		return &TransientUIError{State: StateLoginFormVisible, Element: selUsername, Err: err}
	}
	if err := s.human.Dwell(ctx); err != nil {
		return err
	}
	if err := s.human.Type(ctx, selPassword, creds.Password); err != nil {
		return &TransientUIError{State: StateLoginFormVisible, Element: selPassword, Err: err}
	}
	if err := s.human.Click(ctx, selLoginSubmit); err != nil {
		return &TransientUIError{State: StateLoginFormVisible, Element: selLoginSubmit, Err: err}
	}
	return nil
}

// expandMenu waits for the authenticated menu, failing fast when the login
// form reports an error instead, then opens the billing section.
func (s *Session) expandMenu(ctx context.Context, _ *models.Credentials) error {
	err := s.poll(ctx, s.opts.StepTimeout, func(ctx context.Context) (bool, error) {
		if found, _ := s.exists(selMenu)(ctx); found {
			return true, nil
		}
		text, found, err := s.driver.Text(ctx, selLoginError)
		if err == nil && found && strings.TrimSpace(text) != "" {
			return false, ErrInvalidCredentials
		}
		return false, ctx.Err()
	})
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return err
	case err != nil:
		return &TransientUIError{State: StateCredentialsSubmitted, Element: selMenu, Err: err}
	}

	if err := s.tagAndClick(ctx, StateCredentialsSubmitted, selMenuHeaders, menuBillingText, "billing"); err != nil {
		return err
	}
	return s.human.Dwell(ctx)
}

func (s *Session) openSearchScreen(ctx context.Context, _ *models.Credentials) error {
	if err := s.tagAndClick(ctx, StateMenuExpanded, selMenuItems, menuReceivedText, "received"); err != nil {
		return err
	}
	if err := s.waitFor(ctx, StateMenuExpanded, selSearchButton); err != nil {
		return err
	}
	return s.human.Dwell(ctx)
}

// tagAndClick waits for a menu link with the given text, tags it and
// clicks it like a user would.
func (s *Session) tagAndClick(ctx context.Context, state LoginState, links, text, tag string) error {
	script := fmt.Sprintf(tagMenuScript, browser.JSString(links), browser.JSString(text), browser.JSString(tag))
	target := fmt.Sprintf(`[data-sri-nav=%s]`, browser.JSString(tag))

	err := s.poll(ctx, s.opts.StepTimeout, func(ctx context.Context) (bool, error) {
		var found bool
		if err := s.driver.Evaluate(ctx, script, &found); err != nil {
			return false, ctx.Err()
		}
		return found, nil
	})
	if err != nil {
		return &TransientUIError{State: state, Element: text, Err: err}
	}

	if err := s.human.Click(ctx, target); err != nil {
		return &TransientUIError{State: state, Element: text, Err: err}
	}
	return nil
}
