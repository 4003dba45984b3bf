// Package captcha wraps the paid challenge-solving service behind the
// ExternalSolver interface and provides the page scripts needed to read
// the site key and inject a returned token.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimeout is returned when no token arrives before the solve deadline.
	ErrTimeout = errors.New("captcha solver timed out")
	// ErrUnsolvable is returned when the service gives up on a job.
	ErrUnsolvable = errors.New("captcha could not be solved")
)

// PollStatus is the state of a submitted job.
type PollStatus int

const (
	Pending PollStatus = iota
	Ready
	Failed
)

func (s PollStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// PollResult is one answer from ExternalSolver.Poll.
type PollResult struct {
	Status PollStatus
	Token  string
	// Reason carries the service's error text when Status is Failed.
	Reason string
}

// ExternalSolver is a third-party service that solves a challenge given its
// site key and page URL.
type ExternalSolver interface {
	Submit(ctx context.Context, siteKey, pageURL string) (string, error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// ResolveOptions bound a Resolve call.
type ResolveOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Clock        behavior.Clock
	Logger       *logrus.Entry
}

// Resolve submits one job and polls it until a token is ready, the service
// reports failure, the timeout passes or ctx is done. Transient poll errors
// are logged and polling continues.
func Resolve(ctx context.Context, solver ExternalSolver, siteKey, pageURL string, opts ResolveOptions) (string, error) {
	if opts.Clock == nil {
		opts.Clock = behavior.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	jobID, err := solver.Submit(ctx, siteKey, pageURL)
	if err != nil {
		return "", fmt.Errorf("submit captcha: %w", err)
	}

	log := opts.Logger.WithField("captcha_id", jobID)
	log.Info("Captcha submitted")

	deadline := opts.Clock.Now().Add(opts.Timeout)
	for polls := 1; ; polls++ {
		if err := opts.Clock.Sleep(ctx, opts.PollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", err
		}

		res, err := solver.Poll(ctx, jobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return "", ErrTimeout
				}
				return "", ctx.Err()
			}
			log.WithError(err).Warn("Error checking captcha solution")
		case res.Status == Ready:
			log.WithField("polls", polls).Info("Captcha solution ready")
			return res.Token, nil
		case res.Status == Failed:
			return "", fmt.Errorf("%w: %s", ErrUnsolvable, res.Reason)
		default:
			log.WithField("polls", polls).Debug("Captcha not ready yet")
		}

		if !opts.Clock.Now().Before(deadline) {
			return "", ErrTimeout
		}
	}
}
