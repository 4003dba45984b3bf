package automation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/sirupsen/logrus"
)

// DownloadReport is what a search-and-download pass produced.
type DownloadReport struct {
	Retry     *RetryState
	Processed []models.ProcessedInvoice
	Failures  []models.Failure
	Pages     int
	Skipped   int
}

// Execute runs the entry point selected by mode. ModeDownload requires a
// session that is already authenticated.
func (s *Session) Execute(ctx context.Context, mode models.RunMode, creds *models.Credentials, startDate *time.Time, pipeline *Pipeline) (*DownloadReport, error) {
	switch mode {
	case models.ModeLogin:
		return &DownloadReport{}, s.Login(ctx, creds)
	case models.ModeFull:
		if err := s.Login(ctx, creds); err != nil {
			return &DownloadReport{}, err
		}
		return s.Download(ctx, startDate, pipeline)
	case models.ModeDownload:
		return s.Download(ctx, startDate, pipeline)
	default:
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}
}

// PrepareSearch selects the period on the search screen: all days, and the
// year and month of startDate when given.
func (s *Session) PrepareSearch(ctx context.Context, startDate *time.Time) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}

	type filter struct {
		selector string
		value    string
	}
	filters := []filter{}
	if startDate != nil {
		filters = append(filters,
			filter{selYear, strconv.Itoa(startDate.Year())},
			filter{selMonth, strconv.Itoa(int(startDate.Month()))},
		)
	}
	filters = append(filters, filter{selDay, "0"})

	for _, f := range filters {
		if found, _ := s.exists(f.selector)(ctx); !found {
			s.logger.WithField("selector", f.selector).Warn("Search filter not present, skipping")
			continue
		}
		if err := s.driver.SetValue(ctx, f.selector, f.value); err != nil {
			return &TransientUIError{State: StateSearchScreenReady, Element: f.selector, Err: err}
		}
		if err := s.human.Dwell(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Download submits the search and stores every listed document the stores
// do not hold yet, following the paginator up to MaxPages.
func (s *Session) Download(ctx context.Context, startDate *time.Time, pipeline *Pipeline) (*DownloadReport, error) {
	report := &DownloadReport{}
	if !s.authenticated {
		return report, ErrNotAuthenticated
	}

	if err := s.PrepareSearch(ctx, startDate); err != nil {
		return report, s.fail(ctx, models.OutcomeFailed, "search_filters", 0, err)
	}

	rs, err := s.SubmitWithRetry(ctx, s.opts.MaxAttempts)
	report.Retry = rs
	if err != nil {
		return report, err
	}

	s.human.UseProfile(behavior.Default())

	for page := 1; page <= s.opts.MaxPages; page++ {
		records, skipped, err := s.scrapePage(ctx)
		if err != nil {
			report.Failures = append(report.Failures, models.Failure{Stage: "scrape", Error: err.Error()})
			break
		}
		report.Pages = page
		report.Skipped += skipped

		s.logger.WithFields(logrus.Fields{
			"page":    page,
			"records": len(records),
			"skipped": skipped,
		}).Info("Results page scraped")

		processed, failures := pipeline.Process(ctx, s, s.taxpayer, records)
		report.Processed = append(report.Processed, processed...)
		report.Failures = append(report.Failures, failures...)

		if len(records) == 0 || page == s.opts.MaxPages || ctx.Err() != nil {
			break
		}

		more, err := s.nextPage(ctx, records[0].AccessKey)
		if err != nil {
			report.Failures = append(report.Failures, models.Failure{Stage: "paginate", Error: err.Error()})
			break
		}
		if !more {
			break
		}
	}
	return report, nil
}

func (s *Session) scrapePage(ctx context.Context) ([]models.InvoiceRecord, int, error) {
	found, err := s.driver.Exists(ctx, selResultsTable)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, nil
	}

	html, err := s.driver.OuterHTML(ctx, selResultsTable)
	if err != nil {
		return nil, 0, fmt.Errorf("read results table: %w", err)
	}
	return ParseResults(html)
}

// nextPage clicks the paginator and waits until the first row changes.
// It reports false when there is no further page.
func (s *Session) nextPage(ctx context.Context, previousFirst string) (bool, error) {
	if found, _ := s.exists(selNextPage)(ctx); !found {
		return false, nil
	}
	if err := s.human.Click(ctx, selNextPage); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}

	err := s.poll(ctx, s.opts.ResultsTimeout, func(ctx context.Context) (bool, error) {
		records, _, err := s.scrapePage(ctx)
		if err != nil {
			return false, ctx.Err()
		}
		return len(records) > 0 && records[0].AccessKey != previousFirst, nil
	})
	if err != nil {
		return false, fmt.Errorf("wait for next page: %w", err)
	}
	return true, nil
}
