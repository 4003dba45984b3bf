package automation

import (
	"time"

	"github.com/nexconsult/sri-invoices/internal/config"
)

// Options tune a session. Zero values are replaced by the defaults in
// withDefaults.
type Options struct {
	LoginURL         string
	MaxAttempts      int
	StepTimeout      time.Duration
	ResultsTimeout   time.Duration
	PollInterval     time.Duration
	LoginStepRetries int
	NavigateRetries  int
	DownloadRetries  int
	DownloadTimeout  time.Duration
	MaxPages         int
	ScreenshotDir    string

	SolverPollInterval time.Duration
	SolverTimeout      time.Duration
}

// OptionsFromConfig maps the portal and solver configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		LoginURL:           cfg.Portal.LoginURL,
		MaxAttempts:        cfg.Portal.MaxAttempts,
		StepTimeout:        cfg.Portal.StepTimeout,
		ResultsTimeout:     cfg.Portal.ResultsTimeout,
		PollInterval:       cfg.Portal.PollInterval,
		LoginStepRetries:   cfg.Portal.LoginStepRetries,
		NavigateRetries:    cfg.Portal.NavigateRetries,
		DownloadRetries:    cfg.Portal.DownloadRetries,
		DownloadTimeout:    cfg.Portal.DownloadTimeout,
		MaxPages:           cfg.Portal.MaxPages,
		ScreenshotDir:      cfg.Portal.ScreenshotDir,
		SolverPollInterval: cfg.Solver.PollInterval,
		SolverTimeout:      cfg.Solver.Timeout,
	}
}

func (o Options) withDefaults() Options {
	if o.LoginURL == "" {
		o.LoginURL = "https://srienlinea.sri.gob.ec/sri-en-linea/inicio/NAT"
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 10
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 30 * time.Second
	}
	if o.ResultsTimeout <= 0 {
		o.ResultsTimeout = 15 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.LoginStepRetries < 0 {
		o.LoginStepRetries = 0
	}
	if o.NavigateRetries < 0 {
		o.NavigateRetries = 0
	}
	if o.DownloadRetries < 0 {
		o.DownloadRetries = 0
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = 30 * time.Second
	}
	if o.MaxPages < 1 {
		o.MaxPages = 1
	}
	if o.SolverPollInterval <= 0 {
		o.SolverPollInterval = 5 * time.Second
	}
	if o.SolverTimeout <= 0 {
		o.SolverTimeout = 3 * time.Minute
	}
	return o
}
