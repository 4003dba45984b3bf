package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const notReady = "CAPCHA_NOT_READY"

// SolveCaptchaClient talks to a SolveCaptcha / 2captcha compatible API.
type SolveCaptchaClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Entry

	mu    sync.RWMutex
	stats Stats
}

// Stats counts solver usage for health reporting.
type Stats struct {
	Submitted   int64     `json:"submitted"`
	Solved      int64     `json:"solved"`
	Failed      int64     `json:"failed"`
	LastRequest time.Time `json:"last_request"`
}

// apiResponse is the json=1 envelope of in.php and res.php.
type apiResponse struct {
	Status    int    `json:"status"`
	Request   string `json:"request"`
	ErrorText string `json:"error_text,omitempty"`
}

// NewSolveCaptchaClient creates a client from the solver configuration.
func NewSolveCaptchaClient(cfg config.SolverConfig, logger *logrus.Logger) *SolveCaptchaClient {
	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 1
	}
	return &SolveCaptchaClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 2),
		logger:  logger.WithField("component", "captcha"),
	}
}

// Configured reports whether an API key is present.
func (c *SolveCaptchaClient) Configured() bool {
	return c.apiKey != ""
}

// Submit creates a reCAPTCHA job and returns its id.
func (c *SolveCaptchaClient) Submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("solver API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	c.mu.Lock()
	c.stats.Submitted++
	c.stats.LastRequest = time.Now()
	c.mu.Unlock()

	form := url.Values{
		"key":       {c.apiKey},
		"method":    {"userrecaptcha"},
		"googlekey": {siteKey},
		"pageurl":   {pageURL},
		"json":      {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := c.do(req)
	if err != nil {
		c.countFailure()
		return "", err
	}
	if result.Status != 1 {
		c.countFailure()
		return "", fmt.Errorf("API error: %s", result.message())
	}

	c.logger.WithField("captcha_id", result.Request).Debug("Captcha job created")
	return result.Request, nil
}

// Poll checks a job once.
func (c *SolveCaptchaClient) Poll(ctx context.Context, jobID string) (PollResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return PollResult{}, fmt.Errorf("rate limiter: %w", err)
	}

	query := url.Values{
		"key":    {c.apiKey},
		"action": {"get"},
		"id":     {jobID},
		"json":   {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/res.php?"+query.Encode(), nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("build request: %w", err)
	}

	result, err := c.do(req)
	if err != nil {
		return PollResult{}, err
	}

	switch {
	case result.Status == 1:
		c.mu.Lock()
		c.stats.Solved++
		c.mu.Unlock()
		return PollResult{Status: Ready, Token: result.Request}, nil
	case result.Request == notReady:
		return PollResult{Status: Pending}, nil
	default:
		c.countFailure()
		return PollResult{Status: Failed, Reason: result.message()}, nil
	}
}

func (c *SolveCaptchaClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("solver returned HTTP %d", resp.StatusCode)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &result, nil
}

func (c *SolveCaptchaClient) countFailure() {
	c.mu.Lock()
	c.stats.Failed++
	c.mu.Unlock()
}

func (r *apiResponse) message() string {
	if r.ErrorText != "" {
		return r.Request + ": " + r.ErrorText
	}
	return r.Request
}

// GetStats returns a snapshot of the usage counters.
func (c *SolveCaptchaClient) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// IsHealthy reports whether recent jobs mostly succeed.
func (c *SolveCaptchaClient) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	finished := c.stats.Solved + c.stats.Failed
	if finished == 0 {
		return true
	}
	return float64(c.stats.Solved)/float64(finished) > 0.5
}
