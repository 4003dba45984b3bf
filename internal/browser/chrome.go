package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/sirupsen/logrus"
)

type downloadEvent struct {
	guid     string
	canceled bool
}

// ChromeDriver implements Driver on top of chromedp
type ChromeDriver struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	downloadDir string
	downloads   chan downloadEvent
	logger      *logrus.Entry

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewFactory returns a Factory that starts one Chrome per call
func NewFactory(cfg config.BrowserConfig, logger *logrus.Logger) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewChromeDriver(ctx, cfg, logger)
	}
}

// NewChromeDriver starts a Chrome instance with the stealth layers installed
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *logrus.Logger) (*ChromeDriver, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "es-EC"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.UserAgent(NormalizeUserAgent(cfg.UserAgent)),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	downloadDir, err := os.MkdirTemp(cfg.DownloadDir, "sri-downloads-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	id := fmt.Sprintf("browser-%d", time.Now().UnixNano())
	entry := logger.WithField("browser_id", id)

	// The browser outlives the caller's context; Close releases it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(entry.Debugf))

	d := &ChromeDriver{
		id:          id,
		ctx:         browserCtx,
		cancel:      func() { browserCancel(); allocCancel() },
		downloadDir: downloadDir,
		downloads:   make(chan downloadEvent, 8),
		logger:      entry,
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		progress, ok := ev.(*cdpbrowser.EventDownloadProgress)
		if !ok {
			return
		}
		var out downloadEvent
		switch progress.State {
		case cdpbrowser.DownloadProgressStateCompleted:
			out = downloadEvent{guid: progress.GUID}
		case cdpbrowser.DownloadProgressStateCanceled:
			out = downloadEvent{guid: progress.GUID, canceled: true}
		default:
			return
		}
		select {
		case d.downloads <- out:
		default:
		}
	})

	// First Run allocates the browser; it must not carry a deadline.
	if err := chromedp.Run(browserCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	err = d.run(startCtx,
		Stealth(cfg.UserAgent, entry),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("browser health check failed: %w", err)
	}

	entry.Debug("Browser created successfully")
	return d, nil
}

// ID returns the driver identifier used in logs
func (d *ChromeDriver) ID() string {
	return d.id
}

// IsHealthy reports whether the driver can still be used
func (d *ChromeDriver) IsHealthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed && d.ctx.Err() == nil
}

// scope derives a context bound to the browser that also honours the
// caller's deadline and cancellation.
func (d *ChromeDriver) scope(ctx context.Context) (context.Context, context.CancelFunc, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, nil, ErrClosed
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parent := cancel
		cancel = func() { cancelDeadline(); parent() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }, nil
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done, err := d.scope(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate navigates to a URL
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// WaitVisible waits for an element to become visible
func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Exists checks for a match without waiting
func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	err := d.run(ctx, chromedp.Evaluate(fmt.Sprintf(`!!document.querySelector(%s)`, JSString(selector)), &found))
	return found, err
}

// Click clicks on an element
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// SendKeys types text into an element
func (d *ChromeDriver) SendKeys(ctx context.Context, selector, text string) error {
	return d.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// SetValue sets a form control value the way a user edit would
func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.value = %s;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`, JSString(selector), JSString(value))

	var found bool
	if err := d.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("element %s not found", selector)
	}
	return nil
}

// Evaluate executes JavaScript. With a nil res the script is run for its
// side effects only.
func (d *ChromeDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	if res == nil {
		var ignored bool
		return d.run(ctx, chromedp.Evaluate("(() => {\n"+script+"\n;return true;})()", &ignored))
	}
	return d.run(ctx, chromedp.Evaluate(script, res))
}

// Text gets the visible text of an element
func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, bool, error) {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  return el ? { found: true, text: el.innerText || el.textContent || '' } : { found: false, text: '' };
})()`, JSString(selector))

	var out struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	if err := d.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", false, err
	}
	return out.Text, out.Found, nil
}

// OuterHTML gets the HTML of an element
func (d *ChromeDriver) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	return html, err
}

// ElementBox scrolls an element into view and returns its box
func (d *ChromeDriver) ElementBox(ctx context.Context, selector string) (Box, error) {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return { found: false };
  el.scrollIntoView({ block: 'center', inline: 'center' });
  const r = el.getBoundingClientRect();
  return { found: true, x: r.left, y: r.top, width: r.width, height: r.height };
})()`, JSString(selector))

	var out struct {
		Found bool `json:"found"`
		Box
	}
	if err := d.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return Box{}, err
	}
	if !out.Found {
		return Box{}, fmt.Errorf("element %s not found", selector)
	}
	return out.Box, nil
}

// MouseMove dispatches a raw mouse move
func (d *ChromeDriver) MouseMove(ctx context.Context, p Point) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y).Do(ctx)
	}))
}

// MouseClick presses and releases the left button at p
func (d *ChromeDriver) MouseClick(ctx context.Context, p Point) error {
	return d.run(ctx, chromedp.MouseClickXY(p.X, p.Y))
}

// Location returns the current URL
func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// Screenshot captures the viewport as PNG
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Download clicks selector and collects the resulting file
func (d *ChromeDriver) Download(ctx context.Context, selector string) ([]byte, error) {
	// Drop events left over from an earlier, abandoned download.
	for drained := false; !drained; {
		select {
		case <-d.downloads:
		default:
			drained = true
		}
	}

	if err := d.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("failed to trigger download: %w", err)
	}

	select {
	case ev := <-d.downloads:
		path := filepath.Join(d.downloadDir, ev.guid)
		defer os.Remove(path)
		if ev.canceled {
			return nil, fmt.Errorf("download %s was canceled", ev.guid)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read download: %w", err)
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the browser and removes downloaded files
func (d *ChromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		if d.cancel != nil {
			d.cancel()
		}
		if err := os.RemoveAll(d.downloadDir); err != nil {
			d.logger.WithError(err).Warn("Failed to remove download dir")
		}
		d.logger.Debug("Browser closed")
	})
	return nil
}
