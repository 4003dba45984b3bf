package browser

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const acceptLanguage = "es-EC,es;q=0.9,en-US;q=0.8,en;q=0.7"

// Each layer runs in its own try block so one failing patch never prevents
// the others from applying.
const stealthScript = `(() => {
  const layers = [
    () => {
      const proto = Object.getPrototypeOf(navigator);
      Object.defineProperty(proto, 'webdriver', { get: () => undefined, configurable: true });
    },
    () => {
      const mime = (type, suffixes, description) => ({ type, suffixes, description });
      const plugin = (name, filename, description, mimes) => {
        const p = { name, filename, description, length: mimes.length };
        mimes.forEach((m, i) => { p[i] = m; m.enabledPlugin = p; });
        return p;
      };
      const pdf = [mime('application/pdf', 'pdf', 'Portable Document Format'), mime('text/pdf', 'pdf', 'Portable Document Format')];
      const plugins = [
        plugin('PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format', pdf),
        plugin('Chrome PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format', pdf),
        plugin('Chromium PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format', pdf),
        plugin('Microsoft Edge PDF Viewer', 'internal-pdf-viewer', 'Portable Document Format', pdf),
        plugin('WebKit built-in PDF', 'internal-pdf-viewer', 'Portable Document Format', pdf),
      ];
      plugins.item = (i) => plugins[i] || null;
      plugins.namedItem = (n) => plugins.find((p) => p.name === n) || null;
      plugins.refresh = () => {};
      pdf.item = (i) => pdf[i] || null;
      pdf.namedItem = (n) => pdf.find((m) => m.type === n) || null;
      Object.defineProperty(navigator, 'plugins', { get: () => plugins });
      Object.defineProperty(navigator, 'mimeTypes', { get: () => pdf });
    },
    () => {
      Object.defineProperty(navigator, 'languages', { get: () => ['es-EC', 'es', 'en-US', 'en'] });
      Object.defineProperty(navigator, 'language', { get: () => 'es-EC' });
    },
    () => {
      Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
      Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
      Object.defineProperty(navigator, 'maxTouchPoints', { get: () => 0 });
      Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
    },
    () => {
      const clean = (s) => s.replace(/HeadlessChrome/g, 'Chrome').replace(/Chromium/g, 'Chrome');
      const ua = clean(navigator.userAgent);
      const appVersion = clean(navigator.appVersion);
      Object.defineProperty(navigator, 'userAgent', { get: () => ua });
      Object.defineProperty(navigator, 'appVersion', { get: () => appVersion });
    },
    () => {
      window.chrome = window.chrome || {};
      window.chrome.runtime = window.chrome.runtime || { connect: () => {}, sendMessage: () => {} };
      window.chrome.loadTimes = window.chrome.loadTimes || (() => ({}));
      window.chrome.csi = window.chrome.csi || (() => ({}));
      window.chrome.app = window.chrome.app || { isInstalled: false };
    },
    () => {
      const query = window.navigator.permissions.query.bind(window.navigator.permissions);
      window.navigator.permissions.query = (parameters) =>
        parameters && parameters.name === 'notifications'
          ? Promise.resolve({ state: Notification.permission })
          : query(parameters);
    },
    () => {
      const patch = (ctx) => {
        if (!ctx) return;
        const getParameter = ctx.prototype.getParameter;
        ctx.prototype.getParameter = function (parameter) {
          if (parameter === 37445) return 'Intel Inc.';
          if (parameter === 37446) return 'Intel Iris OpenGL Engine';
          return getParameter.call(this, parameter);
        };
      };
      patch(window.WebGLRenderingContext);
      patch(window.WebGL2RenderingContext);
    },
    () => {
      Object.defineProperty(window, 'outerWidth', { get: () => window.innerWidth });
      Object.defineProperty(window, 'outerHeight', { get: () => window.innerHeight + 85 });
    },
  ];
  for (const layer of layers) {
    try { layer(); } catch (e) {}
  }
})();`

// StealthScript returns the script injected into every new document.
func StealthScript() string {
	return stealthScript
}

// NormalizeUserAgent removes the substrings that reveal a headless or
// automation build.
func NormalizeUserAgent(ua string) string {
	ua = strings.ReplaceAll(ua, "HeadlessChrome", "Chrome")
	return strings.ReplaceAll(ua, "Chromium", "Chrome")
}

// Stealth installs the disguise layers on the current target. Failures are
// logged and swallowed; the session continues without the failed layer.
func Stealth(userAgent string, logger *logrus.Entry) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			logger.WithError(err).Warn("Stealth script injection failed")
		}

		if err := emulation.SetAutomationOverride(false).Do(ctx); err != nil {
			logger.WithError(err).Debug("Automation override not supported")
		}

		if userAgent != "" {
			override := emulation.SetUserAgentOverride(NormalizeUserAgent(userAgent)).
				WithAcceptLanguage(acceptLanguage).
				WithPlatform("Win32")
			if err := override.Do(ctx); err != nil {
				logger.WithError(err).Warn("User agent override failed")
			}
		}
		return nil
	})
}
