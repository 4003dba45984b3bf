package captcha

import (
	"fmt"

	"github.com/nexconsult/sri-invoices/internal/browser"
)

// SiteKeyScript evaluates to the page's reCAPTCHA site key, or "" when the
// page carries no challenge widget.
const SiteKeyScript = `(() => {
  const holder = document.querySelector('[data-sitekey]');
  if (holder) return holder.getAttribute('data-sitekey') || '';
  for (const frame of document.querySelectorAll('iframe[src*="recaptcha"]')) {
    try {
      const k = new URL(frame.src).searchParams.get('k');
      if (k) return k;
    } catch (e) {}
  }
  return '';
})()`

// TokenInjectionScript returns a script that writes token into every field
// the page reads a challenge answer from and makes grecaptcha report it.
// It evaluates to the number of fields written.
func TokenInjectionScript(token string) string {
	return fmt.Sprintf(`(() => {
  const token = %s;
  let written = 0;
  let area = document.getElementById('g-recaptcha-response');
  if (!area) {
    area = document.createElement('textarea');
    area.id = 'g-recaptcha-response';
    area.name = 'g-recaptcha-response';
    area.style.display = 'none';
    (document.querySelector('form') || document.body).appendChild(area);
  }
  const fields = new Set([area]);
  document.querySelectorAll('[name$="response"], [name$="token"]').forEach((el) => fields.add(el));
  fields.forEach((el) => {
    el.value = token;
    el.dispatchEvent(new Event('input', { bubbles: true }));
    el.dispatchEvent(new Event('change', { bubbles: true }));
    written++;
  });
  try {
    if (window.grecaptcha) {
      window.grecaptcha.getResponse = () => token;
    }
  } catch (e) {}
  return written;
})()`, browser.JSString(token))
}
