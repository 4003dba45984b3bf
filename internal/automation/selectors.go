package automation

// Portal page elements. PrimeFaces ids contain ':' which must be escaped
// in CSS selectors.
const (
	selLoginLink      = `a.sri-tamano-link-iniciar-sesion[href="/sri-en-linea/contribuyente/perfil"]`
	selUsername       = `input[name="usuario"]`
	selPassword       = `input[name="password"]`
	selLoginSubmit    = `#kc-login`
	selLoginError     = `#input-error, .kc-feedback-text, .alert-error`
	selMenu           = `#sri-menu`
	selMenuHeaders    = `a.ui-panelmenu-header-link`
	selMenuItems      = `a.ui-menuitem-link`
	selDay            = `#frmPrincipal\:dia`
	selYear           = `#frmPrincipal\:ano`
	selMonth          = `#frmPrincipal\:mes`
	selSearchButton   = `#frmPrincipal\:btnBuscar`
	selMessages       = `#formMessages\:messages`
	selMessagesClose  = `#formMessages\:messages .ui-messages-close`
	selCaptchaRefresh = `[aria-label="Recargar captcha"]`
	selResultsTable   = `table[role="grid"]`
	selResultRows     = `table[role="grid"] tbody tr`
	selNextPage       = `.ui-paginator-next:not(.ui-state-disabled)`
)

const (
	menuBillingText  = "FACTURACIÓN ELECTRÓNICA"
	menuReceivedText = "Comprobantes electrónicos recibidos"

	// rejectionMarker is matched case-insensitively against the messages
	// container ("Captcha incorrecta").
	rejectionMarker = "captcha"
)

// noDataMarkers are the notices the portal shows for an empty search.
var noDataMarkers = []string{
	"no existen datos",
	"no se encontraron",
	"sin resultados",
}

// tagMenuScript finds a menu link by its visible text and marks it with a
// data attribute so the synthesizer can target it with a plain selector.
// It evaluates to true when the link was found.
const tagMenuScript = `((linkSelector, text, tag) => {
  const want = text.trim().toLowerCase();
  for (const a of document.querySelectorAll(linkSelector)) {
    if ((a.textContent || '').trim().toLowerCase().includes(want)) {
      a.setAttribute('data-sri-nav', tag);
      a.scrollIntoView({ block: 'center' });
      return true;
    }
  }
  return false;
})(%s, %s, %s)`
