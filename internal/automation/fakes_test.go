package automation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/store"
	"github.com/nexconsult/sri-invoices/internal/utils"
)

const (
	testRUC      = "1790011674001"
	testPassword = "s3cret"
	testSiteKey  = "6LcSiteKey"
	testPageURL  = "https://srienlinea.sri.gob.ec/comprobantes-electronicos-internet/pages/consultas/recibidos/comprobantesRecibidos.jsf"
)

// portalDriver simulates the portal pages the automation walks through.
// Clicks are attributed to the element last located with ElementBox.
type portalDriver struct {
	browser.Driver

	mu sync.Mutex

	// acceptOn is the search click the portal accepts; 0 never accepts.
	acceptOn int
	// acceptToken accepts the first submit after a token injection.
	acceptToken bool
	// silent never answers a search submit.
	silent      bool
	navigateErr error
	tableHTML   string
	files       map[string][]byte
	failures    map[string]int

	// hidden elements never render, whatever the page state.
	hidden map[string]bool
	// boxFailures makes ElementBox fail for a selector that many times.
	boxFailures map[string]int
	// nextTable is the results page behind the paginator.
	nextTable string
	rows      int

	present       map[string]bool
	texts         map[string]string
	values        map[string]string
	lastBox       string
	searchClicks  int
	tokenInjected bool
	downloads     map[string]int
	clicks        map[string]int
	navigations   int
	closes        int
}

func newPortalDriver() *portalDriver {
	return &portalDriver{
		files:       map[string][]byte{},
		failures:    map[string]int{},
		hidden:      map[string]bool{},
		boxFailures: map[string]int{},
		present:     map[string]bool{},
		texts:       map[string]string{},
		values:      map[string]string{},
		downloads:   map[string]int{},
		clicks:      map[string]int{},
	}
}

func (d *portalDriver) Navigate(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigations++
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.present[selLoginLink] = true
	return nil
}

func (d *portalDriver) Exists(_ context.Context, sel string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.present[sel] && !d.hidden[sel], nil
}

func (d *portalDriver) Text(_ context.Context, sel string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.texts[sel]
	return v, ok, nil
}

func (d *portalDriver) OuterHTML(_ context.Context, sel string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sel != selResultsTable || !d.present[sel] {
		return "", errors.New("no such element")
	}
	return d.tableHTML, nil
}

func (d *portalDriver) ElementBox(_ context.Context, sel string) (browser.Box, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present[sel] || d.hidden[sel] {
		return browser.Box{}, fmt.Errorf("element %s not found", sel)
	}
	if d.boxFailures[sel] > 0 {
		d.boxFailures[sel]--
		return browser.Box{}, fmt.Errorf("element %s is detached", sel)
	}
	d.lastBox = sel
	return browser.Box{X: 400, Y: 300, Width: 120, Height: 32}, nil
}

func (d *portalDriver) MouseMove(context.Context, browser.Point) error { return nil }

func (d *portalDriver) MouseClick(context.Context, browser.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks[d.lastBox]++

	switch d.lastBox {
	case selLoginLink:
		d.present[selUsername] = true
		d.present[selPassword] = true
		d.present[selLoginSubmit] = true
	case selLoginSubmit:
		if d.values[selPassword] == testPassword {
			d.present[selMenu] = true
		} else {
			d.texts[selLoginError] = "Usuario o contraseña incorrectos"
		}
	case `[data-sri-nav="received"]`:
		for _, sel := range []string{selSearchButton, selDay, selYear, selMonth} {
			d.present[sel] = true
		}
	case selSearchButton:
		d.searchClicks++
		accept := (d.acceptOn > 0 && d.searchClicks >= d.acceptOn) || (d.acceptToken && d.tokenInjected)
		switch {
		case d.silent:
		case accept:
			delete(d.texts, selMessages)
			d.present[selResultsTable] = true
			for sel := range d.files {
				d.present[sel] = true
			}
			if d.nextTable != "" {
				d.present[selNextPage] = true
			}
		default:
			d.texts[selMessages] = "Captcha incorrecta"
		}
	case selNextPage:
		d.tableHTML, d.nextTable = d.nextTable, ""
		delete(d.present, selNextPage)
	}
	return nil
}

func (d *portalDriver) SetValue(_ context.Context, sel, v string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[sel] = v
	return nil
}

func (d *portalDriver) SendKeys(_ context.Context, sel, k string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if k == browser.KeyBackspace {
		if v := d.values[sel]; v != "" {
			d.values[sel] = v[:len(v)-1]
		}
		return nil
	}
	d.values[sel] += k
	return nil
}

func (d *portalDriver) Evaluate(_ context.Context, script string, res interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch out := res.(type) {
	case *bool:
		for _, tag := range []string{"billing", "received"} {
			if strings.Contains(script, browser.JSString(tag)) && d.present[selMenu] {
				d.present[fmt.Sprintf(`[data-sri-nav=%s]`, browser.JSString(tag))] = true
				*out = true
			}
		}
	case *string:
		if script == captcha.SiteKeyScript {
			*out = testSiteKey
			return nil
		}
		for sel, v := range d.values {
			if strings.Contains(script, browser.JSString(sel)) {
				*out = v
			}
		}
	case *int:
		d.tokenInjected = true
		*out = 1
	case nil:
		if strings.Contains(script, "ui-messages-close") {
			delete(d.texts, selMessages)
		}
	}
	return nil
}

func (d *portalDriver) Location(context.Context) (string, error) { return testPageURL, nil }

func (d *portalDriver) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (d *portalDriver) Download(_ context.Context, sel string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloads[sel]++
	if d.failures[sel] > 0 {
		d.failures[sel]--
		return nil, errors.New("download did not complete")
	}
	data, ok := d.files[sel]
	if !ok {
		return nil, fmt.Errorf("nothing to download at %s", sel)
	}
	return data, nil
}

func (d *portalDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *portalDriver) downloadCount(sel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloads[sel]
}

func (d *portalDriver) clickCount(sel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clicks[sel]
}

// listing is one row of the simulated results table.
type listing struct {
	key string
	xml string
	pdf string
}

// withResults fills the results table and the downloadable files. Row
// indexes continue across pages the way the portal numbers them.
func (d *portalDriver) withResults(keys ...string) []listing {
	var rows strings.Builder
	var out []listing
	for n, key := range keys {
		i := d.rows + n
		xmlID := fmt.Sprintf("frmPrincipal:tablaCompRecibidos:%d:lnkXml", i)
		pdfID := fmt.Sprintf("frmPrincipal:tablaCompRecibidos:%d:lnkPdf", i)
		fmt.Fprintf(&rows, `<tr data-ri="%d" class="ui-widget-content">
<td>15/01/2025</td>
<td>Factura 001-001-%s</td>
<td>%s - PROVEEDOR UNO S.A.</td>
<td>1.234,56</td>
<td>%s</td>
<td><a id="%s" href="#">XML</a> <a id="%s" href="#">RIDE</a></td>
</tr>`, i, key[30:39], testRUC, key, xmlID, pdfID)

		l := listing{key: key, xml: fmt.Sprintf(`[id="%s"]`, xmlID), pdf: fmt.Sprintf(`[id="%s"]`, pdfID)}
		d.files[l.xml] = []byte(`<?xml version="1.0" encoding="UTF-8"?><autorizacion><numeroAutorizacion>` + key + `</numeroAutorizacion></autorizacion>`)
		d.files[l.pdf] = []byte("%PDF-1.4 ride " + key)
		out = append(out, l)
	}
	d.rows += len(keys)

	d.tableHTML = `<table role="grid"><thead><tr>
<th>Fecha de emisión</th><th>Tipo y serie de comprobante</th><th>RUC y razón social emisor</th>
<th>Importe total</th><th>Clave de acceso</th><th>Descargas</th>
</tr></thead><tbody>` + rows.String() + `</tbody></table>`
	return out
}

// withNextPage puts keys on a second results page reached through the
// paginator, keeping the current table as the first page.
func (d *portalDriver) withNextPage(keys ...string) []listing {
	first := d.tableHTML
	out := d.withResults(keys...)
	d.nextTable, d.tableHTML = d.tableHTML, first
	return out
}

// testAccessKey builds a valid access key with the given 9-digit sequence.
func testAccessKey(seq int) string {
	base := "15012025" + "01" + testRUC + "2" + "001001" + fmt.Sprintf("%09d", seq) + "12345678" + "1"
	return base + strconv.Itoa(utils.AccessKeyCheckDigit(base))
}

type fakeSolver struct {
	mu      sync.Mutex
	submits int
	result  captcha.PollResult
	siteKey string
	pageURL string
}

func (f *fakeSolver) Submit(_ context.Context, siteKey, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.siteKey, f.pageURL = siteKey, pageURL
	return "job-" + strconv.Itoa(f.submits), nil
}

func (f *fakeSolver) Poll(context.Context, string) (captcha.PollResult, error) {
	return f.result, nil
}

type fakeCredentials struct {
	creds map[string]*models.Credentials
}

func (f *fakeCredentials) GetDecrypted(_ context.Context, taxID string) (*models.Credentials, error) {
	c, ok := f.creds[taxID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

type memObjects struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (m *memObjects) Save(_ context.Context, data []byte, filename, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	key := "files/" + ownerID + "/2025/" + filename
	m.saved[key] = data
	return key, nil
}

func (m *memObjects) PublicURL(key string) string { return "https://storage.example.com/" + key }

func testCredentials(password string) *models.Credentials {
	return &models.Credentials{
		Username: testRUC,
		Password: password,
		OwnerID:  testRUC,
		Taxpayer: models.Taxpayer{RUC: testRUC, CompanyUUID: "company-1", Name: "ACME"},
	}
}

// acceptAnyDocument skips content validation for the simulated files.
func acceptAnyDocument(models.DocumentType, []byte) error { return nil }

func testSource() (behavior.Source, *behavior.RecordingClock) {
	clock := behavior.NewRecordingClock(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))
	return behavior.Source{Rand: behavior.FixedRand{Float: 0.5, Int: 1}, Clock: clock}, clock
}

func testOptions() Options {
	return Options{
		LoginURL:         "https://portal.test/inicio",
		MaxAttempts:      10,
		LoginStepRetries: 1,
		NavigateRetries:  2,
		DownloadRetries:  2,
		MaxPages:         3,
	}
}

// harness wires a Runner to in-memory collaborators and one portal driver.
type harness struct {
	t       *testing.T
	driver  *portalDriver
	mem     *store.Memory
	objects *memObjects
	solver  *fakeSolver
	clock   *behavior.RecordingClock
	opts    Options
	runs    int
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:       t,
		driver:  newPortalDriver(),
		mem:     store.NewMemory(),
		objects: &memObjects{},
		solver:  &fakeSolver{result: captcha.PollResult{Status: captcha.Ready, Token: "solver-token"}},
		opts:    testOptions(),
	}
}

func (h *harness) runner(password string) *Runner {
	return NewRunner(RunnerDeps{
		Credentials: &fakeCredentials{creds: map[string]*models.Credentials{testRUC: testCredentials(password)}},
		Invoices:    h.mem,
		Documents:   h.mem.Documents(),
		Objects:     h.objects,
		Solver:      h.solver,
		Browsers: func(context.Context) (browser.Driver, error) {
			h.runs++
			return h.driver, nil
		},
		NewSource: func() behavior.Source {
			src, clock := testSource()
			h.clock = clock
			return src
		},
		Validate: acceptAnyDocument,
	}, h.opts, logger.Discard())
}

// session opens a session on the harness driver outside a Runner.
func (h *harness) session() *Session {
	src, clock := testSource()
	h.clock = clock
	run := NewRunContext(logger.Discard(), testRUC, clock.Now())
	return NewSession(h.driver, src, h.opts, h.solver, run)
}
