package automation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_ReachesSearchScreen(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	defer s.Close()

	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	assert.True(t, s.Authenticated())
	assert.Equal(t, StateSearchScreenReady, s.State())
	assert.Equal(t, testRUC, s.Taxpayer().RUC)
	assert.Equal(t, testRUC, h.driver.values[selUsername])
	assert.Equal(t, testPassword, h.driver.values[selPassword])

	var states []string
	for _, e := range s.run.Events() {
		if e.Kind == "login_state" {
			states = append(states, e.Detail)
		}
	}
	assert.Equal(t, []string{
		string(StatePortalLoaded),
		string(StateLoginFormVisible),
		string(StateCredentialsSubmitted),
		string(StateMenuExpanded),
		string(StateSearchScreenReady),
	}, states)
}

func TestLogin_InvalidCredentialsIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.opts.ScreenshotDir = t.TempDir()
	s := h.session()
	defer s.Close()

	err := s.Login(context.Background(), testCredentials("wrong"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	op, ok := AsOperationFailed(err)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeLoginFailed, op.Outcome)
	assert.Equal(t, string(StateCredentialsSubmitted), op.State)
	assert.NotEmpty(t, op.Screenshot)
	_, statErr := os.Stat(op.Screenshot)
	assert.NoError(t, statErr)

	assert.False(t, s.Authenticated())
	assert.Equal(t, StateFailed, s.State())
}

func TestLogin_NavigationFailureIsNetworkError(t *testing.T) {
	h := newHarness(t)
	h.driver.navigateErr = errors.New("net::ERR_CONNECTION_RESET")
	s := h.session()

	err := s.Login(context.Background(), testCredentials(testPassword))
	require.Error(t, err)

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
	op, ok := AsOperationFailed(err)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeFailed, op.Outcome)
	assert.Equal(t, 3, h.driver.navigations)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, h.driver.closes)
}

func TestLogin_StepTimeoutNamesElement(t *testing.T) {
	h := newHarness(t)
	h.opts.ScreenshotDir = t.TempDir()
	h.opts.StepTimeout = 5 * time.Second
	h.driver.hidden[selUsername] = true
	s := h.session()

	err := s.Login(context.Background(), testCredentials(testPassword))
	require.Error(t, err)

	var ui *TransientUIError
	require.ErrorAs(t, err, &ui)
	assert.Equal(t, selUsername, ui.Element)
	assert.Equal(t, StatePortalLoaded, ui.State)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	op, ok := AsOperationFailed(err)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeLoginFailed, op.Outcome)
	assert.Equal(t, string(StatePortalLoaded), op.State)
	assert.Equal(t, ui.Screenshot, op.Screenshot)
	_, statErr := os.Stat(op.Screenshot)
	assert.NoError(t, statErr)

	// The step ran once plus LoginStepRetries times
	assert.Equal(t, h.opts.LoginStepRetries+1, h.driver.clickCount(selLoginLink))
	assert.Equal(t, 1, h.driver.navigations)
	assert.Empty(t, h.driver.values[selPassword])
	assert.Equal(t, StateFailed, s.State())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, h.driver.closes)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	for i := 0; i < 3; i++ {
		assert.NoError(t, s.Close())
	}
	assert.Equal(t, 1, h.driver.closes)
	assert.False(t, s.Authenticated())
}

func TestSubmitWithRetry_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	defer s.Close()

	_, err := s.SubmitWithRetry(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, 0, h.driver.searchClicks)
}

func TestSubmitWithRetry_AcceptedOnFourthAttempt(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 4
	s := h.session()
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	rs, err := s.SubmitWithRetry(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetrySuccess, rs.Outcome)
	assert.Equal(t, 4, rs.Attempts)
	assert.False(t, rs.SolverInvoked)
	assert.Equal(t, 0, h.solver.submits)
	assert.Equal(t, 4, h.driver.searchClicks)

	require.Len(t, rs.History, 4)
	for i, rec := range rs.History {
		assert.Equal(t, i+1, rec.Attempt)
		assert.Equal(t, behavior.ForAttempt(i+1).Name, rec.Profile)
	}
	assert.Equal(t, "rejected", rs.History[0].Verdict)
	assert.Equal(t, "accepted", rs.History[3].Verdict)
	assert.Equal(t, 4, s.run.Count("submit"))
}

func TestSubmitWithRetry_SolverFallbackAfterExhaustion(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptToken = true
	s := h.session()
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	rs, err := s.SubmitWithRetry(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetrySuccess, rs.Outcome)
	assert.Equal(t, 10, rs.Attempts)
	assert.True(t, rs.SolverInvoked)
	assert.True(t, rs.ViaSolver)
	assert.Equal(t, 1, rs.SolverSubmissions)
	assert.Equal(t, 1, h.solver.submits)
	assert.Equal(t, testSiteKey, h.solver.siteKey)
	assert.Equal(t, testPageURL, h.solver.pageURL)
	assert.Equal(t, 11, h.driver.searchClicks)

	require.Len(t, rs.History, 11)
	viaSolver := 0
	for _, rec := range rs.History {
		assert.LessOrEqual(t, rec.Attempt, 10)
		if rec.ViaSolver {
			viaSolver++
		}
	}
	assert.Equal(t, 1, viaSolver)
	assert.True(t, rs.History[10].ViaSolver)
}

func TestSubmitWithRetry_ExhaustedWhenSolverFails(t *testing.T) {
	h := newHarness(t)
	h.solver.result = captcha.PollResult{Status: captcha.Failed, Reason: "ERROR_CAPTCHA_UNSOLVABLE"}
	s := h.session()
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	rs, err := s.SubmitWithRetry(context.Background(), 3)
	require.Error(t, err)

	assert.Equal(t, RetryExhausted, rs.Outcome)
	assert.Equal(t, 3, rs.Attempts)
	assert.Equal(t, 1, h.solver.submits)
	assert.Equal(t, 3, h.driver.searchClicks)

	op, ok := AsOperationFailed(err)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeChallengeExhausted, op.Outcome)
	assert.True(t, op.LocalRetriesExhausted)
	assert.Equal(t, 3, op.Attempts)
	assert.ErrorIs(t, err, captcha.ErrUnsolvable)

	var rejected *ChallengeRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Captcha incorrecta", rejected.Message)
}

func TestSubmitWithRetry_SilentPageIsNotSuccess(t *testing.T) {
	h := newHarness(t)
	h.driver.silent = true
	s := h.session()
	s.solver = nil
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	rs, err := s.SubmitWithRetry(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, RetryExhausted, rs.Outcome)
	assert.Equal(t, "unknown", rs.History[0].Verdict)

	op, ok := AsOperationFailed(err)
	require.True(t, ok)
	var solverErr *SolverFailureError
	assert.ErrorAs(t, op.SolverErr, &solverErr)
}

func TestSubmitWithRetry_Cancelled(t *testing.T) {
	h := newHarness(t)
	s := h.session()
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SubmitWithRetry(ctx, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.solver.submits)
}

func TestSubmitWithRetry_MissedClickConsumesAttempt(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	s := h.session()
	defer s.Close()
	require.NoError(t, s.Login(context.Background(), testCredentials(testPassword)))
	h.driver.boxFailures[selSearchButton] = 1

	rs, err := s.SubmitWithRetry(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, RetrySuccess, rs.Outcome)
	assert.Equal(t, 2, rs.Attempts)
	assert.Equal(t, 1, h.driver.searchClicks)
	require.Len(t, rs.History, 2)
	assert.Equal(t, "unknown", rs.History[0].Verdict)
	assert.Contains(t, rs.History[0].Message, selSearchButton)
	assert.Equal(t, "accepted", rs.History[1].Verdict)
}

func TestRunDownload_FullRunStoresEveryDocument(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	listings := h.driver.withResults(testAccessKey(1), testAccessKey(2))

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.UsedSolver)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Processed, 2)
	for _, p := range res.Processed {
		assert.Equal(t, models.RecordNewlyDownloaded, p.Status)
		assert.ElementsMatch(t, models.DocumentTypes, p.Downloaded)
	}
	assert.Equal(t, 4, h.mem.DocumentCount())
	assert.Len(t, h.objects.saved, 4)
	assert.Equal(t, 1, h.driver.closes)

	inv, err := h.mem.FindByNumber(context.Background(), listings[0].key)
	require.NoError(t, err)
	assert.Equal(t, "company-1", inv.CompanyUUID)
	assert.Equal(t, "001-001-000000001", inv.Series)
	assert.InDelta(t, 1234.56, inv.Amount, 0.001)

	doc, err := h.mem.Documents().FindByInvoiceAndType(context.Background(), listings[0].key, models.DocumentPDF)
	require.NoError(t, err)
	assert.Equal(t, "files/"+testRUC+"/2025/"+listings[0].key+".pdf", doc.StorageKey)
	assert.Equal(t, inv.UUID, doc.InvoiceUUID)
}

func TestRunDownload_UsesRunIDFromContext(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	h.driver.withResults(testAccessKey(1))

	ctx := WithRunID(context.Background(), "run-42")
	res, err := h.runner(testPassword).RunDownload(ctx, testRUC, nil, models.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)

	other := newHarness(t)
	res, err = other.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeLogin)
	require.NoError(t, err)
	assert.NotEqual(t, "run-42", res.RunID)
	assert.NotEmpty(t, res.RunID)
}

func TestRunDownload_OnlyMissingDocumentsAreFetched(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	listings := h.driver.withResults(testAccessKey(7))
	l := listings[0]

	require.NoError(t, h.mem.Documents().Create(context.Background(), &models.DocumentArtifact{
		UUID:      "existing-xml",
		AccessKey: l.key,
		Type:      models.DocumentXML,
	}))

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, 0, h.driver.downloadCount(l.xml))
	assert.Equal(t, 1, h.driver.downloadCount(l.pdf))
	require.Len(t, res.Processed, 1)
	assert.Equal(t, []models.DocumentType{models.DocumentXML}, res.Processed[0].Present)
	assert.Equal(t, []models.DocumentType{models.DocumentPDF}, res.Processed[0].Downloaded)
	assert.Equal(t, models.RecordNewlyDownloaded, res.Processed[0].Status)
}

func TestRunDownload_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	listings := h.driver.withResults(testAccessKey(1), testAccessKey(2), testAccessKey(3))
	r := h.runner(testPassword)

	_, err := r.RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 6, h.mem.DocumentCount())

	res, err := r.RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, 6, h.mem.DocumentCount())
	for _, p := range res.Processed {
		assert.Equal(t, models.RecordAlreadyPresent, p.Status)
		assert.Empty(t, p.Downloaded)
	}
	for _, l := range listings {
		assert.Equal(t, 1, h.driver.downloadCount(l.xml))
		assert.Equal(t, 1, h.driver.downloadCount(l.pdf))
	}
	assert.Equal(t, 2, h.runs)
}

func TestRunDownload_DocumentFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.opts.ScreenshotDir = t.TempDir()
	h.driver.acceptOn = 1
	listings := h.driver.withResults(testAccessKey(1), testAccessKey(2))
	h.driver.failures[listings[1].pdf] = 10

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomePartial, res.Outcome)
	assert.NotEmpty(t, res.Screenshot)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, listings[1].key, res.Failures[0].AccessKey)
	assert.Equal(t, models.DocumentPDF, res.Failures[0].DocumentType)
	assert.Equal(t, "download", res.Failures[0].Stage)
	assert.Equal(t, 3, h.driver.downloadCount(listings[1].pdf))

	require.Len(t, res.Processed, 2)
	assert.Equal(t, models.RecordNewlyDownloaded, res.Processed[0].Status)
	assert.Equal(t, models.RecordPartiallyFailed, res.Processed[1].Status)
	assert.Equal(t, 1, res.MissingDocuments())
	assert.Equal(t, 3, h.mem.DocumentCount())
}

func TestRunDownload_TransientDownloadFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	listings := h.driver.withResults(testAccessKey(1))
	h.driver.failures[listings[0].xml] = 1

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, h.driver.downloadCount(listings[0].xml))
	assert.Equal(t, 2, h.mem.DocumentCount())
}

func TestRunDownload_SolverScenario(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptToken = true
	h.driver.withResults(testAccessKey(1))

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 10, res.Attempts)
	assert.True(t, res.UsedSolver)
	assert.Equal(t, 1, h.solver.submits)
	assert.Len(t, res.Processed, 1)
}

func TestRunDownload_NoCredentials(t *testing.T) {
	h := newHarness(t)
	r := h.runner(testPassword)

	res, err := r.RunDownload(context.Background(), "0990017514001", nil, models.ModeFull)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, models.OutcomeNoSession, res.Outcome)
	assert.Equal(t, 0, h.runs)
	assert.NotEmpty(t, res.Error)
}

func TestRunDownload_LoginFailureClosesBrowser(t *testing.T) {
	h := newHarness(t)

	res, err := h.runner("wrong").RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.Error(t, err)
	assert.Equal(t, models.OutcomeLoginFailed, res.Outcome)
	assert.Equal(t, 1, h.driver.closes)
	assert.Equal(t, 0, h.driver.searchClicks)
}

func TestRunDownload_ChallengeExhausted(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxAttempts = 2
	h.solver.result = captcha.PollResult{Status: captcha.Failed, Reason: "ERROR_CAPTCHA_UNSOLVABLE"}

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeFull)
	require.Error(t, err)
	assert.Equal(t, models.OutcomeChallengeExhausted, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.UsedSolver)
	assert.Equal(t, 1, h.driver.closes)
}

func TestRunDownload_LoginMode(t *testing.T) {
	h := newHarness(t)

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeLogin)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.ModeLogin, res.Mode)
	assert.Equal(t, 0, h.driver.searchClicks)
}

func TestRunDownload_DownloadModeNeedsSession(t *testing.T) {
	h := newHarness(t)

	res, err := h.runner(testPassword).RunDownload(context.Background(), testRUC, nil, models.ModeDownload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, 0, h.runs)
}

func TestSession_DownloadOnAuthenticatedSession(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	h.driver.withResults(testAccessKey(4))
	s := h.session()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Execute(ctx, models.ModeLogin, testCredentials(testPassword), nil, nil)
	require.NoError(t, err)

	src, _ := testSource()
	pipeline := NewPipeline(h.mem, h.mem.Documents(), h.objects, src, 0, s.logger)
	pipeline.Validate = acceptAnyDocument

	report, err := s.Execute(ctx, models.ModeDownload, nil, nil, pipeline)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Len(t, report.Processed, 1)
	assert.Equal(t, "0", h.driver.values[selDay])
}

func TestSession_DownloadFollowsPagination(t *testing.T) {
	h := newHarness(t)
	h.driver.acceptOn = 1
	first := h.driver.withResults(testAccessKey(1), testAccessKey(2))
	second := h.driver.withNextPage(testAccessKey(3))
	s := h.session()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Execute(ctx, models.ModeLogin, testCredentials(testPassword), nil, nil)
	require.NoError(t, err)

	src, _ := testSource()
	pipeline := NewPipeline(h.mem, h.mem.Documents(), h.objects, src, 0, s.logger)
	pipeline.Validate = acceptAnyDocument

	report, err := s.Execute(ctx, models.ModeDownload, nil, nil, pipeline)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Len(t, report.Processed, 3)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, h.driver.clickCount(selNextPage))

	for _, l := range append(first, second...) {
		assert.Equal(t, 1, h.driver.downloadCount(l.xml), l.key)
		assert.Equal(t, 1, h.driver.downloadCount(l.pdf), l.key)
	}
}

func TestSession_DownloadStopsAtMaxPages(t *testing.T) {
	h := newHarness(t)
	h.opts.MaxPages = 1
	h.driver.acceptOn = 1
	h.driver.withResults(testAccessKey(1))
	second := h.driver.withNextPage(testAccessKey(2))
	s := h.session()
	defer s.Close()
	ctx := context.Background()

	_, err := s.Execute(ctx, models.ModeLogin, testCredentials(testPassword), nil, nil)
	require.NoError(t, err)

	src, _ := testSource()
	pipeline := NewPipeline(h.mem, h.mem.Documents(), h.objects, src, 0, s.logger)
	pipeline.Validate = acceptAnyDocument

	report, err := s.Execute(ctx, models.ModeDownload, nil, nil, pipeline)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Len(t, report.Processed, 1)
	assert.Equal(t, 0, h.driver.clickCount(selNextPage))
	assert.Equal(t, 0, h.driver.downloadCount(second[0].xml))
}
