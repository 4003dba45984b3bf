package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexconsult/sri-invoices/internal/automation"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/credentials"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/objectstore"
	"github.com/nexconsult/sri-invoices/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rucA = "1790011674001"
	rucB = "0990017514001"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCacheService_LockIsExclusivePerOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewCacheService(client, time.Hour, logger.Discard())

	ok, err := c.AcquireLock(ctx, rucA, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AcquireLock(ctx, rucA, "run-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.AcquireLock(ctx, rucB, "run-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per taxpayer")

	// Another owner cannot release it
	require.NoError(t, c.ReleaseLock(ctx, rucA, "run-2"))
	assert.True(t, mr.Exists(lockKeyPrefix+rucA))

	require.NoError(t, c.ReleaseLock(ctx, rucA, "run-1"))
	assert.False(t, mr.Exists(lockKeyPrefix+rucA))

	ok, err = c.AcquireLock(ctx, rucA, "run-3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheService_LockExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewCacheService(client, time.Hour, logger.Discard())

	ok, err := c.AcquireLock(ctx, rucA, "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = c.AcquireLock(ctx, rucA, "run-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheService_Status(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewCacheService(client, time.Hour, logger.Discard())

	_, err := c.GetStatus(ctx, rucA)
	assert.ErrorIs(t, err, ErrStatusNotFound)

	want := &models.RunStatus{
		RunID:     "run-1",
		RUC:       rucA,
		State:     models.RunFinished,
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Result:    &models.RunResult{RunID: "run-1", RUC: rucA, Outcome: models.OutcomePartial, Attempts: 3},
	}
	require.NoError(t, c.SetStatus(ctx, want))

	got, err := c.GetStatus(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.RunFinished, got.State)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	require.NotNil(t, got.Result)
	assert.Equal(t, models.OutcomePartial, got.Result.Outcome)
	assert.Equal(t, 3, got.Result.Attempts)

	assert.Equal(t, time.Hour, mr.TTL(statusKeyPrefix+rucA))
}

func TestCacheService_MemoryFallback(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCacheService(nil, time.Hour, logger.Discard())
	c.now = func() time.Time { return now }

	ok, err := c.AcquireLock(ctx, rucA, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.AcquireLock(ctx, rucA, "run-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = c.AcquireLock(ctx, rucA, "run-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired memory lock is taken over")

	require.NoError(t, c.SetStatus(ctx, &models.RunStatus{RunID: "run-2", RUC: rucA, State: models.RunRunning}))
	got, err := c.GetStatus(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, got.State)

	now = now.Add(2 * time.Hour)
	_, err = c.GetStatus(ctx, rucA)
	assert.ErrorIs(t, err, ErrStatusNotFound)

	health := c.Health()
	assert.Equal(t, "degraded", health["status"])
}

func TestCacheService_FallsBackWhenRedisGoesAway(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewCacheService(client, time.Hour, logger.Discard())
	mr.Close()

	ok, err := c.AcquireLock(ctx, rucA, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.SetStatus(ctx, &models.RunStatus{RunID: "run-1", RUC: rucA, State: models.RunQueued}))
	got, err := c.GetStatus(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, got.State)
}

type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	runIDs    []string
	active    int
	maxActive int
	block     chan struct{}
	errs      map[string]error
}

func (f *fakeRunner) RunDownload(ctx context.Context, taxID string, _ *time.Time, mode models.RunMode) (*models.RunResult, error) {
	id, _ := automation.RunIDFrom(ctx)

	f.mu.Lock()
	f.calls = append(f.calls, taxID)
	f.runIDs = append(f.runIDs, id)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.active--
	err := f.errs[taxID]
	f.mu.Unlock()

	res := &models.RunResult{RunID: id, RUC: taxID, Mode: mode, Outcome: models.OutcomeSuccess}
	if err != nil {
		res.Outcome = models.OutcomeLoginFailed
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCompanies []models.Company

func (f fakeCompanies) ListCompanies(context.Context) ([]models.Company, error) {
	return f, nil
}

func newDownloadService(t *testing.T, runner *fakeRunner, companies CompanyLister) (*DownloadService, *CacheService) {
	t.Helper()
	_, client := newRedis(t)
	cache := NewCacheService(client, time.Hour, logger.Discard())
	cfg := config.PortalConfig{RunTimeout: time.Minute, CompanyPause: 60 * time.Second}
	svc := NewDownloadService(runner, cache, companies, cfg, logger.Discard())
	t.Cleanup(func() { svc.Close() })
	return svc, cache
}

func TestDownloadService_RunValidates(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := newDownloadService(t, runner, nil)
	ctx := context.Background()

	_, err := svc.Run(ctx, "123", nil, models.ModeFull)
	assert.ErrorIs(t, err, ErrInvalidRUC)

	_, err = svc.Run(ctx, rucA, nil, models.ModeDownload)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Run(ctx, rucA, nil, models.RunMode("everything"))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Start(ctx, models.DownloadRequest{RUC: rucA, StartDate: "01/02/2025"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, runner.callCount())
}

func TestParseStartDate(t *testing.T) {
	d, err := ParseStartDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseStartDate("2025-02-01")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *d)
}

func TestDownloadService_RunStoresStatusAndReleasesLock(t *testing.T) {
	runner := &fakeRunner{}
	svc, cache := newDownloadService(t, runner, nil)
	ctx := context.Background()

	res, err := svc.Run(ctx, "179.001.1674-001", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.ModeFull, res.Mode)
	assert.Equal(t, []string{rucA}, runner.calls)
	assert.NotEmpty(t, runner.runIDs[0])

	status, err := svc.Status(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.RunFinished, status.State)
	assert.Equal(t, runner.runIDs[0], status.RunID)
	require.NotNil(t, status.Result)
	assert.Equal(t, models.OutcomeSuccess, status.Result.Outcome)

	ok, err := cache.AcquireLock(ctx, rucA, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released after the run")
}

func TestDownloadService_RejectsConcurrentRunOfSameTaxpayer(t *testing.T) {
	runner := &fakeRunner{}
	svc, cache := newDownloadService(t, runner, nil)
	ctx := context.Background()

	ok, err := cache.AcquireLock(ctx, rucA, "another-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Run(ctx, rucA, nil, models.ModeFull)
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = svc.Start(ctx, models.DownloadRequest{RUC: rucA})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, 0, runner.callCount())
}

func TestDownloadService_FailedRunKeepsResult(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{rucA: errors.New("invalid credentials")}}
	svc, _ := newDownloadService(t, runner, nil)
	ctx := context.Background()

	res, err := svc.Run(ctx, rucA, nil, models.ModeFull)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, models.OutcomeLoginFailed, res.Outcome)

	status, err := svc.Status(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLoginFailed, status.Result.Outcome)
	assert.Equal(t, "invalid credentials", status.Result.Error)
}

func TestDownloadService_StartRunsOneBrowserAtATime(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	svc, _ := newDownloadService(t, runner, nil)
	ctx := context.Background()

	a, err := svc.Start(ctx, models.DownloadRequest{RUC: rucA, StartDate: "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, a.Status)
	assert.Equal(t, "/api/v1/invoices/runs/"+rucA, a.StatusURL)

	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)

	b, err := svc.Start(ctx, models.DownloadRequest{RUC: rucB})
	require.NoError(t, err)

	statusA, err := svc.Status(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, statusA.State)
	assert.Equal(t, a.RunID, statusA.RunID)

	statusB, err := svc.Status(ctx, rucB)
	require.NoError(t, err)
	assert.Equal(t, models.RunQueued, statusB.State)
	assert.Equal(t, 1, runner.callCount(), "second run waits for the browser slot")

	close(runner.block)

	require.Eventually(t, func() bool {
		s, err := svc.Status(ctx, rucB)
		return err == nil && s.State == models.RunFinished
	}, time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 1, runner.maxActive)
	assert.Equal(t, []string{a.RunID, b.RunID}, runner.runIDs)
}

func TestDownloadService_RunAllPausesBetweenCompaniesAndContinuesOnFailure(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{rucA: errors.New("portal down")}}
	companies := fakeCompanies{
		{UUID: "c-1", RUC: rucA, Name: "ACME"},
		{UUID: "c-2", RUC: "bad"},
		{UUID: "c-3", RUC: rucB, Name: "Beta"},
	}
	svc, _ := newDownloadService(t, runner, companies)

	var pauses []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	results, err := svc.RunAll(context.Background(), nil, models.ModeFull)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.OutcomeLoginFailed, results[0].Outcome)
	assert.Equal(t, models.OutcomeFailed, results[1].Outcome)
	assert.Equal(t, models.OutcomeSuccess, results[2].Outcome)
	assert.Equal(t, []string{rucA, rucB}, runner.calls)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, pauses)
}

func TestDownloadService_RunAllStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	svc, _ := newDownloadService(t, runner, fakeCompanies{{RUC: rucA}, {RUC: rucB}})
	svc.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	results, err := svc.RunAll(context.Background(), nil, models.ModeFull)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{rucA}, runner.calls)
}

func TestDownloadService_StatusUnknown(t *testing.T) {
	svc, _ := newDownloadService(t, &fakeRunner{}, nil)

	_, err := svc.Status(context.Background(), rucA)
	assert.ErrorIs(t, err, ErrStatusNotFound)

	_, err = svc.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvalidRUC)
}

type stubDriver struct {
	browser.Driver
	closes int
}

func (d *stubDriver) Close() error {
	d.closes++
	return nil
}

func TestBrowserService_TracksOpenBrowsers(t *testing.T) {
	var drivers []*stubDriver
	fail := false
	svc := NewBrowserService(func(context.Context) (browser.Driver, error) {
		if fail {
			return nil, errors.New("chrome not found")
		}
		d := &stubDriver{}
		drivers = append(drivers, d)
		return d, nil
	}, logger.Discard())

	first, err := svc.Launch(context.Background())
	require.NoError(t, err)
	_, err = svc.Launch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, svc.GetStats()["active"])

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())
	assert.Equal(t, 1, drivers[0].closes)
	assert.Equal(t, 1, svc.GetStats()["active"])

	fail = true
	_, err = svc.Launch(context.Background())
	require.Error(t, err)
	assert.Equal(t, "healthy", svc.Health()["status"])
	assert.Equal(t, int64(1), svc.GetStats()["failures"])

	require.NoError(t, svc.Close())
	assert.Equal(t, 1, drivers[1].closes)
	assert.Equal(t, 0, svc.GetStats()["active"])
	assert.Equal(t, "unhealthy", svc.Health()["status"])

	_, err = svc.Launch(context.Background())
	assert.Error(t, err)
}

func TestBrowserService_DegradedWhenEveryLaunchFails(t *testing.T) {
	svc := NewBrowserService(func(context.Context) (browser.Driver, error) {
		return nil, errors.New("chrome not found")
	}, logger.Discard())

	_, err := svc.Launch(context.Background())
	require.Error(t, err)
	assert.Equal(t, "degraded", svc.Health()["status"])
}

func TestContainer_Health(t *testing.T) {
	_, client := newRedis(t)
	local, err := objectstore.NewLocal(config.StorageConfig{LocalDir: t.TempDir(), Prefix: "files"}, logger.Discard())
	require.NoError(t, err)

	mem := store.NewMemory()
	c := &Container{
		logger:         logger.Discard(),
		redisClient:    client,
		Store:          mem,
		Documents:      mem.Documents(),
		Objects:        local,
		BrowserService: NewBrowserService(func(context.Context) (browser.Driver, error) { return &stubDriver{}, nil }, logger.Discard()),
	}
	c.DownloadService = NewDownloadService(&fakeRunner{}, NewCacheService(client, time.Hour, logger.Discard()), mem, config.PortalConfig{}, logger.Discard())

	health := c.Health()
	assert.Equal(t, "healthy", health["redis"].(map[string]interface{})["status"])
	assert.Equal(t, "degraded", health["database"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", health["storage"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", health["browser"].(map[string]interface{})["status"])
	assert.Equal(t, "healthy", health["downloads"].(map[string]interface{})["status"])
	assert.NotContains(t, health, "solver")

	require.NoError(t, c.Close())
}

func TestCompanyService(t *testing.T) {
	ctx := context.Background()
	cipher, err := credentials.NewCipher("secret")
	require.NoError(t, err)
	mem := store.NewMemory()
	svc := NewCompanyService(mem, cipher, logger.Discard())

	_, err = svc.Save(ctx, models.CompanyCredentialsRequest{CompanyName: "ACME", RUC: "123", Username: "u", Password: "p"})
	assert.ErrorIs(t, err, ErrInvalidRUC)
	_, err = svc.Save(ctx, models.CompanyCredentialsRequest{CompanyName: " ", RUC: rucA, Username: "u", Password: "p"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	created, err := svc.Save(ctx, models.CompanyCredentialsRequest{CompanyName: "ACME", RUC: rucA, Username: rucA, Password: "hunter2"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UUID)
	assert.NotContains(t, created.EncryptedPassword, "hunter2")

	plain, err := cipher.Decrypt(created.EncryptedPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	updated, err := svc.Save(ctx, models.CompanyCredentialsRequest{CompanyName: "ACME S.A.", RUC: rucA, Username: rucA, Password: "other"})
	require.NoError(t, err)
	assert.Equal(t, created.UUID, updated.UUID, "upsert keeps the uuid")

	changed, err := svc.UpdatePassword(ctx, rucA, "third")
	require.NoError(t, err)
	plain, err = cipher.Decrypt(changed.EncryptedPassword)
	require.NoError(t, err)
	assert.Equal(t, "third", plain)

	_, err = svc.UpdatePassword(ctx, rucB, "x")
	assert.ErrorIs(t, err, models.ErrNotFound)

	provider := credentials.NewProvider(mem, cipher, logger.Discard())
	creds, err := provider.GetDecrypted(ctx, rucA)
	require.NoError(t, err)
	assert.Equal(t, "third", creds.Password)
	assert.Equal(t, "ACME S.A.", creds.Taxpayer.Name)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, svc.Delete(ctx, rucA))
	assert.ErrorIs(t, svc.Delete(ctx, rucA), models.ErrNotFound)
}
