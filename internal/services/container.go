package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexconsult/sri-invoices/internal/automation"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/captcha"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/credentials"
	"github.com/nexconsult/sri-invoices/internal/objectstore"
	"github.com/nexconsult/sri-invoices/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// healthTimeout bounds each dependency ping
const healthTimeout = 5 * time.Second

// Store is what the container needs from the persistence layer
type Store interface {
	CompanyStore
	automation.InvoiceStore
}

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	database    *store.GormStore
	cancel      context.CancelFunc

	Store           Store
	Documents       automation.DocumentStore
	Objects         objectstore.Store
	Solver          *captcha.SolveCaptchaClient
	Cipher          *credentials.Cipher
	CacheService    *CacheService
	BrowserService  *BrowserService
	CompanyService  *CompanyService
	DownloadService DownloadServiceInterface
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	ctx, cancel := context.WithCancel(context.Background())
	container := &Container{
		config: cfg,
		logger: logger,
		cancel: cancel,
	}

	// Initialize Redis client
	container.initRedis(ctx)

	// Initialize persistence
	container.initStore()

	// Initialize services
	if err := container.initServices(ctx); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis initializes Redis client
func (c *Container) initRedis(ctx context.Context) {
	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, run locks and statuses are process-local")
		c.redisClient.Close()
		c.redisClient = nil
	} else {
		c.logger.Info("Redis connection established")
	}
}

// initStore connects MySQL, falling back to in-memory stores
func (c *Container) initStore() {
	db, err := store.OpenMySQL(c.config.Database, c.logger)
	if err != nil {
		c.logger.WithError(err).Warn("MySQL connection failed, using in-memory stores")
		mem := store.NewMemory()
		c.Store = mem
		c.Documents = mem.Documents()
		return
	}
	c.database = db
	c.Store = db
	c.Documents = db.Documents()
}

// initServices initializes all services
func (c *Container) initServices(ctx context.Context) error {
	objects, err := objectstore.New(ctx, c.config.Storage, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	c.Objects = objects

	c.Cipher, err = credentials.NewCipher(c.config.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credentials cipher: %w", err)
	}

	// A nil interface disables the solver fallback
	var solver captcha.ExternalSolver
	c.Solver = captcha.NewSolveCaptchaClient(c.config.Solver, c.logger)
	if c.Solver.Configured() {
		solver = c.Solver
	} else {
		c.logger.Warn("SOLVE_CAPTCHA_API_KEY not set, external solver fallback disabled")
	}

	c.CompanyService = NewCompanyService(c.Store, c.Cipher, c.logger)

	c.CacheService = NewCacheService(c.redisClient, c.config.Portal.StatusTTL, c.logger)
	c.CacheService.StartCleanupRoutine(ctx)

	c.BrowserService = NewBrowserService(browser.NewFactory(c.config.Browser, c.logger), c.logger)

	runner := automation.NewRunner(automation.RunnerDeps{
		Credentials: credentials.NewProvider(c.Store, c.Cipher, c.logger),
		Invoices:    c.Store,
		Documents:   c.Documents,
		Objects:     c.Objects,
		Solver:      solver,
		Browsers:    c.BrowserService.Launch,
	}, automation.OptionsFromConfig(c.config), c.logger)

	c.DownloadService = NewDownloadService(runner, c.CacheService, c.Store, c.config.Portal, c.logger)
	return nil
}

// Close closes all service connections
func (c *Container) Close() error {
	var errors []error

	if c.cancel != nil {
		c.cancel()
	}

	// Stop runs before closing what they use
	if c.DownloadService != nil {
		if err := c.DownloadService.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close download service: %w", err))
		}
	}

	if c.BrowserService != nil {
		if err := c.BrowserService.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close browser service: %w", err))
		}
	}

	if c.Objects != nil {
		if err := c.Objects.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close object store: %w", err))
		}
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close MySQL: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	// Return combined errors if any
	if len(errors) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errors)
	}

	return nil
}

// Health checks the health of all services concurrently
func (c *Container) Health() map[string]interface{} {
	health := make(map[string]interface{})
	var mu sync.Mutex
	set := func(name string, value map[string]interface{}) {
		mu.Lock()
		health[name] = value
		mu.Unlock()
	}

	var g errgroup.Group

	g.Go(func() error {
		if c.redisClient == nil {
			set("redis", map[string]interface{}{"status": "disabled"})
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		set("redis", timedPing(func() error { return c.redisClient.Ping(ctx).Err() }))
		return nil
	})

	g.Go(func() error {
		if c.database == nil {
			set("database", map[string]interface{}{"status": "degraded", "error": "using in-memory stores"})
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		set("database", timedPing(func() error { return c.database.Ping(ctx) }))
		return nil
	})

	g.Go(func() error {
		if c.Objects == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		set("storage", timedPing(func() error { return c.Objects.Ping(ctx) }))
		return nil
	})

	g.Go(func() error {
		if c.Solver == nil {
			return nil
		}
		solver := map[string]interface{}{"status": "healthy", "stats": c.Solver.GetStats()}
		switch {
		case !c.Solver.Configured():
			solver["status"] = "disabled"
		case !c.Solver.IsHealthy():
			solver["status"] = "degraded"
		}
		set("solver", solver)
		return nil
	})

	if c.BrowserService != nil {
		g.Go(func() error {
			set("browser", c.BrowserService.Health())
			return nil
		})
	}

	if c.DownloadService != nil {
		g.Go(func() error {
			set("downloads", c.DownloadService.Health())
			return nil
		})
	}

	_ = g.Wait()
	return health
}

// timedPing turns a ping into a health entry with its latency
func timedPing(ping func() error) map[string]interface{} {
	start := time.Now()
	err := ping()
	entry := map[string]interface{}{
		"status":           "healthy",
		"response_time_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry["status"] = "unhealthy"
		entry["error"] = err.Error()
	}
	return entry
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}

// Stats returns usage counters of the browser, the solver and the runs
func (c *Container) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	if c.BrowserService != nil {
		stats["browser"] = c.BrowserService.GetStats()
	}
	if c.Solver != nil {
		stats["solver"] = c.Solver.GetStats()
	}
	if c.DownloadService != nil {
		stats["downloads"] = c.DownloadService.Health()
	}
	return stats
}
