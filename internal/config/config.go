package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Portal   PortalConfig   `json:"portal"`
	Solver   SolverConfig   `json:"solver"`
	Browser  BrowserConfig  `json:"browser"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// DatabaseConfig holds MySQL configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN builds the go-sql-driver/mysql data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// PortalConfig holds the tax portal automation settings
type PortalConfig struct {
	LoginURL         string        `json:"login_url"`
	MaxAttempts      int           `json:"max_attempts"`
	StepTimeout      time.Duration `json:"step_timeout"`
	ResultsTimeout   time.Duration `json:"results_timeout"`
	PollInterval     time.Duration `json:"poll_interval"`
	LoginStepRetries int           `json:"login_step_retries"`
	NavigateRetries  int           `json:"navigate_retries"`
	DownloadRetries  int           `json:"download_retries"`
	DownloadTimeout  time.Duration `json:"download_timeout"`
	MaxPages         int           `json:"max_pages"`
	RunTimeout       time.Duration `json:"run_timeout"`
	CompanyPause     time.Duration `json:"company_pause"`
	ScreenshotDir    string        `json:"screenshot_dir"`
	StatusTTL        time.Duration `json:"status_ttl"`
}

// SolverConfig holds the external captcha solver configuration
type SolverConfig struct {
	APIKey       string        `json:"-"`
	BaseURL      string        `json:"base_url"`
	PollInterval time.Duration `json:"poll_interval"`
	Timeout      time.Duration `json:"timeout"`
	RequestsPerS float64       `json:"requests_per_second"`
	HTTPTimeout  time.Duration `json:"http_timeout"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless       bool          `json:"headless"`
	UserAgent      string        `json:"user_agent"`
	WindowWidth    int           `json:"window_width"`
	WindowHeight   int           `json:"window_height"`
	StartupTimeout time.Duration `json:"startup_timeout"`
	ExecPath       string        `json:"exec_path"`
	DownloadDir    string        `json:"download_dir"`
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Bucket        string `json:"bucket"`
	PublicBaseURL string `json:"public_base_url"`
	LocalDir      string `json:"local_dir"`
	Prefix        string `json:"prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit     RateLimitConfig `json:"rate_limit"`
	CORS          CORSConfig      `json:"cors"`
	APIKey        string          `json:"-"`
	EncryptionKey string          `json:"-"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 3306),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "sri_invoices"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  time.Duration(getEnvAsInt("REDIS_DIAL_TIMEOUT", 5)) * time.Second,
			ReadTimeout:  time.Duration(getEnvAsInt("REDIS_READ_TIMEOUT", 3)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("REDIS_WRITE_TIMEOUT", 3)) * time.Second,
		},
		Portal: PortalConfig{
			LoginURL:         getEnv("SRI_LOGIN_URL", "https://srienlinea.sri.gob.ec/sri-en-linea/inicio/NAT"),
			MaxAttempts:      getEnvAsInt("SRI_MAX_ATTEMPTS", 10),
			StepTimeout:      getEnvAsDuration("SRI_STEP_TIMEOUT", 30*time.Second),
			ResultsTimeout:   getEnvAsDuration("RESULTS_WAIT_TIMEOUT", 15*time.Second),
			PollInterval:     getEnvAsDuration("POLL_INTERVAL", 500*time.Millisecond),
			LoginStepRetries: getEnvAsInt("LOGIN_STEP_RETRIES", 2),
			NavigateRetries:  getEnvAsInt("NAVIGATE_RETRIES", 2),
			DownloadRetries:  getEnvAsInt("DOWNLOAD_RETRIES", 2),
			DownloadTimeout:  getEnvAsDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
			MaxPages:         getEnvAsInt("SRI_MAX_PAGES", 20),
			RunTimeout:       getEnvAsDuration("RUN_TIMEOUT", 30*time.Minute),
			CompanyPause:     getEnvAsDuration("COMPANY_PAUSE", 60*time.Second),
			ScreenshotDir:    getEnv("SCREENSHOT_DIR", "screenshots"),
			StatusTTL:        getEnvAsDuration("RUN_STATUS_TTL", 24*time.Hour),
		},
		Solver: SolverConfig{
			APIKey:       getEnv("SOLVE_CAPTCHA_API_KEY", ""),
			BaseURL:      getEnv("SOLVE_CAPTCHA_BASE_URL", "https://api.solvecaptcha.com"),
			PollInterval: getEnvAsDuration("SOLVE_CAPTCHA_POLL_INTERVAL", 5*time.Second),
			Timeout:      getEnvAsDuration("SOLVE_CAPTCHA_TIMEOUT", 180*time.Second),
			RequestsPerS: getEnvAsFloat("SOLVE_CAPTCHA_RPS", 1),
			HTTPTimeout:  getEnvAsDuration("SOLVE_CAPTCHA_HTTP_TIMEOUT", 30*time.Second),
		},
		Browser: BrowserConfig{
			Headless:       getEnvAsBool("BROWSER_HEADLESS", true),
			UserAgent:      getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			WindowWidth:    getEnvAsInt("BROWSER_WIDTH", 1366),
			WindowHeight:   getEnvAsInt("BROWSER_HEIGHT", 768),
			StartupTimeout: getEnvAsDuration("BROWSER_STARTUP_TIMEOUT", 30*time.Second),
			ExecPath:       getEnv("BROWSER_EXEC_PATH", ""),
			DownloadDir:    getEnv("BROWSER_DOWNLOAD_DIR", ""),
		},
		Storage: StorageConfig{
			Bucket:        getEnv("GCS_BUCKET", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "data"),
			Prefix:        getEnv("STORAGE_PREFIX", "files"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 30),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 5),
				CleanupInterval:   time.Duration(getEnvAsInt("RATE_LIMIT_CLEANUP", 60)) * time.Second,
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
			APIKey:        getEnv("API_KEY", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and bounds
func (c *Config) Validate() error {
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.Portal.MaxAttempts < 1 {
		return fmt.Errorf("SRI_MAX_ATTEMPTS must be at least 1, got %d", c.Portal.MaxAttempts)
	}
	if c.Portal.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Portal.ResultsTimeout < c.Portal.PollInterval {
		return fmt.Errorf("RESULTS_WAIT_TIMEOUT must not be shorter than POLL_INTERVAL")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
