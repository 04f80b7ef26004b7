package config

import (
	"net/url"
	"path/filepath"
	"time"
	_ "time/tzdata" // cycle zone must resolve on images without zoneinfo

	"github.com/adrg/xdg"
)

// AppName is the application name used for XDG directory paths.
const AppName = "placerank"

// Search target defaults.
const (
	// DefaultSearchBaseURL is the mobile place search front end.
	DefaultSearchBaseURL = "https://m.place.naver.com"

	// DefaultBaseLongitude and DefaultBaseLatitude point at Seoul City Hall.
	// Every session jitters around this coordinate.
	DefaultBaseLongitude = 126.9783882
	DefaultBaseLatitude  = 37.5666103

	// DefaultJitterRadiusMeters is the radius of the disc sessions are placed in.
	DefaultJitterRadiusMeters = 300.0
)

// Scroll termination defaults. The list loads in pages of 100 items, so a
// count that stops short of a page boundary means the list is exhausted.
const (
	DefaultMaxItems              = 300
	DefaultPlateauBatchSize      = 100
	DefaultPlateauRemainderLimit = 90
	DefaultPlateauMinItems       = 20
	DefaultMaxStagnantChecks     = 5
	DefaultMaxScrollIterations   = 30
)

// Pacing and timeout defaults.
const (
	DefaultSettleDelayMin     = 1000 * time.Millisecond
	DefaultSettleDelayMax     = 1300 * time.Millisecond
	DefaultInitialDelayMin    = 2 * time.Second
	DefaultInitialDelayMax    = 3 * time.Second
	DefaultBatchDelayMin      = 2 * time.Second
	DefaultBatchDelayMax      = 4 * time.Second
	DefaultNavigationTimeout  = 60 * time.Second
	DefaultKeywordTimeout     = 3 * time.Minute
	DefaultKeywordRetries     = 1
	DefaultRetryBackoffBase   = 2 * time.Second
	DefaultRetryBackoffFactor = 1.5
	DefaultRetryBackoffMax    = 8 * time.Second
)

// Concurrency defaults.
const (
	// DefaultBatchSize is the number of browser sessions a direct batch crawl
	// keeps open at once. Each session is a full browser process.
	DefaultBatchSize = 2

	// DefaultWorkerConcurrency is the number of basic crawl jobs a worker
	// runs at once.
	DefaultWorkerConcurrency = 1
)

// Freshness cycle defaults.
const (
	DefaultTimezone        = "Asia/Seoul"
	DefaultCycleCutoffHour = 14
)

// Storage and queue defaults.
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	QueueRedis  = "redis"
	QueueMemory = "memory"

	DefaultDatabaseDriver = DatabaseSQLite
	DefaultQueueBackend   = QueueRedis
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultQueuePrefix    = AppName
	DefaultMaxAttempts    = 3
	DefaultBackoffBase    = 15 * time.Second
	DefaultJobTimeout     = 3 * time.Minute
	DefaultProgressTTL    = 30 * time.Minute
	DefaultScheduleEvery  = 10 * time.Minute
)

// Config holds every option of placerank. It is populated by NewConfig,
// overlaid by the YAML config file and finally by CLI flags, then passed
// down through constructors rather than kept in global state.
type Config struct {
	// SearchBaseURL is the scheme and host of the search front end.
	SearchBaseURL string `yaml:"searchBaseURL"`

	// BaseLongitude and BaseLatitude are the centre of the jitter disc.
	BaseLongitude float64 `yaml:"baseLongitude"`
	BaseLatitude  float64 `yaml:"baseLatitude"`

	// JitterRadiusMeters is the radius around the base coordinate.
	JitterRadiusMeters float64 `yaml:"jitterRadiusMeters"`

	// MaxItems is the hard cap on organic rows per run.
	MaxItems int `yaml:"maxItems"`

	PlateauBatchSize      int `yaml:"plateauBatchSize"`
	PlateauRemainderLimit int `yaml:"plateauRemainderLimit"`
	PlateauMinItems       int `yaml:"plateauMinItems"`
	MaxStagnantChecks     int `yaml:"maxStagnantChecks"`
	MaxScrollIterations   int `yaml:"maxScrollIterations"`

	SettleDelayMin  time.Duration `yaml:"settleDelayMin"`
	SettleDelayMax  time.Duration `yaml:"settleDelayMax"`
	InitialDelayMin time.Duration `yaml:"initialDelayMin"`
	InitialDelayMax time.Duration `yaml:"initialDelayMax"`
	BatchDelayMin   time.Duration `yaml:"batchDelayMin"`
	BatchDelayMax   time.Duration `yaml:"batchDelayMax"`

	// NavigationTimeout bounds page load until the network is idle.
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`

	// KeywordTimeout bounds one keyword run inside a batch crawl.
	KeywordTimeout time.Duration `yaml:"keywordTimeout"`

	// KeywordRetries is how many times a failed keyword is retried in a batch.
	KeywordRetries     int           `yaml:"keywordRetries"`
	RetryBackoffBase   time.Duration `yaml:"retryBackoffBase"`
	RetryBackoffFactor float64       `yaml:"retryBackoffFactor"`
	RetryBackoffMax    time.Duration `yaml:"retryBackoffMax"`

	// Headless runs the browser without a window.
	Headless bool `yaml:"headless"`

	// ProxyServer is passed to the browser as --proxy-server when set.
	ProxyServer string `yaml:"proxyServer"`

	// IdentityPrimary and IdentitySecondary are cookie snapshot files tried
	// in order before the embedded identity.
	IdentityPrimary   string `yaml:"identityPrimary"`
	IdentitySecondary string `yaml:"identitySecondary"`

	BatchSize         int `yaml:"batchSize"`
	WorkerConcurrency int `yaml:"workerConcurrency"`

	// WorkerRatePerMinute throttles basic job starts. Zero disables it.
	WorkerRatePerMinute float64 `yaml:"workerRatePerMinute"`

	Timezone        string `yaml:"timezone"`
	CycleCutoffHour int    `yaml:"cycleCutoffHour"`

	// DatabaseDriver is "sqlite" or "postgres".
	DatabaseDriver string `yaml:"databaseDriver"`

	// DBDir is the SQLite directory. Defaults to the XDG data directory.
	DBDir string `yaml:"dbDir"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// QueueBackend is "redis" or "memory".
	QueueBackend  string        `yaml:"queueBackend"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	QueuePrefix   string        `yaml:"queuePrefix"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	BackoffBase   time.Duration `yaml:"backoffBase"`
	JobTimeout    time.Duration `yaml:"jobTimeout"`

	ProgressTTL   time.Duration `yaml:"progressTTL"`
	ScheduleEvery time.Duration `yaml:"scheduleEvery"`

	// MetricsAddr enables the Prometheus endpoint of the worker when set.
	MetricsAddr string `yaml:"metricsAddr"`

	// Keywords holds per-keyword overrides keyed by keyword text.
	Keywords map[string]KeywordConfig `yaml:"keywords,omitempty"`

	// The fields below are set from CLI flags only.
	Verbose        bool   `yaml:"-"`
	JSONLog        bool   `yaml:"-"`
	JSONReport     bool   `yaml:"-"`
	MarkdownReport bool   `yaml:"-"`
	ReportFile     string `yaml:"-"`
	ConfigFilePath string `yaml:"-"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		SearchBaseURL:         DefaultSearchBaseURL,
		BaseLongitude:         DefaultBaseLongitude,
		BaseLatitude:          DefaultBaseLatitude,
		JitterRadiusMeters:    DefaultJitterRadiusMeters,
		MaxItems:              DefaultMaxItems,
		PlateauBatchSize:      DefaultPlateauBatchSize,
		PlateauRemainderLimit: DefaultPlateauRemainderLimit,
		PlateauMinItems:       DefaultPlateauMinItems,
		MaxStagnantChecks:     DefaultMaxStagnantChecks,
		MaxScrollIterations:   DefaultMaxScrollIterations,
		SettleDelayMin:        DefaultSettleDelayMin,
		SettleDelayMax:        DefaultSettleDelayMax,
		InitialDelayMin:       DefaultInitialDelayMin,
		InitialDelayMax:       DefaultInitialDelayMax,
		BatchDelayMin:         DefaultBatchDelayMin,
		BatchDelayMax:         DefaultBatchDelayMax,
		NavigationTimeout:     DefaultNavigationTimeout,
		KeywordTimeout:        DefaultKeywordTimeout,
		KeywordRetries:        DefaultKeywordRetries,
		RetryBackoffBase:      DefaultRetryBackoffBase,
		RetryBackoffFactor:    DefaultRetryBackoffFactor,
		RetryBackoffMax:       DefaultRetryBackoffMax,
		Headless:              true,
		IdentityPrimary:       filepath.Join(XDGConfigDir(), "identity_primary.json"),
		IdentitySecondary:     filepath.Join(XDGConfigDir(), "identity_secondary.json"),
		BatchSize:             DefaultBatchSize,
		WorkerConcurrency:     DefaultWorkerConcurrency,
		Timezone:              DefaultTimezone,
		CycleCutoffHour:       DefaultCycleCutoffHour,
		DatabaseDriver:        DefaultDatabaseDriver,
		DBDir:                 XDGDataDir(),
		QueueBackend:          DefaultQueueBackend,
		RedisAddr:             DefaultRedisAddr,
		QueuePrefix:           DefaultQueuePrefix,
		MaxAttempts:           DefaultMaxAttempts,
		BackoffBase:           DefaultBackoffBase,
		JobTimeout:            DefaultJobTimeout,
		ProgressTTL:           DefaultProgressTTL,
		ScheduleEvery:         DefaultScheduleEvery,
	}
}

// XDGDataDir returns the XDG data directory for placerank.
// On Linux: ~/.local/share/placerank
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for placerank.
// On Linux: ~/.config/placerank
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Location loads the time zone the freshness cycle is anchored in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ErrUnknownTimezone
	}
	return loc, nil
}

// Validate checks if the configuration is valid and returns the first
// problem found as a sentinel error.
func (c *Config) Validate() error {
	u, err := url.Parse(c.SearchBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidBaseURL
	}

	if c.JitterRadiusMeters < 0 {
		return ErrInvalidRadius
	}

	if c.MaxItems <= 0 {
		return ErrInvalidMaxItems
	}

	if c.PlateauBatchSize <= 0 || c.PlateauRemainderLimit <= 0 ||
		c.PlateauRemainderLimit > c.PlateauBatchSize ||
		c.MaxStagnantChecks <= 0 || c.MaxScrollIterations <= 0 {
		return ErrInvalidScrollRules
	}

	if !validRange(c.SettleDelayMin, c.SettleDelayMax) ||
		!validRange(c.InitialDelayMin, c.InitialDelayMax) ||
		!validRange(c.BatchDelayMin, c.BatchDelayMax) ||
		!validRange(c.RetryBackoffBase, c.RetryBackoffMax) {
		return ErrInvalidDelayRange
	}

	if c.NavigationTimeout <= 0 || c.KeywordTimeout <= 0 || c.JobTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.KeywordRetries < 0 {
		return ErrInvalidRetries
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.WorkerConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.CycleCutoffHour < 0 || c.CycleCutoffHour > 23 {
		return ErrInvalidCycleHour
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.DatabaseDriver {
	case DatabaseSQLite:
	case DatabasePostgres:
		if c.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrUnknownDatabaseDriver
	}

	switch c.QueueBackend {
	case QueueRedis, QueueMemory:
	default:
		return ErrUnknownQueueBackend
	}

	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

func validRange(lo, hi time.Duration) bool {
	return lo >= 0 && hi >= lo
}
