package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoKeyword is returned when a command needs at least one keyword.
	ErrNoKeyword = errors.New("no keyword specified: provide keywords as arguments or use --list")

	// ErrInvalidBaseURL is returned when the search base URL has no scheme or host.
	ErrInvalidBaseURL = errors.New("invalid search base URL: must be an absolute URL")

	// ErrInvalidRadius is returned when the jitter radius is negative.
	ErrInvalidRadius = errors.New("invalid jitter radius: must be non-negative")

	// ErrInvalidMaxItems is returned when the item cap is not positive.
	ErrInvalidMaxItems = errors.New("invalid max items: must be positive")

	// ErrInvalidScrollRules is returned when a scroll termination threshold is unusable.
	ErrInvalidScrollRules = errors.New("invalid scroll rules: thresholds must be positive and remainder limit must not exceed batch size")

	// ErrInvalidDelayRange is returned when a min/max delay pair is negative or inverted.
	ErrInvalidDelayRange = errors.New("invalid delay range: min must be non-negative and not greater than max")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when the keyword retry count is negative.
	ErrInvalidRetries = errors.New("invalid keyword retries: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidConcurrency is returned when the worker concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid worker concurrency: must be positive")

	// ErrInvalidCycleHour is returned when the cutoff hour is outside 0-23.
	ErrInvalidCycleHour = errors.New("invalid cycle cutoff hour: must be between 0 and 23")

	// ErrUnknownTimezone is returned when the timezone cannot be loaded.
	ErrUnknownTimezone = errors.New("unknown timezone")

	// ErrUnknownDatabaseDriver is returned for drivers other than sqlite and postgres.
	ErrUnknownDatabaseDriver = errors.New("unknown database driver: use sqlite or postgres")

	// ErrMissingDSN is returned when the postgres driver is selected without a DSN.
	ErrMissingDSN = errors.New("missing dsn: postgres driver requires a connection string")

	// ErrUnknownQueueBackend is returned for backends other than redis and memory.
	ErrUnknownQueueBackend = errors.New("unknown queue backend: use redis or memory")

	// ErrInvalidMaxAttempts is returned when the job attempt limit is not positive.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
