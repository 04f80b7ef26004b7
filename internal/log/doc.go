// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The crawler handles live portal session cookies (identity snapshots),
// database DSNs and Redis passwords. The SecureHandler masks:
//   - Cookie headers and individual portal session cookies (NNB, NID_*)
//   - Authorization, token, secret and password attributes
//   - The password component of DSN/URL attributes (dsn, redis_url, proxy)
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("session opened",
//	    "cookie", "NNB=ABCDEF; nx_ssl=2", // masked
//	    "keyword", "강남 맛집",
//	)
//	slog.SetDefault(logger)
package log
