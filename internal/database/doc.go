// Package database defines the storage contracts of placerank.
//
// Two implementations exist:
//   - sqlite: a single-file store (modernc.org/sqlite) used by the CLI and
//     by tests
//   - postgres: a pgx connection pool with embedded migrations, for
//     deployments where several workers share one database
//
// A basic crawl run writes its rank rows, its detail placeholders and the
// keyword freshness marker through a RunWriter handed out by
// RunStore.WithinTx, so the three either commit together or not at all.
package database
