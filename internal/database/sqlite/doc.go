// Package sqlite stores keywords, ranking history and detail placeholders
// in a single SQLite file, using the CGO-free modernc.org/sqlite driver.
// The connection pool is limited to one connection and WAL mode is on by
// default.
package sqlite
