// Package postgres implements database.Store on PostgreSQL through a pgx
// connection pool. The schema ships as embedded golang-migrate migrations
// applied by RunMigrations.
package postgres
