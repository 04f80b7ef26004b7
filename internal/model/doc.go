// Package model defines the data structures shared by the crawler,
// persistence, queue and report packages: keywords, listing items scraped
// from the result list, append-only ranking rows and per-cycle detail
// placeholders.
//
// Models live in their own package so that crawler, ranking and database
// can all use them without import cycles.
package model
