// Package progress keeps the set of crawls that are currently running.
// It is the only mutable state shared between crawl runs.
package progress
