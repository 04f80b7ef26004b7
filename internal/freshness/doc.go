// Package freshness decides whether a keyword needs a basic crawl in the
// current cycle. A cycle is a 24 hour window starting at the cutoff hour
// (14:00 by default) in the configured time zone; a keyword is fresh once
// it has been crawled at or after the start of the current cycle.
package freshness
