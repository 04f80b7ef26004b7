// Package pipeline runs basic crawls of keywords.
//
// A crawl is a sequence of steps over a Run: resolve the keyword, check
// its freshness, crawl the result list in a browser and persist the
// ranking. Each step is implemented as a Step that reads and fills the
// Run. A step may return ErrSkip to end the run early without an error,
// which is how fresh keywords are skipped.
//
// Runner wraps a pipeline with the progress store and produces a Result;
// it also handles basic jobs from the queue. BatchProcessor crawls many
// keywords with a concurrency cap, pacing between batches, a per-keyword
// timeout and a bounded number of retries.
package pipeline
