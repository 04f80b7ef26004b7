// Package scheduler decides which crawl jobs to enqueue.
//
// A pass enqueues a basic job for every keyword not yet crawled in the
// current cycle, a forced basic job for every keyword whose latest run
// looks cut short, and a detail job for every place of the current cycle
// that still has no detail data.
package scheduler
