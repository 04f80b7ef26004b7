// Package ranking persists the result of one basic crawl run.
//
// Persist writes the rank rows, one detail placeholder per distinct place
// and the keyword freshness marker in a single transaction, then enqueues
// one detail-crawl job per distinct place. Enqueueing happens after the
// commit and is best effort: a failed enqueue is logged and counted but
// does not fail the run, because the scheduler re-enqueues incomplete
// placeholders later.
package ranking
