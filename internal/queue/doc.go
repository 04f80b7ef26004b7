// Package queue is the crawl job queue.
//
// Jobs are typed (basic, detail, user detail) and ordered by priority,
// then by enqueue time. A failed job is retried after an exponential
// backoff until it has used MaxAttempts, and then moved to a failed list.
//
// Two backends implement Backend:
//   - Redis keeps one sorted set of ready jobs per type, one sorted set of
//     delayed jobs keyed by due time, and a capped failed list
//   - Memory keeps the same structures in process, for tests and for
//     single-process runs
//
// Worker consumes registered job types with a bounded number of goroutines
// per type, a per-job timeout and an optional start rate limit.
package queue
