// Package metrics exposes crawl and queue state to Prometheus.
//
// Counters are updated from crawl results and worker outcomes. In-flight
// crawls and queue depths are read from their stores on every scrape.
package metrics
