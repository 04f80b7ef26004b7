// Package crawler turns an infinite-scroll result list into ranked
// listing items.
//
// # Components
//
//   - Scroller: drives a Page (scroll, count, settle, count) until one of
//     its termination Rules fires
//   - Rule: a pluggable stop condition (hard cap, plateau, stagnation,
//     iteration ceiling)
//   - Extractor: parses a captured DOM snapshot with goquery using
//     declarative per-field selector strategies
//
// The Page interface is implemented by browser.Session in production and
// by fakes in tests, so scrolling logic runs without a browser.
//
// # Usage
//
//	scroller := crawler.NewScroller(pacer, crawler.WithRules(crawler.DefaultRules(cfg)...))
//	outcome, err := scroller.Run(ctx, session)
//	items, dropped, err := crawler.NewExtractor().Extract(html, pageURL)
package crawler
