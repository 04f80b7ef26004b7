// Package report renders crawl results and stored rankings.
//
// Three writers share the Writer interface:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: JSON for other tools
//   - MarkdownWriter: Markdown for sharing, with a termination chart
//
// MultiWriter sends the same report to several writers, for example the
// terminal and a report file.
package report
