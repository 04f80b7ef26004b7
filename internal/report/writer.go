package report

import "io"

// Writer renders reports to an output.
type Writer interface {
	// WriteBatch renders the results of a crawl command.
	WriteBatch(report *BatchReport) (int, error)

	// WriteRanking renders the stored ranking of a keyword.
	WriteRanking(ranking *Ranking) (int, error)
}

// MultiWriter writes every report to all of its writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteBatch writes to every writer and stops at the first error.
func (m *MultiWriter) WriteBatch(report *BatchReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteRanking writes to every writer and stops at the first error.
func (m *MultiWriter) WriteRanking(ranking *Ranking) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteRanking(ranking)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

const timeLayout = "2006-01-02 15:04:05 MST"

// truncateString cuts s to maxLen runes, marking the cut with "...".
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
