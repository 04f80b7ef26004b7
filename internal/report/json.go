package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/placerank/internal/model"
)

// JSONWriter renders reports as JSON documents.
type JSONWriter struct {
	baseWriter

	indentPrefix string
	indentString string
	indent       bool

	// version is added to every document when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps every document with the placerank version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// envelope carries the version next to the report.
type envelope struct {
	Version string `json:"version"`
	Report  any    `json:"report"`
}

// WriteBatch renders the batch report.
func (w *JSONWriter) WriteBatch(report *BatchReport) (int, error) {
	return w.writeJSON(report)
}

// WriteRanking renders the ranking.
func (w *JSONWriter) WriteRanking(ranking *Ranking) (int, error) {
	if ranking.Rows == nil {
		ranking = &Ranking{Keyword: ranking.Keyword, Rows: []model.RankRow{}}
	}
	return w.writeJSON(ranking)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	if w.version != "" {
		v = envelope{Version: w.version, Report: v}
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
