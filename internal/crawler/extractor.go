package crawler

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/placerank/internal/model"
)

// Dropped is an organic row that could not be turned into a listing item.
type Dropped struct {
	// Position is the 1-based position among organic rows.
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	Reason   string `json:"reason"`
}

// Extractor parses listing items out of a captured result list.
type Extractor struct {
	fields   Fields
	maxItems int
	logger   *slog.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithFields replaces the selector strategies.
func WithFields(f Fields) ExtractorOption {
	return func(e *Extractor) {
		e.fields = f
	}
}

// WithMaxItems caps the number of returned items. Zero or less disables the cap.
func WithMaxItems(n int) ExtractorOption {
	return func(e *Extractor) {
		e.maxItems = n
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor creates an Extractor with DefaultFields and a cap of 300.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		fields:   DefaultFields,
		maxItems: 300,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the organic rows of html in display order. Ads are
// skipped, rows without a place id are dropped and reported, and the kept
// rows are ranked 1..N without gaps. pageURL resolves relative links.
func (e *Extractor) Extract(html, pageURL string) ([]model.ListingItem, []Dropped, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse list html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}

	var (
		items    []model.ListingItem
		dropped  []Dropped
		position int
	)
	doc.Find(ItemSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if v, _ := row.Attr(AdAttr); v == AdMarker {
			return true
		}
		position++

		item := e.readRow(row, base)
		if item.PlaceID == "" {
			d := Dropped{Position: position, Name: item.Name, Reason: "missing place id"}
			dropped = append(dropped, d)
			e.logger.Warn("row dropped", "position", d.Position, "name", d.Name, "reason", d.Reason)
			return true
		}

		item.Rank = len(items) + 1
		items = append(items, item)
		return e.maxItems <= 0 || len(items) < e.maxItems
	})

	return items, dropped, nil
}

func (e *Extractor) readRow(row *goquery.Selection, base *url.URL) model.ListingItem {
	return model.ListingItem{
		PlaceID:     e.fields.PlaceID.First(row),
		Name:        e.fields.Name.First(row),
		Category:    e.fields.Category.First(row),
		ReviewCount: parseCount(e.fields.ReviewCount.First(row)),
		Link:        resolveLink(base, e.fields.Link.First(row)),
		Address:     e.fields.Address.First(row),
		SavedCount:  parseCount(e.fields.SavedCount.First(row)),
	}
}

// resolveLink makes href absolute against base. Script and fragment links
// resolve to nothing.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
