package crawler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy reads one candidate value from a list row. Strategies of a field
// are tried in order and the first non-empty value wins.
type Strategy struct {
	// Selector is matched inside the row; empty means the row itself.
	Selector string

	// Attr is read instead of the text when set.
	Attr string

	// Pattern, when set, must match the raw value; its first capture group
	// (or the whole match without groups) becomes the value.
	Pattern *regexp.Regexp
}

func (s Strategy) apply(row *goquery.Selection) string {
	sel := row
	if s.Selector != "" {
		sel = row.Find(s.Selector).First()
	}
	if sel.Length() == 0 {
		return ""
	}

	var raw string
	if s.Attr != "" {
		v, ok := sel.Attr(s.Attr)
		if !ok {
			return ""
		}
		raw = v
	} else {
		raw = sel.Text()
	}
	raw = strings.TrimSpace(raw)

	if s.Pattern == nil || raw == "" {
		return raw
	}
	m := s.Pattern.FindStringSubmatch(raw)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

// Field is an ordered strategy list.
type Field []Strategy

// First returns the first non-empty value produced by the strategies.
func (f Field) First(row *goquery.Selection) string {
	for _, s := range f {
		if v := s.apply(row); v != "" {
			return v
		}
	}
	return ""
}

// Fields describes how every listing attribute is read from a row.
type Fields struct {
	PlaceID     Field
	Name        Field
	Category    Field
	ReviewCount Field
	Link        Field
	Address     Field
	SavedCount  Field
}

var (
	placePathPattern = regexp.MustCompile(`/(?:restaurant|place|cafe|hairshop|hospital|accommodation|nailshop)/(\d+)`)
	digitsPattern    = regexp.MustCompile(`\d[\d,]*`)
	placeIDPattern   = regexp.MustCompile(`^(\d+)$`)
)

// DefaultFields are the selector strategies for the mobile result list.
// Class names are build hashes of the front end, so every field also has
// structural fallbacks.
var DefaultFields = Fields{
	PlaceID: Field{
		{Selector: `a.place_bluelink[href*="/restaurant/"]`, Attr: "href", Pattern: placePathPattern},
		{Selector: `a[href*="/restaurant/"]`, Attr: "href", Pattern: placePathPattern},
		{Selector: `a[href*="/place/"]`, Attr: "href", Pattern: placePathPattern},
		{Selector: `a.place_bluelink`, Attr: "href", Pattern: placePathPattern},
		{Attr: "data-id", Pattern: placeIDPattern},
	},
	Name: Field{
		{Selector: "span.TYaxT"},
		{Selector: ".place_bluelink > span.place_bluelink_text"},
		{Selector: "span.YwYLL"},
		{Selector: `[class*="place_bluelink"]`},
		{Selector: `a[href*="/place/"] span`},
		{Selector: `a[href*="/restaurant/"] span`},
	},
	Category: Field{
		{Selector: "span.KCMnt"},
		{Selector: `[class*="KCMnt"]`},
		{Selector: ".category"},
	},
	ReviewCount: Field{
		{Selector: "span.h69bs.a2RFq", Pattern: digitsPattern},
		{Selector: `[class*="h69bs"]`, Pattern: digitsPattern},
		{Selector: `[class*="review"]`, Pattern: digitsPattern},
	},
	Link: Field{
		{Selector: `a.place_bluelink[href*="/restaurant/"]`, Attr: "href"},
		{Selector: `a[href*="/restaurant/"]`, Attr: "href"},
		{Selector: `a[href*="/place/"]`, Attr: "href"},
	},
	Address: Field{
		{Selector: ".qHRwL"},
		{Selector: `[class*="qHRwL"]`},
		{Selector: ".address"},
		{Selector: `[class*="address"]`},
	},
	SavedCount: Field{
		{Selector: `button[aria-label*="저장"] span.place_save_count`, Pattern: digitsPattern},
		{Selector: `button[aria-label*="저장"]`, Pattern: digitsPattern},
		{Selector: `[class*="save"]`, Pattern: digitsPattern},
		{Selector: `[class*="Save"]`, Pattern: digitsPattern},
	},
}

// parseCount turns "1,234" into 1234. Anything unparsable counts as 0.
func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
