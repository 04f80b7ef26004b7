package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Keyword errors.
var (
	// ErrEmptyKeyword is returned when a keyword is blank after normalisation.
	ErrEmptyKeyword = errors.New("keyword cannot be empty")
	// ErrKeywordTooLong is returned when a keyword exceeds MaxKeywordLength runes.
	ErrKeywordTooLong = errors.New("keyword is too long")
)

// MaxKeywordLength is the longest keyword, in runes, that is accepted.
const MaxKeywordLength = 100

// Route is the list route of the search front end a keyword is crawled on.
type Route string

const (
	// RouteRestaurant lists restaurants with menu and visitor data.
	RouteRestaurant Route = "restaurant"
	// RoutePlace lists every other kind of business.
	RoutePlace Route = "place"
)

// Keyword is a search term whose ranking is tracked over time.
// Keywords are created on first reference and never deleted.
type Keyword struct {
	ID   int64  `json:"id"`
	Text string `json:"keyword"`

	// Restaurant is the classification flag selecting the list route.
	Restaurant bool `json:"restaurant"`

	// BasicLastCrawledAt is set only by a committed basic crawl run.
	BasicLastCrawledAt *time.Time `json:"basic_last_crawled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Route returns the list route this keyword is crawled on.
func (k Keyword) Route() Route {
	if k.Restaurant {
		return RouteRestaurant
	}
	return RoutePlace
}

// NormalizeKeyword canonicalises user input so that the same search term
// always maps to the same keyword row: NFC composition (Hangul typed on
// different IMEs), full-width ASCII folded to half-width, and runs of
// whitespace collapsed to one space.
func NormalizeKeyword(raw string) (string, error) {
	s := norm.NFC.String(raw)
	s = width.Fold.String(s)
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", ErrEmptyKeyword
	}
	if utf8.RuneCountInString(s) > MaxKeywordLength {
		return "", ErrKeywordTooLong
	}
	return s, nil
}
