package model

import "time"

// ListingItem is one organic row extracted from the result list.
type ListingItem struct {
	// Rank is the 1-based position among organic rows of the run.
	Rank        int    `json:"rank"`
	PlaceID     string `json:"place_id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	ReviewCount int    `json:"review_count"`
	Link        string `json:"link,omitempty"`
	Address     string `json:"address,omitempty"`
	SavedCount  int    `json:"saved_count"`
}

// RankRow is one append-only ranking observation. All rows of a run share
// CrawledAt, and their ranks are 1..N without gaps.
type RankRow struct {
	KeywordID int64     `json:"keyword_id"`
	Rank      int       `json:"rank"`
	PlaceID   string    `json:"place_id"`
	PlaceName string    `json:"place_name"`
	Category  string    `json:"category,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
}

// PlaceDetailPlaceholder marks a place that needs a detail crawl in a
// freshness cycle. At most one exists per (PlaceID, CycleStart).
type PlaceDetailPlaceholder struct {
	PlaceID    string    `json:"place_id"`
	SavedCount int       `json:"saved_count"`
	CycleStart time.Time `json:"cycle_start"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// DetailCrawledAt is filled by the detail crawler. Nil means incomplete.
	DetailCrawledAt *time.Time `json:"detail_crawled_at,omitempty"`
}

// Counts is one observation of the rendered list.
type Counts struct {
	Total   int `json:"total"`
	Organic int `json:"organic"`
}

// RunSize is the number of rows a past run stored, used to detect runs
// that were cut short.
type RunSize struct {
	KeywordID int64     `json:"keyword_id"`
	CrawledAt time.Time `json:"crawled_at"`
	Rows      int       `json:"rows"`
}
