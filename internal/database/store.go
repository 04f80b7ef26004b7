package database

import (
	"context"
	"time"

	"github.com/nao1215/placerank/internal/model"
)

// UpsertResult tells what UpsertPlaceholder did.
type UpsertResult int

const (
	// Unchanged means the placeholder existed with the same saved count.
	Unchanged UpsertResult = iota
	// Created means a new placeholder was inserted.
	Created
	// Updated means the saved count of an existing placeholder changed.
	Updated
)

// String returns the result name used in logs.
func (r UpsertResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// KeywordStore manages keywords.
type KeywordStore interface {
	// EnsureKeyword finds the keyword by its normalised text or creates it.
	// A non-nil restaurant overwrites the stored classification.
	EnsureKeyword(ctx context.Context, text string, restaurant *bool) (model.Keyword, error)
	GetKeyword(ctx context.Context, id int64) (model.Keyword, error)
	FindKeyword(ctx context.Context, text string) (model.Keyword, error)
	ListKeywords(ctx context.Context) ([]model.Keyword, error)
	MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error
}

// RunWriter is the write side of one crawl run. It is only valid inside
// the function passed to RunStore.WithinTx.
type RunWriter interface {
	InsertRankRows(ctx context.Context, rows []model.RankRow) error
	UpsertPlaceholder(ctx context.Context, p model.PlaceDetailPlaceholder) (UpsertResult, error)
	MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error
}

// RunStore stores ranking runs.
type RunStore interface {
	// WithinTx runs fn in one transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, w RunWriter) error) error

	// LatestRun returns the rows of the most recent run of a keyword,
	// ordered by rank. It is empty when the keyword was never crawled.
	LatestRun(ctx context.Context, keywordID int64) ([]model.RankRow, error)

	// RunSizes returns the row count of every run since the given time,
	// newest first.
	RunSizes(ctx context.Context, keywordID int64, since time.Time) ([]model.RunSize, error)

	CountRankRows(ctx context.Context, keywordID int64) (int, error)
}

// PlaceholderStore manages detail-crawl placeholders.
type PlaceholderStore interface {
	Placeholder(ctx context.Context, placeID string, cycleStart time.Time) (model.PlaceDetailPlaceholder, error)
	IncompletePlaceholders(ctx context.Context, cycleStart time.Time) ([]model.PlaceDetailPlaceholder, error)
	MarkDetailCrawled(ctx context.Context, placeID string, cycleStart, at time.Time) error
	CountPlaceholders(ctx context.Context, cycleStart time.Time) (int, error)
}

// Store is the full storage surface.
type Store interface {
	KeywordStore
	RunStore
	PlaceholderStore
	Close() error
}
