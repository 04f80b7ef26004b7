package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a pgxpool connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

var _ database.Store = (*DB)(nil)

// New creates a new database connection pool.
func New(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// RunMigrations runs all embedded SQL migrations.
func (d *DB) RunMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	d.Pool.Close()
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureKeyword finds the keyword by normalised text or creates it.
func (d *DB) EnsureKeyword(ctx context.Context, text string, restaurant *bool) (model.Keyword, error) {
	normalized, err := model.NormalizeKeyword(text)
	if err != nil {
		return model.Keyword{}, err
	}

	var flag bool
	if restaurant != nil {
		flag = *restaurant
	}

	// The no-op update makes RETURNING yield the existing row.
	query := `
		INSERT INTO keywords (keyword, restaurant)
		VALUES ($1, $2)
		ON CONFLICT (keyword) DO UPDATE SET
			restaurant = CASE WHEN $3 THEN EXCLUDED.restaurant ELSE keywords.restaurant END
		RETURNING id, keyword, restaurant, basic_last_crawled_at, created_at
	`
	kw, err := scanKeyword(d.Pool.QueryRow(ctx, query, normalized, flag, restaurant != nil))
	if err != nil {
		return model.Keyword{}, fmt.Errorf("failed to ensure keyword %q: %w", normalized, err)
	}
	return kw, nil
}

// GetKeyword returns the keyword with the given id.
func (d *DB) GetKeyword(ctx context.Context, id int64) (model.Keyword, error) {
	kw, err := scanKeyword(d.Pool.QueryRow(ctx, keywordSelect+` WHERE id = $1`, id))
	if err != nil {
		return model.Keyword{}, fmt.Errorf("failed to get keyword %d: %w", id, err)
	}
	return kw, nil
}

// FindKeyword returns the keyword matching text after normalisation.
func (d *DB) FindKeyword(ctx context.Context, text string) (model.Keyword, error) {
	normalized, err := model.NormalizeKeyword(text)
	if err != nil {
		return model.Keyword{}, err
	}
	kw, err := scanKeyword(d.Pool.QueryRow(ctx, keywordSelect+` WHERE keyword = $1`, normalized))
	if err != nil {
		return model.Keyword{}, fmt.Errorf("failed to find keyword %q: %w", normalized, err)
	}
	return kw, nil
}

// ListKeywords returns every keyword ordered by id.
func (d *DB) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := d.Pool.Query(ctx, keywordSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// MarkBasicCrawled sets the keyword's freshness marker outside a run.
func (d *DB) MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error {
	return markBasicCrawled(ctx, d.Pool, keywordID, at)
}

// WithinTx runs fn in one transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, w database.RunWriter) error) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &runWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestRun returns the rows of the most recent run of a keyword.
func (d *DB) LatestRun(ctx context.Context, keywordID int64) ([]model.RankRow, error) {
	query := `
		SELECT keyword_id, ranking, place_id, place_name, category, crawled_at
		FROM keyword_rankings
		WHERE keyword_id = $1
		  AND crawled_at = (SELECT MAX(crawled_at) FROM keyword_rankings WHERE keyword_id = $1)
		ORDER BY ranking, id
	`
	rows, err := d.Pool.Query(ctx, query, keywordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	defer rows.Close()

	var result []model.RankRow
	for rows.Next() {
		var row model.RankRow
		if err := rows.Scan(&row.KeywordID, &row.Rank, &row.PlaceID, &row.PlaceName, &row.Category, &row.CrawledAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// RunSizes returns the row count of each run since the given time, newest first.
func (d *DB) RunSizes(ctx context.Context, keywordID int64, since time.Time) ([]model.RunSize, error) {
	query := `
		SELECT crawled_at, COUNT(*)
		FROM keyword_rankings
		WHERE keyword_id = $1 AND crawled_at >= $2
		GROUP BY crawled_at
		ORDER BY crawled_at DESC
	`
	rows, err := d.Pool.Query(ctx, query, keywordID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query run sizes: %w", err)
	}
	defer rows.Close()

	var sizes []model.RunSize
	for rows.Next() {
		size := model.RunSize{KeywordID: keywordID}
		if err := rows.Scan(&size.CrawledAt, &size.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run size: %w", err)
		}
		sizes = append(sizes, size)
	}
	return sizes, rows.Err()
}

// CountRankRows returns how many rank rows a keyword has across all runs.
func (d *DB) CountRankRows(ctx context.Context, keywordID int64) (int, error) {
	var n int
	if err := d.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM keyword_rankings WHERE keyword_id = $1`, keywordID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rank rows: %w", err)
	}
	return n, nil
}

// Placeholder returns the placeholder of a place in a cycle.
func (d *DB) Placeholder(ctx context.Context, placeID string, cycleStart time.Time) (model.PlaceDetailPlaceholder, error) {
	p, err := scanPlaceholder(d.Pool.QueryRow(ctx,
		placeholderSelect+` WHERE place_id = $1 AND cycle_start = $2`, placeID, cycleStart))
	if err != nil {
		return model.PlaceDetailPlaceholder{}, fmt.Errorf("failed to get placeholder %s: %w", placeID, err)
	}
	return p, nil
}

// IncompletePlaceholders returns the placeholders of a cycle without a
// detail crawl.
func (d *DB) IncompletePlaceholders(ctx context.Context, cycleStart time.Time) ([]model.PlaceDetailPlaceholder, error) {
	rows, err := d.Pool.Query(ctx,
		placeholderSelect+` WHERE cycle_start = $1 AND detail_crawled_at IS NULL ORDER BY id`, cycleStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomplete placeholders: %w", err)
	}
	defer rows.Close()

	var result []model.PlaceDetailPlaceholder
	for rows.Next() {
		p, err := scanPlaceholder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placeholder: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// MarkDetailCrawled records that the detail crawler enriched a placeholder.
func (d *DB) MarkDetailCrawled(ctx context.Context, placeID string, cycleStart, at time.Time) error {
	tag, err := d.Pool.Exec(ctx,
		`UPDATE place_details SET detail_crawled_at = $1, updated_at = $1 WHERE place_id = $2 AND cycle_start = $3`,
		at, placeID, cycleStart)
	if err != nil {
		return fmt.Errorf("failed to mark detail crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", placeID, database.ErrNotFound)
	}
	return nil
}

// CountPlaceholders returns the number of placeholders in a cycle.
func (d *DB) CountPlaceholders(ctx context.Context, cycleStart time.Time) (int, error) {
	var n int
	if err := d.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM place_details WHERE cycle_start = $1`, cycleStart).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count placeholders: %w", err)
	}
	return n, nil
}

type runWriter struct {
	tx pgx.Tx
}

// InsertRankRows appends the rows of a run with one batched round trip.
func (w *runWriter) InsertRankRows(ctx context.Context, rows []model.RankRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := w.tx.CopyFrom(ctx,
		pgx.Identifier{"keyword_rankings"},
		[]string{"keyword_id", "ranking", "place_id", "place_name", "category", "crawled_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.KeywordID, r.Rank, r.PlaceID, r.PlaceName, r.Category, r.CrawledAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rank rows: %w", err)
	}
	return nil
}

// UpsertPlaceholder finds or creates the placeholder of (PlaceID,
// CycleStart), updating the saved count only when it changed.
func (w *runWriter) UpsertPlaceholder(ctx context.Context, p model.PlaceDetailPlaceholder) (database.UpsertResult, error) {
	now := p.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}

	var saved int
	err := w.tx.QueryRow(ctx,
		`SELECT saved_count FROM place_details WHERE place_id = $1 AND cycle_start = $2 FOR UPDATE`,
		p.PlaceID, p.CycleStart).Scan(&saved)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		tag, err := w.tx.Exec(ctx, `
			INSERT INTO place_details (place_id, saved_count, cycle_start, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (place_id, cycle_start) DO NOTHING`,
			p.PlaceID, p.SavedCount, p.CycleStart, now)
		if err != nil {
			return database.Unchanged, fmt.Errorf("failed to insert placeholder %s: %w", p.PlaceID, err)
		}
		if tag.RowsAffected() == 0 {
			// Another worker created it concurrently.
			return database.Unchanged, nil
		}
		return database.Created, nil
	case err != nil:
		return database.Unchanged, fmt.Errorf("failed to look up placeholder %s: %w", p.PlaceID, err)
	case saved == p.SavedCount:
		return database.Unchanged, nil
	}

	if _, err := w.tx.Exec(ctx,
		`UPDATE place_details SET saved_count = $1, updated_at = $2 WHERE place_id = $3 AND cycle_start = $4`,
		p.SavedCount, now, p.PlaceID, p.CycleStart); err != nil {
		return database.Unchanged, fmt.Errorf("failed to update placeholder %s: %w", p.PlaceID, err)
	}
	return database.Updated, nil
}

// MarkBasicCrawled sets the keyword's freshness marker within the run.
func (w *runWriter) MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error {
	return markBasicCrawled(ctx, w.tx, keywordID, at)
}

func markBasicCrawled(ctx context.Context, q querier, keywordID int64, at time.Time) error {
	tag, err := q.Exec(ctx, `UPDATE keywords SET basic_last_crawled_at = $1 WHERE id = $2`, at, keywordID)
	if err != nil {
		return fmt.Errorf("failed to update keyword %d: %w", keywordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("keyword %d: %w", keywordID, database.ErrNotFound)
	}
	return nil
}

const keywordSelect = `SELECT id, keyword, restaurant, basic_last_crawled_at, created_at FROM keywords`

const placeholderSelect = `
	SELECT place_id, saved_count, cycle_start, created_at, updated_at, detail_crawled_at
	FROM place_details`

func scanKeyword(row pgx.Row) (model.Keyword, error) {
	var kw model.Keyword
	if err := row.Scan(&kw.ID, &kw.Text, &kw.Restaurant, &kw.BasicLastCrawledAt, &kw.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Keyword{}, database.ErrNotFound
		}
		return model.Keyword{}, err
	}
	return kw, nil
}

func scanPlaceholder(row pgx.Row) (model.PlaceDetailPlaceholder, error) {
	var p model.PlaceDetailPlaceholder
	if err := row.Scan(&p.PlaceID, &p.SavedCount, &p.CycleStart, &p.CreatedAt, &p.UpdatedAt, &p.DetailCrawledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PlaceDetailPlaceholder{}, database.ErrNotFound
		}
		return model.PlaceDetailPlaceholder{}, err
	}
	return p, nil
}
