package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "placerank.db"

// RankDB is the SQLite implementation of database.Store.
// Timestamps are stored as unix milliseconds.
type RankDB struct {
	db     *sql.DB
	dbPath string
}

var _ database.Store = (*RankDB)(nil)

// Options configures RankDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the RankDB in dbDir.
func Open(dbDir string, opts Options) (*RankDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", database.ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a new file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and a transaction must
	// not race another statement on a second connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RankDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (r *RankDB) Path() string {
	return r.dbPath
}

// Close closes the database connection.
func (r *RankDB) Close() error {
	return r.db.Close()
}

func (r *RankDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword TEXT NOT NULL UNIQUE,
		restaurant INTEGER NOT NULL DEFAULT 0,
		basic_last_crawled_at INTEGER,
		created_at INTEGER NOT NULL
	);

	-- Append-only ranking history; one row per keyword, place and run
	CREATE TABLE IF NOT EXISTS keyword_rankings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		keyword_id INTEGER NOT NULL REFERENCES keywords(id),
		ranking INTEGER NOT NULL,
		place_id TEXT NOT NULL,
		place_name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		crawled_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rankings_keyword ON keyword_rankings(keyword_id, crawled_at);

	-- Detail-crawl placeholders, one per place and cycle
	CREATE TABLE IF NOT EXISTS place_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		place_id TEXT NOT NULL,
		saved_count INTEGER NOT NULL DEFAULT 0,
		cycle_start INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		detail_crawled_at INTEGER,
		UNIQUE(place_id, cycle_start)
	);

	CREATE INDEX IF NOT EXISTS idx_place_details_cycle ON place_details(cycle_start);
	`

	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EnsureKeyword finds the keyword by normalised text or creates it.
func (r *RankDB) EnsureKeyword(ctx context.Context, text string, restaurant *bool) (model.Keyword, error) {
	normalized, err := model.NormalizeKeyword(text)
	if err != nil {
		return model.Keyword{}, err
	}

	var flag bool
	if restaurant != nil {
		flag = *restaurant
	}

	query := `
	INSERT INTO keywords (keyword, restaurant, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(keyword) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, normalized, flag, toMillis(time.Now())); err != nil {
		return model.Keyword{}, fmt.Errorf("failed to insert keyword: %w", err)
	}

	if restaurant != nil {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE keywords SET restaurant = ? WHERE keyword = ?`, flag, normalized); err != nil {
			return model.Keyword{}, fmt.Errorf("failed to update keyword classification: %w", err)
		}
	}

	return r.findKeyword(ctx, normalized)
}

// GetKeyword returns the keyword with the given id.
func (r *RankDB) GetKeyword(ctx context.Context, id int64) (model.Keyword, error) {
	row := r.db.QueryRowContext(ctx, keywordSelect+` WHERE id = ?`, id)
	kw, err := scanKeyword(row)
	if err != nil {
		return model.Keyword{}, fmt.Errorf("failed to get keyword %d: %w", id, err)
	}
	return kw, nil
}

// FindKeyword returns the keyword matching text after normalisation.
func (r *RankDB) FindKeyword(ctx context.Context, text string) (model.Keyword, error) {
	normalized, err := model.NormalizeKeyword(text)
	if err != nil {
		return model.Keyword{}, err
	}
	return r.findKeyword(ctx, normalized)
}

func (r *RankDB) findKeyword(ctx context.Context, normalized string) (model.Keyword, error) {
	row := r.db.QueryRowContext(ctx, keywordSelect+` WHERE keyword = ?`, normalized)
	kw, err := scanKeyword(row)
	if err != nil {
		return model.Keyword{}, fmt.Errorf("failed to find keyword %q: %w", normalized, err)
	}
	return kw, nil
}

// ListKeywords returns every keyword ordered by id.
func (r *RankDB) ListKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := r.db.QueryContext(ctx, keywordSelect+` ORDER BY id`)
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
func (r *RankDB) MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error {
	return markBasicCrawled(ctx, r.db, keywordID, at)
}

// WithinTx runs fn in one transaction.
func (r *RankDB) WithinTx(ctx context.Context, fn func(ctx context.Context, w database.RunWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &runWriter{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestRun returns the rows of the most recent run of a keyword.
func (r *RankDB) LatestRun(ctx context.Context, keywordID int64) ([]model.RankRow, error) {
	query := `
	SELECT keyword_id, ranking, place_id, place_name, category, crawled_at
	FROM keyword_rankings
	WHERE keyword_id = ?
	  AND crawled_at = (SELECT MAX(crawled_at) FROM keyword_rankings WHERE keyword_id = ?)
	ORDER BY ranking, id
	`

	rows, err := r.db.QueryContext(ctx, query, keywordID, keywordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	defer rows.Close()

	var result []model.RankRow
	for rows.Next() {
		var row model.RankRow
		var crawledAt int64
		if err := rows.Scan(&row.KeywordID, &row.Rank, &row.PlaceID, &row.PlaceName, &row.Category, &crawledAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank row: %w", err)
		}
		row.CrawledAt = fromMillis(crawledAt)
		result = append(result, row)
	}
	return result, rows.Err()
}

// RunSizes returns the row count of each run since the given time, newest first.
func (r *RankDB) RunSizes(ctx context.Context, keywordID int64, since time.Time) ([]model.RunSize, error) {
	query := `
	SELECT crawled_at, COUNT(*)
	FROM keyword_rankings
	WHERE keyword_id = ? AND crawled_at >= ?
	GROUP BY crawled_at
	ORDER BY crawled_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, keywordID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query run sizes: %w", err)
	}
	defer rows.Close()

	var sizes []model.RunSize
	for rows.Next() {
		var crawledAt int64
		size := model.RunSize{KeywordID: keywordID}
		if err := rows.Scan(&crawledAt, &size.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run size: %w", err)
		}
		size.CrawledAt = fromMillis(crawledAt)
		sizes = append(sizes, size)
	}
	return sizes, rows.Err()
}

// CountRankRows returns how many rank rows a keyword has across all runs.
func (r *RankDB) CountRankRows(ctx context.Context, keywordID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM keyword_rankings WHERE keyword_id = ?`, keywordID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rank rows: %w", err)
	}
	return n, nil
}

// Placeholder returns the placeholder of a place in a cycle.
func (r *RankDB) Placeholder(ctx context.Context, placeID string, cycleStart time.Time) (model.PlaceDetailPlaceholder, error) {
	row := r.db.QueryRowContext(ctx,
		placeholderSelect+` WHERE place_id = ? AND cycle_start = ?`, placeID, toMillis(cycleStart))
	p, err := scanPlaceholder(row)
	if err != nil {
		return model.PlaceDetailPlaceholder{}, fmt.Errorf("failed to get placeholder %s: %w", placeID, err)
	}
	return p, nil
}

// IncompletePlaceholders returns the placeholders of a cycle that have not
// been enriched by a detail crawl.
func (r *RankDB) IncompletePlaceholders(ctx context.Context, cycleStart time.Time) ([]model.PlaceDetailPlaceholder, error) {
	rows, err := r.db.QueryContext(ctx,
		placeholderSelect+` WHERE cycle_start = ? AND detail_crawled_at IS NULL ORDER BY id`,
		toMillis(cycleStart))
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
func (r *RankDB) MarkDetailCrawled(ctx context.Context, placeID string, cycleStart, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE place_details SET detail_crawled_at = ?, updated_at = ? WHERE place_id = ? AND cycle_start = ?`,
		toMillis(at), toMillis(at), placeID, toMillis(cycleStart))
	if err != nil {
		return fmt.Errorf("failed to mark detail crawled: %w", err)
	}
	return requireAffected(res, placeID)
}

// CountPlaceholders returns the number of placeholders in a cycle.
func (r *RankDB) CountPlaceholders(ctx context.Context, cycleStart time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM place_details WHERE cycle_start = ?`, toMillis(cycleStart)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count placeholders: %w", err)
	}
	return n, nil
}

// runWriter writes one run inside a transaction.
type runWriter struct {
	q querier
}

// InsertRankRows appends the rows of a run.
func (w *runWriter) InsertRankRows(ctx context.Context, rows []model.RankRow) error {
	query := `
	INSERT INTO keyword_rankings (keyword_id, ranking, place_id, place_name, category, crawled_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, row := range rows {
		if _, err := w.q.ExecContext(ctx, query,
			row.KeywordID,
			row.Rank,
			row.PlaceID,
			row.PlaceName,
			row.Category,
			toMillis(row.CrawledAt),
		); err != nil {
			return fmt.Errorf("failed to insert rank row %d: %w", row.Rank, err)
		}
	}
	return nil
}

// UpsertPlaceholder finds or creates the placeholder of (PlaceID,
// CycleStart) and updates its saved count only when it changed.
func (w *runWriter) UpsertPlaceholder(ctx context.Context, p model.PlaceDetailPlaceholder) (database.UpsertResult, error) {
	cycle := toMillis(p.CycleStart)
	now := toMillis(p.UpdatedAt)
	if p.UpdatedAt.IsZero() {
		now = toMillis(time.Now())
	}

	var saved int
	err := w.q.QueryRowContext(ctx,
		`SELECT saved_count FROM place_details WHERE place_id = ? AND cycle_start = ?`,
		p.PlaceID, cycle).Scan(&saved)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := w.q.ExecContext(ctx,
			`INSERT INTO place_details (place_id, saved_count, cycle_start, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			p.PlaceID, p.SavedCount, cycle, now, now); err != nil {
			return database.Unchanged, fmt.Errorf("failed to insert placeholder %s: %w", p.PlaceID, err)
		}
		return database.Created, nil
	case err != nil:
		return database.Unchanged, fmt.Errorf("failed to look up placeholder %s: %w", p.PlaceID, err)
	case saved == p.SavedCount:
		return database.Unchanged, nil
	}

	if _, err := w.q.ExecContext(ctx,
		`UPDATE place_details SET saved_count = ?, updated_at = ? WHERE place_id = ? AND cycle_start = ?`,
		p.SavedCount, now, p.PlaceID, cycle); err != nil {
		return database.Unchanged, fmt.Errorf("failed to update placeholder %s: %w", p.PlaceID, err)
	}
	return database.Updated, nil
}

// MarkBasicCrawled sets the keyword's freshness marker within the run.
func (w *runWriter) MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error {
	return markBasicCrawled(ctx, w.q, keywordID, at)
}

func markBasicCrawled(ctx context.Context, q querier, keywordID int64, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE keywords SET basic_last_crawled_at = ? WHERE id = ?`, toMillis(at), keywordID)
	if err != nil {
		return fmt.Errorf("failed to update keyword %d: %w", keywordID, err)
	}
	return requireAffected(res, keywordID)
}

const keywordSelect = `SELECT id, keyword, restaurant, basic_last_crawled_at, created_at FROM keywords`

const placeholderSelect = `
	SELECT place_id, saved_count, cycle_start, created_at, updated_at, detail_crawled_at
	FROM place_details`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyword(s rowScanner) (model.Keyword, error) {
	var kw model.Keyword
	var lastCrawled sql.NullInt64
	var createdAt int64

	if err := s.Scan(&kw.ID, &kw.Text, &kw.Restaurant, &lastCrawled, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Keyword{}, database.ErrNotFound
		}
		return model.Keyword{}, err
	}
	kw.CreatedAt = fromMillis(createdAt)
	kw.BasicLastCrawledAt = nullableMillis(lastCrawled)
	return kw, nil
}

func scanPlaceholder(s rowScanner) (model.PlaceDetailPlaceholder, error) {
	var p model.PlaceDetailPlaceholder
	var cycle, createdAt, updatedAt int64
	var detail sql.NullInt64

	if err := s.Scan(&p.PlaceID, &p.SavedCount, &cycle, &createdAt, &updatedAt, &detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PlaceDetailPlaceholder{}, database.ErrNotFound
		}
		return model.PlaceDetailPlaceholder{}, err
	}
	p.CycleStart = fromMillis(cycle)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	p.DetailCrawledAt = nullableMillis(detail)
	return p, nil
}

func requireAffected(res sql.Result, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%v: %w", key, database.ErrNotFound)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
