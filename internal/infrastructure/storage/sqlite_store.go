package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"StoryIndexer/internal/domain"
	"StoryIndexer/internal/ports"
)

const (
	// DefaultBatchSize is the number of saved articles per transaction.
	DefaultBatchSize = 1000

	databaseName = "articles.db"
	timeLayout   = "2006-01-02 15:04:05"

	createArticles = `CREATE TABLE IF NOT EXISTS articles (Id TEXT PRIMARY KEY, Source TEXT, Date DATETIME, Title TEXT, Reference TEXT, Entry DATETIME)`
	createLabels   = `CREATE TABLE IF NOT EXISTS labels (Id INTEGER PRIMARY KEY, Article TEXT, Category TEXT, Name TEXT, Value REAL)`
	createIndex    = `CREATE INDEX IF NOT EXISTS labels_article ON labels(Article)`
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("storage is closed")
	// ErrCompleted is returned by Save once Complete has run.
	ErrCompleted = errors.New("storage is completing, no more saves accepted")

	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

type state int

const (
	stateOpen state = iota + 1
	stateCompleting
	stateClosed
)

// Store is the transactional, batched writer for one run.
type Store struct {
	db        *sql.DB
	tx        *sql.Tx
	logger    *slog.Logger
	path      string
	batchSize int
	calls     int
	saved     int
	commits   int
	state     state
}

var _ ports.ArticleStore = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithBatchSize overrides the number of articles saved per transaction.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// DatabaseFile returns the SQLite file used for an output directory.
func DatabaseFile(dir string) string {
	return filepath.Join(dir, databaseName)
}

// Open creates dir when needed, initializes both tables and begins the first transaction.
func Open(ctx context.Context, dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}

	path := DatabaseFile(dir)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// A single connection keeps the open transaction visible to the dedup lookup.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{createArticles, createLabels} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create table (%s): %w", stmt, err)
		}
	}

	s := &Store{
		db:        db,
		logger:    logger,
		path:      path,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.begin(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.state = stateOpen

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Commits returns the number of intermediate batch commits so far.
func (s *Store) Commits() int {
	return s.commits
}

// Exists reports whether an article with uid, or a reference containing
// baseURL as a substring, is stored. It reads through the open transaction.
func (s *Store) Exists(ctx context.Context, uid, baseURL string) (bool, error) {
	if s.state == stateClosed {
		return false, ErrClosed
	}

	query, args, err := sq.Select("1").
		From("articles").
		Where(sq.Or{
			sq.Eq{"Id": uid},
			sq.Expr(`Reference LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(baseURL)+"%"),
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lookup: %w", err)
	}

	var found int
	err = s.tx.QueryRowContext(ctx, query, args...).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup %s: %w", query, err)
	}
	return true, nil
}

// Save inserts one article and its labels in the open transaction. Row level
// failures are logged and returned in the result, never as an error; labels
// of an article whose row failed are skipped.
func (s *Store) Save(ctx context.Context, article domain.Article, labels []domain.Label) (domain.SaveResult, error) {
	switch s.state {
	case stateClosed:
		return domain.SaveResult{}, ErrClosed
	case stateCompleting:
		return domain.SaveResult{}, ErrCompleted
	}

	result := domain.SaveResult{Article: article.UID}

	articleRow := []any{
		text(article.UID),
		text(article.Source),
		datetime(article.Date),
		text(article.Title),
		text(article.URL),
		datetime(article.Entry),
	}
	insert := sq.Insert("articles").
		Columns("Id", "Source", "Date", "Title", "Reference", "Entry").
		Values(articleRow...)

	if failure := s.insert(ctx, "articles", insert, articleRow); failure != nil {
		result.Failures = append(result.Failures, *failure)
		for _, label := range labels {
			result.Failures = append(result.Failures, domain.RowFailure{
				Table: "labels",
				Row:   labelRow(label),
				Err:   fmt.Errorf("article %s was not inserted", article.UID),
			})
		}
	} else {
		result.Inserted = true
		s.saved++
		for _, label := range labels {
			row := labelRow(label)
			insert := sq.Insert("labels").
				Columns("Article", "Category", "Name", "Value").
				Values(row...)
			if failure := s.insert(ctx, "labels", insert, row); failure != nil {
				result.Failures = append(result.Failures, *failure)
				continue
			}
			result.Labels++
		}
	}

	s.calls++
	if s.calls%s.batchSize == 0 {
		s.logger.Info("inserted articles", "count", s.calls)
		if err := s.commit(); err != nil {
			return result, err
		}
		s.commits++
		if err := s.begin(ctx); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Complete builds the label lookup index and logs totals. It returns the
// number of articles inserted by this run.
func (s *Store) Complete(ctx context.Context) (int, error) {
	switch s.state {
	case stateClosed:
		return 0, ErrClosed
	case stateCompleting:
		return s.saved, nil
	}

	if _, err := s.tx.ExecContext(ctx, createIndex); err != nil {
		return 0, fmt.Errorf("create index (%s): %w", createIndex, err)
	}

	var total int
	if err := s.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}

	s.logger.Info("total articles inserted", "inserted", s.saved, "saves", s.calls, "stored", total)
	s.state = stateCompleting
	return s.saved, nil
}

// Entries returns every stored (Id, Title) pair.
func (s *Store) Entries(ctx context.Context) ([]domain.IndexEntry, error) {
	if s.state == stateClosed {
		return nil, ErrClosed
	}

	query, args, err := sq.Select("Id", "Title").From("articles").OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build entries query: %w", err)
	}

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.IndexEntry
	for rows.Next() {
		var id, title sql.NullString
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if !id.Valid {
			continue
		}
		entries = append(entries, domain.IndexEntry{UID: id.String, Title: title.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return entries, nil
}

// Close commits the open transaction and releases the connection.
func (s *Store) Close() error {
	if s.state == stateClosed {
		return ErrClosed
	}
	s.state = stateClosed

	commitErr := s.commit()
	if err := s.db.Close(); err != nil {
		return errors.Join(commitErr, fmt.Errorf("close database: %w", err))
	}
	return commitErr
}

func (s *Store) insert(ctx context.Context, table string, builder sq.InsertBuilder, row []any) *domain.RowFailure {
	query, args, err := builder.ToSql()
	if err == nil {
		_, err = s.tx.ExecContext(ctx, query, args...)
	}
	if err == nil {
		return nil
	}

	s.logger.Error("error inserting row", "table", table, "sql", query, "row", row, "error", err)
	return &domain.RowFailure{Table: table, SQL: query, Row: row, Err: err}
}

func (s *Store) begin(ctx context.Context) error {
	// Cancelling the run must not roll back rows Close is about to commit.
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

func (s *Store) commit() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func labelRow(label domain.Label) []any {
	return []any{text(label.Article), text(label.Category), text(label.Name), label.Value}
}

// text maps empty or whitespace-only strings to NULL.
func text(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func datetime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.Format(timeLayout)
}
