package store

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/ricesearch/support-context/internal/store/migrations"
)

// SQLiteStorage persists the corpora in a single SQLite file.
//
// SQL narrows candidates with LIKE over foldFunc-lowered columns; the exact
// predicates and ordering in query.go are then applied in Go so both
// backends return identical results.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens (or creates) the database at path and runs pending
// migrations.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// foldFunc lower-cases text with Unicode rules. SQLite's built-in LIKE
// folds ASCII only, so "Écran" would never match "écran".
const foldFunc = "support_fold"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(foldFunc, 1, fold); err != nil {
		panic(fmt.Sprintf("registering %s: %v", foldFunc, err))
	}
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern returns a lowered substring pattern for use against
// foldFunc(column).
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

func foldLike(column string) string {
	return foldFunc + "(" + column + `) LIKE ? ESCAPE '\'`
}

// anyLike builds "(fold(c1) LIKE ? OR fold(c2) LIKE ? ...)" over every
// column/term pair.
func anyLike(columns, terms []string) (string, []any) {
	var parts []string
	var args []any
	for _, term := range terms {
		p := likePattern(term)
		for _, c := range columns {
			parts = append(parts, foldLike(c))
			args = append(args, p)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// encodeList stores a string list as JSON without HTML escaping, so tags
// like "Q&A" stay searchable with LIKE.
func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC()
}

// ==================== Articles ====================

const articleColumns = `id, title, content, summary, tags, category, author, url, status,
	view_count, helpful_count, not_helpful_count, search_score, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var a Article
	var tags string
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Summary, &tags, &a.Category, &a.Author,
		&a.URL, &a.Status, &a.ViewCount, &a.HelpfulCount, &a.NotHelpfulCount, &a.SearchScore,
		&createdAt, &updatedAt); err != nil {
		return a, err
	}
	var err error
	if a.Tags, err = decodeList(tags); err != nil {
		return a, fmt.Errorf("decoding tags: %w", err)
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return a, nil
}

func (s *SQLiteStorage) SearchArticles(ctx context.Context, q ArticleQuery) ([]Article, error) {
	query := "SELECT " + articleColumns + " FROM articles"
	var where []string
	var args []any

	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if terms := nonEmptyTerms(q.Terms); len(terms) > 0 {
		clause, a := anyLike([]string{"title", "content", "summary", "tags"}, terms)
		where = append(where, clause)
		args = append(args, a...)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var candidates []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		candidates = append(candidates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles: %w", err)
	}

	return selectArticles(candidates, q), nil
}

func (s *SQLiteStorage) GetArticle(ctx context.Context, id string) (*Article, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ?", id)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning article: %w", err)
	}
	return &a, nil
}

func (s *SQLiteStorage) SaveArticle(ctx context.Context, a *Article) error {
	if err := a.Validate(); err != nil {
		return err
	}
	tags, err := encodeList(a.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			summary = excluded.summary,
			tags = excluded.tags,
			category = excluded.category,
			author = excluded.author,
			url = excluded.url,
			status = excluded.status,
			view_count = excluded.view_count,
			helpful_count = excluded.helpful_count,
			not_helpful_count = excluded.not_helpful_count,
			search_score = excluded.search_score,
			updated_at = excluded.updated_at
	`, a.ID, a.Title, a.Content, a.Summary, tags, a.Category, a.Author, a.URL, string(a.Status),
		a.ViewCount, a.HelpfulCount, a.NotHelpfulCount, a.SearchScore,
		utc(a.CreatedAt), utc(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving article: %w", err)
	}
	return nil
}

// ==================== FAQs ====================

const faqColumns = `id, question, answer, keywords, category, status, confidence,
	usage_count, helpful_count, not_helpful_count, created_at, updated_at`

func scanFAQ(row rowScanner) (FAQ, error) {
	var f FAQ
	var keywords string
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.Question, &f.Answer, &keywords, &f.Category, &f.Status,
		&f.Confidence, &f.UsageCount, &f.HelpfulCount, &f.NotHelpfulCount,
		&createdAt, &updatedAt); err != nil {
		return f, err
	}
	var err error
	if f.Keywords, err = decodeList(keywords); err != nil {
		return f, fmt.Errorf("decoding keywords: %w", err)
	}
	f.CreatedAt = createdAt.Time
	f.UpdatedAt = updatedAt.Time
	return f, nil
}

func (s *SQLiteStorage) queryFAQs(ctx context.Context, where []string, args []any, orderBy string) ([]FAQ, error) {
	query := "SELECT " + faqColumns + " FROM faqs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + orderBy

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying faqs: %w", err)
	}
	defer rows.Close()

	var out []FAQ
	for rows.Next() {
		f, err := scanFAQ(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning faq: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating faqs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStorage) SearchFAQs(ctx context.Context, q FAQQuery) ([]FAQ, error) {
	var where []string
	var args []any

	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if q.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, q.MinConfidence)
	}
	if terms := nonEmptyTerms(q.Terms); len(terms) > 0 {
		clause, a := anyLike([]string{"question", "answer", "keywords"}, terms)
		where = append(where, clause)
		args = append(args, a...)
	}

	candidates, err := s.queryFAQs(ctx, where, args, "id")
	if err != nil {
		return nil, err
	}
	return selectFAQs(candidates, q), nil
}

func (s *SQLiteStorage) GetFAQ(ctx context.Context, id string) (*FAQ, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+faqColumns+" FROM faqs WHERE id = ?", id)
	f, err := scanFAQ(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning faq: %w", err)
	}
	return &f, nil
}

func (s *SQLiteStorage) PopularFAQs(ctx context.Context, limit int) ([]FAQ, error) {
	faqs, err := s.queryFAQs(ctx, []string{"status = ?"}, []any{string(FAQPublished)}, "usage_count DESC, id")
	if err != nil {
		return nil, err
	}
	return capLen(faqs, limit), nil
}

func (s *SQLiteStorage) FAQsByTags(ctx context.Context, tags, excludeIDs []string, limit int) ([]FAQ, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	clause, args := anyLike([]string{"keywords"}, tags)
	where := []string{"status = ?", clause}
	args = append([]any{string(FAQPublished)}, args...)

	candidates, err := s.queryFAQs(ctx, where, args, "id")
	if err != nil {
		return nil, err
	}
	return selectRelatedFAQs(candidates, tags, excludeIDs, limit), nil
}

func (s *SQLiteStorage) SaveFAQ(ctx context.Context, f *FAQ) error {
	if err := f.Validate(); err != nil {
		return err
	}
	keywords, err := encodeList(f.Keywords)
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO faqs (`+faqColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			keywords = excluded.keywords,
			category = excluded.category,
			status = excluded.status,
			confidence = excluded.confidence,
			usage_count = excluded.usage_count,
			helpful_count = excluded.helpful_count,
			not_helpful_count = excluded.not_helpful_count,
			updated_at = excluded.updated_at
	`, f.ID, f.Question, f.Answer, keywords, f.Category, string(f.Status), f.Confidence,
		f.UsageCount, f.HelpfulCount, f.NotHelpfulCount, utc(f.CreatedAt), utc(f.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving faq: %w", err)
	}
	return nil
}

// ==================== Session documents ====================

func (s *SQLiteStorage) SearchDocuments(ctx context.Context, q DocumentQuery) ([]SessionDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, filename, file_type, file_size, status, extracted_text, created_at
		FROM session_documents
		WHERE session_id = ? AND status = ? AND extracted_text IS NOT NULL
			AND `+foldLike("extracted_text")+`
		ORDER BY id
	`, q.SessionID, DocumentCompleted, likePattern(q.Term))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var candidates []SessionDocument
	for rows.Next() {
		var d SessionDocument
		var text sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Filename, &d.FileType, &d.FileSize,
			&d.Status, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if text.Valid {
			d.ExtractedText = &text.String
		}
		d.CreatedAt = createdAt.Time
		candidates = append(candidates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return selectDocuments(candidates, q), nil
}

func (s *SQLiteStorage) SaveDocument(ctx context.Context, d *SessionDocument) error {
	if err := d.Validate(); err != nil {
		return err
	}
	var text sql.NullString
	if d.ExtractedText != nil {
		text = sql.NullString{String: *d.ExtractedText, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_documents (id, session_id, filename, file_type, file_size, status, extracted_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			filename = excluded.filename,
			file_type = excluded.file_type,
			file_size = excluded.file_size,
			status = excluded.status,
			extracted_text = excluded.extracted_text
	`, d.ID, d.SessionID, d.Filename, d.FileType, d.FileSize, d.Status, text, utc(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// ==================== Context records ====================

// SaveContextRecords inserts all records in one transaction.
func (s *SQLiteStorage) SaveContextRecords(ctx context.Context, records []ContextRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO context_records (id, session_id, source_type, source_id, content, relevance_score, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.SessionID, r.SourceType, r.SourceID,
			r.Content, r.RelevanceScore, string(md), utc(r.CreatedAt)); err != nil {
			return fmt.Errorf("inserting context record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing context records: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ContextRecords(ctx context.Context, sessionID string) ([]ContextRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source_type, source_id, content, relevance_score, metadata, created_at
		FROM context_records WHERE session_id = ?
		ORDER BY created_at, rowid
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying context records: %w", err)
	}
	defer rows.Close()

	var out []ContextRecord
	for rows.Next() {
		var r ContextRecord
		var md string
		var createdAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SourceType, &r.SourceID, &r.Content,
			&r.RelevanceScore, &md, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning context record: %w", err)
		}
		if md != "" && md != "null" {
			if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata: %w", err)
			}
		}
		r.CreatedAt = createdAt.Time
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating context records: %w", err)
	}
	return out, nil
}

// ==================== Search logs ====================

func (s *SQLiteStorage) SaveSearchLog(ctx context.Context, log *SearchLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (id, query, total, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, log.ID, log.Query, log.Total, log.ProcessingTimeMs, utc(log.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving search log: %w", err)
	}
	return nil
}

// RecentSearchLogs returns the newest logs first.
func (s *SQLiteStorage) RecentSearchLogs(ctx context.Context, limit int) ([]SearchLog, error) {
	query := `SELECT id, query, total, processing_time_ms, created_at
		FROM search_logs ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying search logs: %w", err)
	}
	defer rows.Close()

	var out []SearchLog
	for rows.Next() {
		var l SearchLog
		var createdAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.Query, &l.Total, &l.ProcessingTimeMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning search log: %w", err)
		}
		l.CreatedAt = createdAt.Time
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search logs: %w", err)
	}
	return out, nil
}
