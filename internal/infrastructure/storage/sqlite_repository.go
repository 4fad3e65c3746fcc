package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteRepository persists notice state and the watermark in a local
// SQLite file. SQLite supports a single writer, so the pool is capped
// at one connection.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.NoticeRepository = (*SQLiteRepository)(nil)

// Open creates or opens the database at path and applies the schema.
// Safe to call repeatedly.
func Open(path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying connection.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// GetNotice loads the persisted record for id, or nil when the notice
// has never been processed.
func (r *SQLiteRepository) GetNotice(ctx context.Context, id string) (*domain.NoticeRecord, error) {
	query, args, err := sq.Select(
		"notice_id", "title", "posted_date", "detail_url",
		"pdf_url", "pdf_digest", "content_hash", "article_text",
		"sent_at", "created_at", "updated_at",
	).From("notices").Where(sq.Eq{"notice_id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var (
		record    domain.NoticeRecord
		pdfURL    sql.NullString
		pdfDigest sql.NullString
		sentAt    sql.NullTime
	)
	row := r.db.QueryRowContext(ctx, query, args...)
	err = row.Scan(
		&record.ID, &record.Title, &record.PostedDate, &record.DetailURL,
		&pdfURL, &pdfDigest, &record.ContentHash, &record.ArticleText,
		&sentAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan notice %s: %w", id, err)
	}

	record.PDFURL = pdfURL.String
	record.PDFDigest = pdfDigest.String
	if sentAt.Valid {
		t := sentAt.Time
		record.SentAt = &t
	}
	return &record, nil
}

// UpsertNotice inserts or updates every field of the record except
// sent_at, which only MarkSent touches.
func (r *SQLiteRepository) UpsertNotice(ctx context.Context, record domain.NoticeRecord) error {
	query, args, err := sq.Insert("notices").
		Columns(
			"notice_id", "title", "posted_date", "detail_url",
			"pdf_url", "pdf_digest", "content_hash", "article_text",
			"created_at", "updated_at",
		).
		Values(
			record.ID, record.Title, record.PostedDate, record.DetailURL,
			nullable(record.PDFURL), nullable(record.PDFDigest),
			record.ContentHash, record.ArticleText,
			record.UpdatedAt, record.UpdatedAt,
		).
		Suffix(`ON CONFLICT(notice_id) DO UPDATE SET
			title = excluded.title,
			posted_date = excluded.posted_date,
			detail_url = excluded.detail_url,
			pdf_url = excluded.pdf_url,
			pdf_digest = excluded.pdf_digest,
			content_hash = excluded.content_hash,
			article_text = excluded.article_text,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert notice %s: %w", record.ID, err)
	}
	return nil
}

// MarkSent records a successful delivery timestamp.
func (r *SQLiteRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query, args, err := sq.Update("notices").
		Set("sent_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"notice_id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark sent: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	return nil
}

// Watermark returns the stored watermark, or nil before the first run.
func (r *SQLiteRepository) Watermark(ctx context.Context) (*domain.Watermark, error) {
	query, args, err := sq.Select("last_seen_id", "last_seen_at").
		From("watermark").Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build watermark select: %w", err)
	}

	var mark domain.Watermark
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&mark.LastSeenID, &mark.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan watermark: %w", err)
	}
	return &mark, nil
}

// SetWatermark stores the highest seen notice id in the single-row table.
func (r *SQLiteRepository) SetWatermark(ctx context.Context, lastSeenID int64, at time.Time) error {
	query, args, err := sq.Insert("watermark").
		Columns("id", "last_seen_id", "last_seen_at").
		Values(1, lastSeenID, at).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			last_seen_id = excluded.last_seen_id,
			last_seen_at = excluded.last_seen_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build watermark upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
