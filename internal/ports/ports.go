package ports

import (
	"context"
	"time"

	"ScourtNewsBot/internal/domain"
)

// NoticeSource pulls press-release summaries and details from the court site.
// ListPage returns an empty slice past the last page, not an error.
type NoticeSource interface {
	ListPage(ctx context.Context, pageIndex int) ([]domain.NoticeSummary, error)
	FetchDetail(ctx context.Context, summary domain.NoticeSummary) (domain.NoticeDetail, error)
}

// DocumentExtractor downloads an attachment and extracts its text.
// Missing extractable text is not an error (empty Text); download or
// storage failures are.
type DocumentExtractor interface {
	Fetch(ctx context.Context, documentURL, noticeID string) (domain.ExtractedDocument, error)
}

// NoticeRepository persists per-notice processing state and the watermark.
type NoticeRepository interface {
	GetNotice(ctx context.Context, id string) (*domain.NoticeRecord, error)
	UpsertNotice(ctx context.Context, record domain.NoticeRecord) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	Watermark(ctx context.Context) (*domain.Watermark, error)
	SetWatermark(ctx context.Context, lastSeenID int64, at time.Time) error
}

// Notifier delivers a composed article to the downstream channel.
type Notifier interface {
	Send(ctx context.Context, article domain.ArticleDraft) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
