package domain

import (
	"fmt"
	"time"
)

// NoticeSummary is a single row of the press-release list page.
// ID is the numeric seqnum string; it doubles as the ordering key.
type NoticeSummary struct {
	ID         string
	Number     string
	Title      string
	PostedDate string
	DetailURL  string
}

// NoticeDetail carries the full detail page for one notice.
type NoticeDetail struct {
	ID             string
	Title          string
	BodyText       string
	DetailURL      string
	AttachmentURLs []string
	PDFURL         string
}

// ExtractedDocument is the result of downloading and text-extracting
// one attachment. Text may be empty when extraction yielded nothing.
type ExtractedDocument struct {
	Path      string
	DigestHex string
	Text      string
}

// ArticleDraft is the composed article for one notice. Body is bounded
// by the composer's character budget.
type ArticleDraft struct {
	Headline    string
	Body        string
	PostedDate  string
	DetailURL   string
	PDFURL      string
	CollectedAt string
}

// RenderText formats the draft into the text block that is persisted
// and delivered to the webhook.
func (a ArticleDraft) RenderText() string {
	pdfURL := a.PDFURL
	if pdfURL == "" {
		pdfURL = "첨부 PDF 없음"
	}
	return fmt.Sprintf(
		"[대법원 판결 보도자료 기사형 요약]\n\n"+
			"제목: %s\n\n"+
			"본문\n%s\n\n"+
			"원문 정보\n"+
			"- 게시일: %s\n"+
			"- 보도자료 상세: %s\n"+
			"- PDF: %s\n"+
			"- 수집 시각: %s",
		a.Headline, a.Body, a.PostedDate, a.DetailURL, pdfURL, a.CollectedAt)
}

// NoticeRecord is the persisted processing state for one notice.
// SentAt is nil until the article has been delivered at least once.
type NoticeRecord struct {
	ID          string
	Title       string
	PostedDate  string
	DetailURL   string
	PDFURL      string
	PDFDigest   string
	ContentHash string
	ArticleText string
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Watermark marks the highest notice id ever considered seen.
// It is monotonically non-decreasing across non-forced runs.
type Watermark struct {
	LastSeenID int64
	LastSeenAt time.Time
}

// RunStats aggregates counters for a single pipeline run.
type RunStats struct {
	Scanned   int
	Processed int
	Sent      int
	Skipped   int
	Failed    int
}
