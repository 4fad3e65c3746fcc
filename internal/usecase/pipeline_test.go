package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScourtNewsBot/internal/composer"
	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

type fakeSource struct {
	pages       [][]domain.NoticeSummary
	details     map[string]domain.NoticeDetail
	detailErr   map[string]error
	listErr     error
	detailCalls int
}

func (f *fakeSource) ListPage(_ context.Context, pageIndex int) ([]domain.NoticeSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if pageIndex-1 >= len(f.pages) {
		return nil, nil
	}
	return f.pages[pageIndex-1], nil
}

func (f *fakeSource) FetchDetail(_ context.Context, summary domain.NoticeSummary) (domain.NoticeDetail, error) {
	f.detailCalls++
	if err := f.detailErr[summary.ID]; err != nil {
		return domain.NoticeDetail{}, err
	}
	if detail, ok := f.details[summary.ID]; ok {
		return detail, nil
	}
	return domain.NoticeDetail{
		ID:        summary.ID,
		Title:     summary.Title,
		BodyText:  "대법원은 " + summary.ID + "호 사건 상고를 기각하였습니다.",
		DetailURL: summary.DetailURL,
	}, nil
}

type fakeExtractor struct {
	errs  map[string]error
	texts map[string]string
	calls int
}

func (f *fakeExtractor) Fetch(_ context.Context, _ string, noticeID string) (domain.ExtractedDocument, error) {
	f.calls++
	if err := f.errs[noticeID]; err != nil {
		return domain.ExtractedDocument{}, err
	}
	return domain.ExtractedDocument{
		Path:      "/tmp/" + noticeID + ".pdf",
		DigestHex: "digest-" + noticeID,
		Text:      f.texts[noticeID],
	}, nil
}

type memoryRepo struct {
	notices map[string]domain.NoticeRecord
	mark    *domain.Watermark
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{notices: map[string]domain.NoticeRecord{}}
}

func (m *memoryRepo) GetNotice(_ context.Context, id string) (*domain.NoticeRecord, error) {
	record, ok := m.notices[id]
	if !ok {
		return nil, nil
	}
	copied := record
	return &copied, nil
}

func (m *memoryRepo) UpsertNotice(_ context.Context, record domain.NoticeRecord) error {
	if existing, ok := m.notices[record.ID]; ok {
		record.SentAt = existing.SentAt
		record.CreatedAt = existing.CreatedAt
	}
	m.notices[record.ID] = record
	return nil
}

func (m *memoryRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	record, ok := m.notices[id]
	if !ok {
		return fmt.Errorf("notice %s not found", id)
	}
	record.SentAt = &at
	record.UpdatedAt = at
	m.notices[id] = record
	return nil
}

func (m *memoryRepo) Watermark(_ context.Context) (*domain.Watermark, error) {
	if m.mark == nil {
		return nil, nil
	}
	copied := *m.mark
	return &copied, nil
}

func (m *memoryRepo) SetWatermark(_ context.Context, lastSeenID int64, at time.Time) error {
	m.mark = &domain.Watermark{LastSeenID: lastSeenID, LastSeenAt: at}
	return nil
}

type fakeNotifier struct {
	sent []domain.ArticleDraft
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, article domain.ArticleDraft) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, article)
	return nil
}

func summaries(ids ...string) []domain.NoticeSummary {
	out := make([]domain.NoticeSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.NoticeSummary{
			ID:         id,
			Number:     id,
			Title:      "사건 " + id + " 보도자료",
			PostedDate: "2025-02-01",
			DetailURL:  "https://example.org/notice?seqnum=" + id,
		})
	}
	return out
}

func newTestPipeline(t *testing.T, source ports.NoticeSource, repo ports.NoticeRepository, notifier ports.Notifier, bootstrap bool) *Pipeline {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return NewPipeline(PipelineDeps{
		Source:            source,
		Extractor:         &fakeExtractor{},
		Repository:        repo,
		Composer:          composer.New("Asia/Seoul", loc),
		Notifier:          notifier,
		Location:          loc,
		DefaultMaxPages:   2,
		BootstrapSkipSend: bootstrap,
	})
}

func TestDecideRegime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                                                   string
		hasWatermark, force, dryRun, bootstrapOn, hasSummaries bool
		want                                                   runRegime
	}{
		{"first run bootstraps", false, false, false, true, true, regimeBootstrap},
		{"bootstrap needs summaries", false, false, false, true, false, regimeFull},
		{"bootstrap disabled", false, false, false, false, true, regimeFull},
		{"dry run never bootstraps", false, false, true, true, true, regimeFull},
		{"force never bootstraps", false, true, false, true, true, regimeFull},
		{"force with watermark", true, true, false, true, true, regimeFull},
		{"steady state", true, false, false, true, true, regimeIncremental},
		{"steady state dry run", true, false, true, true, true, regimeIncremental},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := decideRegime(tc.hasWatermark, tc.force, tc.dryRun, tc.bootstrapOn, tc.hasSummaries)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRunOnceRequiresDeliverySink(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("100")}}
	pipeline := newTestPipeline(t, source, newMemoryRepo(), nil, false)

	_, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Zero(t, source.detailCalls, "aborts before any fetch")

	_, err = pipeline.RunOnce(context.Background(), RunOptions{DryRun: true})
	assert.NoError(t, err, "dry run needs no sink")
}

func TestBootstrapRecordsWatermarkWithoutDelivering(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9003", "9002", "9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, true)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 3, stats.Skipped)
	assert.Zero(t, stats.Sent)
	assert.Zero(t, stats.Processed)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, repo.notices, "bootstrap processes nothing")
	require.NotNil(t, repo.mark)
	assert.Equal(t, int64(9003), repo.mark.LastSeenID)
	assert.Zero(t, source.detailCalls)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9003", "9002", "9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	first, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed)
	assert.Equal(t, 3, first.Sent)

	second, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, second.Sent)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 3, second.Skipped)
	assert.Len(t, notifier.sent, 3)
}

func TestDryRunPersistsWithoutDelivery(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9002", "9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, true)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Zero(t, stats.Sent)
	assert.Empty(t, notifier.sent)
	require.Len(t, repo.notices, 2)
	for _, record := range repo.notices {
		assert.Nil(t, record.SentAt)
		assert.NotEmpty(t, record.ArticleText)
	}
	require.NotNil(t, repo.mark, "non-forced dry run still advances the watermark")
	assert.Equal(t, int64(9002), repo.mark.LastSeenID)
}

func TestPendingDeliveryIsRetriedAfterDryRun(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9002", "9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, true)

	_, err := pipeline.RunOnce(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Sent)
	assert.Len(t, notifier.sent, 2)
	for _, record := range repo.notices {
		assert.NotNil(t, record.SentAt)
	}
}

func TestForcedRunReprocessesEverything(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9002", "9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	_, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	markBefore := repo.mark.LastSeenID

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Sent)
	assert.Len(t, notifier.sent, 4)
	assert.Equal(t, markBefore, repo.mark.LastSeenID, "forced runs do not move the watermark")
}

func TestContentChangeIsReprocessedAndResent(t *testing.T) {
	detail := domain.NoticeDetail{
		ID:        "9001",
		Title:     "사건 9001 보도자료",
		BodyText:  "대법원은 이 사건 상고를 기각하였습니다.",
		DetailURL: "https://example.org/notice?seqnum=9001",
	}
	source := &fakeSource{
		pages:   [][]domain.NoticeSummary{summaries("9001")},
		details: map[string]domain.NoticeDetail{"9001": detail},
	}
	repo := newMemoryRepo()
	sentAt := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	repo.notices["9001"] = domain.NoticeRecord{
		ID:          "9001",
		Title:       detail.Title,
		ContentHash: hashContent(detail.Title, "예전 본문입니다.", ""),
		SentAt:      &sentAt,
		CreatedAt:   sentAt,
		UpdatedAt:   sentAt,
	}
	// Watermark below the item: the record came from a forced run.
	repo.mark = &domain.Watermark{LastSeenID: 8000, LastSeenAt: sentAt}

	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Sent)
	record := repo.notices["9001"]
	assert.Equal(t, hashContent(detail.Title, detail.BodyText, ""), record.ContentHash)
}

func TestUnchangedSentItemIsSkipped(t *testing.T) {
	detail := domain.NoticeDetail{
		ID:        "9001",
		Title:     "사건 9001 보도자료",
		BodyText:  "대법원은 이 사건 상고를 기각하였습니다.",
		DetailURL: "https://example.org/notice?seqnum=9001",
	}
	source := &fakeSource{
		pages:   [][]domain.NoticeSummary{summaries("9001")},
		details: map[string]domain.NoticeDetail{"9001": detail},
	}
	repo := newMemoryRepo()
	sentAt := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	repo.notices["9001"] = domain.NoticeRecord{
		ID:          "9001",
		ContentHash: hashContent(detail.Title, detail.BodyText, ""),
		SentAt:      &sentAt,
	}
	repo.mark = &domain.Watermark{LastSeenID: 8000, LastSeenAt: sentAt}

	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Processed)
	assert.Empty(t, notifier.sent)
}

func TestPerItemFailureIsolation(t *testing.T) {
	ids := summaries("9005", "9004", "9003", "9002", "9001")
	details := map[string]domain.NoticeDetail{}
	for _, s := range ids {
		details[s.ID] = domain.NoticeDetail{
			ID:        s.ID,
			Title:     s.Title,
			BodyText:  "대법원은 " + s.ID + "호 사건 상고를 기각하였습니다.",
			DetailURL: s.DetailURL,
			PDFURL:    "https://example.org/pdf/" + s.ID,
		}
	}
	source := &fakeSource{pages: [][]domain.NoticeSummary{ids}, details: details}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}

	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	pipeline := NewPipeline(PipelineDeps{
		Source:          source,
		Extractor:       &fakeExtractor{errs: map[string]error{"9003": fmt.Errorf("download timeout")}},
		Repository:      repo,
		Composer:        composer.New("Asia/Seoul", loc),
		Notifier:        notifier,
		Location:        loc,
		DefaultMaxPages: 1,
	})

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err, "a single item failure never aborts the run")

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Sent)
	assert.Len(t, notifier.sent, 4)
	_, exists := repo.notices["9003"]
	assert.False(t, exists, "failed item leaves no record")
	require.NotNil(t, repo.mark)
	assert.Equal(t, int64(9005), repo.mark.LastSeenID, "watermark tracks presence, not success")
}

func TestDeliveryFailureKeepsRecordForRetry(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{err: fmt.Errorf("webhook unreachable")}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Sent)

	record, ok := repo.notices["9001"]
	require.True(t, ok, "article persisted before delivery")
	assert.Nil(t, record.SentAt)

	// The webhook recovers; the pending record is retried even though
	// the watermark has moved past it.
	notifier.err = nil
	stats, err = pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.NotNil(t, repo.notices["9001"].SentAt)
}

func TestWatermarkNeverRegresses(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9300")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	_, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(9300), repo.mark.LastSeenID)

	// The source window slides back to older items only.
	source.pages = [][]domain.NoticeSummary{summaries("9100")}
	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, int64(9300), repo.mark.LastSeenID)
}

func TestDedupeKeepsFirstOccurrenceAndSortsAscending(t *testing.T) {
	page1 := summaries("9202", "9201")
	page2 := summaries("9201", "9200")
	page2[0].Title = "중복 항목의 나중 제목"
	source := &fakeSource{pages: [][]domain.NoticeSummary{page1, page2}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	pipeline := newTestPipeline(t, source, repo, notifier, false)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Scanned)
	require.Len(t, notifier.sent, 3)
	assert.Contains(t, notifier.sent[0].DetailURL, "9200")
	assert.Contains(t, notifier.sent[1].DetailURL, "9201")
	assert.Contains(t, notifier.sent[2].DetailURL, "9202")

	// First occurrence (page 1) wins for the duplicated id.
	assert.Equal(t, "사건 9201", notifier.sent[1].Headline)
}

func TestListFetchFailureAbortsRun(t *testing.T) {
	source := &fakeSource{listErr: fmt.Errorf("connection refused")}
	repo := newMemoryRepo()
	pipeline := newTestPipeline(t, source, repo, &fakeNotifier{}, false)

	_, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Nil(t, repo.mark, "no state mutated on fetch-phase failure")
}

func TestNoticeWithoutPDFIsProcessedWithEmptyDocument(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9001")}}
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	extractor := &fakeExtractor{}

	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	pipeline := NewPipeline(PipelineDeps{
		Source:          source,
		Extractor:       extractor,
		Repository:      repo,
		Composer:        composer.New("Asia/Seoul", loc),
		Notifier:        notifier,
		Location:        loc,
		DefaultMaxPages: 1,
	})

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Sent)
	assert.Zero(t, extractor.calls, "no document link, no extraction")
	require.Len(t, notifier.sent, 1)
	assert.Empty(t, notifier.sent[0].PDFURL)
	assert.Empty(t, repo.notices["9001"].PDFDigest)
}

func TestEmptyListPastLastPageIsNotAnError(t *testing.T) {
	source := &fakeSource{pages: [][]domain.NoticeSummary{summaries("9001")}}
	pipeline := newTestPipeline(t, source, newMemoryRepo(), &fakeNotifier{}, false)

	stats, err := pipeline.RunOnce(context.Background(), RunOptions{MaxPages: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Scanned)
}
