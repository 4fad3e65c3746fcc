package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"ScourtNewsBot/internal/composer"
	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source            ports.NoticeSource
	Extractor         ports.DocumentExtractor
	Repository        ports.NoticeRepository
	Composer          *composer.Composer
	Notifier          ports.Notifier
	Logger            *slog.Logger
	Location          *time.Location
	DefaultMaxPages   int
	BootstrapSkipSend bool
}

// RunOptions selects the behavior of a single run.
type RunOptions struct {
	Force    bool
	DryRun   bool
	MaxPages int
}

// Pipeline implements the incremental notice-ingestion workflow.
type Pipeline struct {
	source            ports.NoticeSource
	extractor         ports.DocumentExtractor
	repository        ports.NoticeRepository
	composer          *composer.Composer
	notifier          ports.Notifier
	logger            *slog.Logger
	location          *time.Location
	defaultMaxPages   int
	bootstrapSkipSend bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	maxPages := deps.DefaultMaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	return &Pipeline{
		source:            deps.Source,
		extractor:         deps.Extractor,
		repository:        deps.Repository,
		composer:          deps.Composer,
		notifier:          deps.Notifier,
		logger:            deps.Logger,
		location:          loc,
		defaultMaxPages:   maxPages,
		bootstrapSkipSend: deps.BootstrapSkipSend,
	}
}

// runRegime is the per-run decision computed once from the watermark
// state and flags, then dispatched.
type runRegime int

const (
	regimeIncremental runRegime = iota
	regimeFull
	regimeBootstrap
)

func decideRegime(hasWatermark, force, dryRun, bootstrapEnabled, hasSummaries bool) runRegime {
	if !hasWatermark && !force && !dryRun && bootstrapEnabled && hasSummaries {
		return regimeBootstrap
	}
	if force || !hasWatermark {
		return regimeFull
	}
	return regimeIncremental
}

// RunOnce executes one fetch/detect/compose/persist/notify cycle.
// Individual item failures are counted, not propagated; only the
// configuration precondition and fetch-phase failures abort the run.
func (p *Pipeline) RunOnce(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	var stats domain.RunStats

	if !opts.DryRun && p.notifier == nil {
		return stats, fmt.Errorf("no delivery webhook configured; use dry-run or set TEAMS_WEBHOOK_URL")
	}

	pages := opts.MaxPages
	if pages < 1 {
		pages = p.defaultMaxPages
	}

	var all []domain.NoticeSummary
	for pageIndex := 1; pageIndex <= pages; pageIndex++ {
		summaries, err := p.source.ListPage(ctx, pageIndex)
		if err != nil {
			return stats, fmt.Errorf("fetch list page %d: %w", pageIndex, err)
		}
		p.info("list page fetched", "page", pageIndex, "count", len(summaries))
		all = append(all, summaries...)
	}

	// Pages are ordered newest-first, so the first occurrence of a
	// duplicated id wins.
	seen := map[string]struct{}{}
	deduped := make([]domain.NoticeSummary, 0, len(all))
	for _, summary := range all {
		if _, dup := seen[summary.ID]; dup {
			continue
		}
		seen[summary.ID] = struct{}{}
		deduped = append(deduped, summary)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return numericID(deduped[i].ID) < numericID(deduped[j].ID)
	})

	stats.Scanned = len(deduped)
	now := time.Now().In(p.location)

	mark, err := p.repository.Watermark(ctx)
	if err != nil {
		return stats, fmt.Errorf("load watermark: %w", err)
	}

	regime := decideRegime(mark != nil, opts.Force, opts.DryRun, p.bootstrapSkipSend, len(deduped) > 0)

	if regime == regimeBootstrap {
		highest := highestID(deduped)
		if err := p.repository.SetWatermark(ctx, highest, now); err != nil {
			return stats, fmt.Errorf("bootstrap watermark: %w", err)
		}
		stats.Skipped = len(deduped)
		p.info("bootstrap run: watermark recorded, backlog not delivered",
			"last_seen_id", highest, "skipped", stats.Skipped)
		return stats, nil
	}

	targets := make([]domain.NoticeSummary, 0, len(deduped))
	for _, summary := range deduped {
		if regime == regimeIncremental && numericID(summary.ID) <= mark.LastSeenID {
			// Already-seen items are revisited only while their
			// delivery is pending (dry-run or failed send); the
			// lookup is local and cheap.
			prev, err := p.repository.GetNotice(ctx, summary.ID)
			if err != nil {
				stats.Failed++
				p.error("notice state lookup failed", "notice_id", summary.ID, "error", err)
				continue
			}
			if prev == nil || prev.SentAt != nil {
				stats.Skipped++
				continue
			}
		}
		targets = append(targets, summary)
	}

	for _, summary := range targets {
		if err := p.processItem(ctx, summary, opts, now, &stats); err != nil {
			stats.Failed++
			p.error("notice processing failed", "notice_id", summary.ID, "error", err)
		}
	}

	// The watermark tracks presence, not success: permanently failing
	// items must not come back via watermark regression.
	if !opts.Force && len(deduped) > 0 {
		highest := highestID(deduped)
		if mark != nil && mark.LastSeenID > highest {
			highest = mark.LastSeenID
		}
		if err := p.repository.SetWatermark(ctx, highest, now); err != nil {
			return stats, fmt.Errorf("advance watermark: %w", err)
		}
	}

	return stats, nil
}

func (p *Pipeline) processItem(ctx context.Context, summary domain.NoticeSummary, opts RunOptions, now time.Time, stats *domain.RunStats) error {
	detail, err := p.source.FetchDetail(ctx, summary)
	if err != nil {
		return fmt.Errorf("fetch detail: %w", err)
	}

	pdfDigest := ""
	pdfText := ""
	if detail.PDFURL != "" {
		doc, err := p.extractor.Fetch(ctx, detail.PDFURL, summary.ID)
		if err != nil {
			return fmt.Errorf("extract document: %w", err)
		}
		pdfDigest = doc.DigestHex
		pdfText = doc.Text
	} else {
		p.warn("no pdf attachment", "notice_id", summary.ID)
	}

	draft := p.composer.Compose(summary, detail, pdfText)
	contentHash := hashContent(detail.Title, detail.BodyText, pdfDigest)

	prev, err := p.repository.GetNotice(ctx, summary.ID)
	if err != nil {
		return fmt.Errorf("load notice state: %w", err)
	}
	if prev != nil && prev.ContentHash == contentHash && prev.SentAt != nil && !opts.Force {
		stats.Skipped++
		return nil
	}

	// Persisted even in dry-run and ahead of delivery: the composed
	// article is a durable artifact of having processed the item, and
	// sent_at stays null until delivery succeeds.
	record := domain.NoticeRecord{
		ID:          summary.ID,
		Title:       detail.Title,
		PostedDate:  summary.PostedDate,
		DetailURL:   summary.DetailURL,
		PDFURL:      detail.PDFURL,
		PDFDigest:   pdfDigest,
		ContentHash: contentHash,
		ArticleText: draft.RenderText(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.repository.UpsertNotice(ctx, record); err != nil {
		return fmt.Errorf("persist notice: %w", err)
	}
	stats.Processed++

	if opts.DryRun {
		p.info("dry run: article generated", "notice_id", summary.ID, "title", detail.Title)
		return nil
	}

	if err := p.notifier.Send(ctx, draft); err != nil {
		return fmt.Errorf("deliver article: %w", err)
	}
	if err := p.repository.MarkSent(ctx, summary.ID, now); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	stats.Sent++
	p.info("article delivered", "notice_id", summary.ID, "title", detail.Title)
	return nil
}

// hashContent is the idempotence key: an item is unchanged as long as
// its title, body text, and document digest are unchanged.
func hashContent(title, bodyText, pdfDigest string) string {
	sum := sha256.Sum256([]byte(title + "\n" + bodyText + "\n" + pdfDigest))
	return hex.EncodeToString(sum[:])
}

// numericID parses the notice id for ordering; unparsable ids sort as zero.
func numericID(id string) int64 {
	parsed, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func highestID(summaries []domain.NoticeSummary) int64 {
	var highest int64
	for _, summary := range summaries {
		if id := numericID(summary.ID); id > highest {
			highest = id
		}
	}
	return highest
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) error(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
