package composer

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"ScourtNewsBot/internal/domain"
)

const (
	// Segments shorter than this are stray fragments or section markers.
	minSentenceLen = 16
	// Short sentences without a sentence-final verb ending are table
	// labels or headers, not prose.
	minInformativeLen = 40
	bodyBudget        = 1000
	maxBodySentences  = 6
	scoredLimit       = 6
	keywordWeight     = 2
)

// keywords covers the judicial-process vocabulary used to score
// document sentences.
var keywords = []string{
	"대법원", "판결", "선고", "사건", "상고", "기각", "인용", "파기", "확정",
}

// noiseMarkers flags boilerplate: press-office contacts, phone/fax
// lines, and detail-page section headings.
var noiseMarkers = []string{
	"공보관실", "전화", "팩스", "☎", "문의",
	"사건의 개요", "쟁점 및 판단",
}

// sentenceEndings are the verb endings that mark a complete short
// sentence, exempting it from the minimum-informative-length rule.
var sentenceEndings = []string{
	"다.", "입니다.", "였습니다.", "하였습니다.", "습니다.", "였음.",
}

var (
	sentenceBreakExpr = regexp.MustCompile(`([.!?])\s+`)
	newlineRunExpr    = regexp.MustCompile(`\n+`)
	pageFooterExpr    = regexp.MustCompile(`-\s*\d+\s*-`)
)

// Composer turns a notice summary, its detail record, and extracted
// document text into a bounded article draft.
type Composer struct {
	zone string
	loc  *time.Location
	now  func() time.Time
}

// New binds the composer to the timezone used for the collection timestamp.
func New(zone string, loc *time.Location) *Composer {
	if loc == nil {
		loc = time.UTC
	}
	return &Composer{zone: zone, loc: loc, now: time.Now}
}

// Compose builds the article draft. It is total: when every heuristic
// yields nothing it falls back to the raw detail body or the summary title.
func (c *Composer) Compose(summary domain.NoticeSummary, detail domain.NoticeDetail, docText string) domain.ArticleDraft {
	detailSentences := nonNoiseSentences(detail.BodyText)
	docSentences := topScoredSentences(docText, scoredLimit)

	body := composeBody(detailSentences, docSentences)
	if body == "" {
		raw := normalize(detail.BodyText)
		if raw == "" {
			raw = normalize(summary.Title)
		}
		body = truncate(raw, bodyBudget)
	}

	collected := c.now().In(c.loc).Format("2006-01-02 15:04:05")

	return domain.ArticleDraft{
		Headline:    headlineFromTitle(detail.Title),
		Body:        body,
		PostedDate:  summary.PostedDate,
		DetailURL:   detail.DetailURL,
		PDFURL:      detail.PDFURL,
		CollectedAt: collected + " (" + c.zone + ")",
	}
}

// normalize collapses every whitespace run, newlines included, to a
// single space. All length and equality checks use this form.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitSentences segments on sentence-final punctuation followed by
// whitespace, or on any newline run, then drops fragments below the
// minimum sentence length.
func splitSentences(text string) []string {
	marked := sentenceBreakExpr.ReplaceAllString(text, "$1\n")
	chunks := newlineRunExpr.Split(marked, -1)

	sentences := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		normalized := normalize(chunk)
		if utf8.RuneCountInString(normalized) < minSentenceLen {
			continue
		}
		sentences = append(sentences, normalized)
	}
	return sentences
}

func isNoise(sentence string) bool {
	for _, marker := range noiseMarkers {
		if strings.Contains(sentence, marker) {
			return true
		}
	}
	if pageFooterExpr.MatchString(sentence) {
		return true
	}

	if utf8.RuneCountInString(sentence) >= minInformativeLen {
		return false
	}
	for _, ending := range sentenceEndings {
		if strings.HasSuffix(sentence, ending) {
			return false
		}
	}
	return true
}

func nonNoiseSentences(text string) []string {
	var kept []string
	for _, sentence := range splitSentences(text) {
		if isNoise(sentence) {
			continue
		}
		kept = append(kept, sentence)
	}
	return kept
}

func scoreSentence(sentence string) int {
	score := 0
	for _, keyword := range keywords {
		if strings.Contains(sentence, keyword) {
			score += keywordWeight
		}
	}
	bonus := utf8.RuneCountInString(sentence) / minInformativeLen
	if bonus > 2 {
		bonus = 2
	}
	return score + bonus
}

// topScoredSentences ranks the document's non-noise sentences by
// keyword density and length, keeping encounter order on ties.
func topScoredSentences(text string, limit int) []string {
	candidates := nonNoiseSentences(text)
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		sentence string
		score    int
	}
	ranked := make([]scored, 0, len(candidates))
	for _, sentence := range candidates {
		ranked = append(ranked, scored{sentence: sentence, score: scoreSentence(sentence)})
	}

	// Stable insertion sort keeps encounter order on equal scores.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	selected := make([]string, 0, limit)
	seen := map[string]struct{}{}
	for _, item := range ranked {
		if _, dup := seen[item.sentence]; dup {
			continue
		}
		seen[item.sentence] = struct{}{}
		selected = append(selected, item.sentence)
		if len(selected) == limit {
			break
		}
	}
	return selected
}

// composeBody joins sentences from the primary list (or the fallback
// when the primary is empty) while the result stays within the body
// budget. The first sentence alone is truncated to fit when nothing
// else would.
func composeBody(primary, fallback []string) string {
	sentences := primary
	if len(sentences) == 0 {
		sentences = fallback
	}

	var builder strings.Builder
	length := 0
	appended := 0
	seen := map[string]struct{}{}

	for _, sentence := range sentences {
		if appended == maxBodySentences {
			break
		}
		if _, dup := seen[sentence]; dup {
			continue
		}
		seen[sentence] = struct{}{}

		runes := utf8.RuneCountInString(sentence)
		next := length + runes
		if appended > 0 {
			next++ // joining space
		}
		if next > bodyBudget {
			if appended == 0 {
				return truncate(sentence, bodyBudget)
			}
			break
		}

		if appended > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(sentence)
		length = next
		appended++
	}

	return builder.String()
}

// truncate keeps full characters up to budget-1 and appends an
// ellipsis when the text exceeds the budget.
func truncate(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return strings.TrimRight(string(runes[:budget-1]), " ") + "…"
}

// headlineFromTitle normalizes the detail title and strips a trailing
// press-release marker token.
func headlineFromTitle(title string) string {
	cleaned := normalize(title)
	if strings.HasSuffix(cleaned, " 보도자료") {
		cleaned = strings.TrimRight(strings.TrimSuffix(cleaned, " 보도자료"), " ")
	} else if strings.HasSuffix(cleaned, "보도자료") {
		cleaned = strings.TrimRight(strings.TrimSuffix(cleaned, "보도자료"), " ")
	}
	return cleaned
}
