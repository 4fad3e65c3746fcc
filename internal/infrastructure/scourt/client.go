package scourt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

const defaultBaseURL = "https://www.scourt.go.kr"

// Client scrapes the court press-release list and detail pages.
// The site serves EUC-KR, so responses are decoded before parsing.
type Client struct {
	listURL   string
	gubun     string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.NoticeSource = (*Client)(nil)

// NewClient wires an HTTP client; a nil client gets a 20s timeout default.
func NewClient(listURL, gubun, userAgent string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		listURL:   listURL,
		gubun:     gubun,
		userAgent: userAgent,
		client:    httpClient,
		logger:    logger,
	}
}

// ListPage fetches one page of the press-release list. Pages past the
// end produce an empty slice, not an error.
func (c *Client) ListPage(ctx context.Context, pageIndex int) ([]domain.NoticeSummary, error) {
	pageURL, err := url.Parse(c.listURL)
	if err != nil {
		return nil, fmt.Errorf("invalid list url %s: %w", c.listURL, err)
	}
	query := pageURL.Query()
	query.Set("gubun", c.gubun)
	query.Set("pageIndex", strconv.Itoa(pageIndex))
	pageURL.RawQuery = query.Encode()

	doc, err := c.fetchDocument(ctx, pageURL.String())
	if err != nil {
		return nil, fmt.Errorf("list page %d: %w", pageIndex, err)
	}

	summaries := parseList(doc, c.logger)
	c.debug("list page fetched", "page", pageIndex, "count", len(summaries))
	return summaries, nil
}

// FetchDetail loads the detail page for one summary.
func (c *Client) FetchDetail(ctx context.Context, summary domain.NoticeSummary) (domain.NoticeDetail, error) {
	doc, err := c.fetchDocument(ctx, summary.DetailURL)
	if err != nil {
		return domain.NoticeDetail{}, fmt.Errorf("detail %s: %w", summary.ID, err)
	}
	return parseDetail(doc, summary), nil
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scourt returned %s", resp.Status)
	}

	// Invalid EUC-KR bytes decode to replacement characters rather
	// than failing the whole page.
	decoded := transform.NewReader(resp.Body, korean.EUCKR.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func parseList(doc *goquery.Document, logger *slog.Logger) []domain.NoticeSummary {
	var summaries []domain.NoticeSummary

	doc.Find("table.tableHor tbody tr").Each(func(_ int, row *goquery.Selection) {
		titleLink := row.Find("td.tit a").First()
		numberCell := row.Find("td.mhid").First()
		cells := row.Find("td")
		if titleLink.Length() == 0 || numberCell.Length() == 0 || cells.Length() < 3 {
			return
		}

		href := strings.TrimSpace(titleLink.AttrOr("href", ""))
		if href == "" {
			return
		}
		detailURL := resolveURL(href)

		noticeID := extractSeqnum(detailURL)
		if noticeID == "" {
			if logger != nil {
				logger.Warn("seqnum missing in detail url", "url", detailURL)
			}
			return
		}

		summaries = append(summaries, domain.NoticeSummary{
			ID:         noticeID,
			Number:     clean(numberCell.Text()),
			Title:      clean(titleLink.Text()),
			PostedDate: clean(cells.Eq(cells.Length() - 1).Text()),
			DetailURL:  detailURL,
		})
	})

	return summaries
}

func parseDetail(doc *goquery.Document, summary domain.NoticeSummary) domain.NoticeDetail {
	title := summary.Title
	doc.Find("table.tableVer tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return true
		}
		if clean(th.Text()) == "제목" {
			title = clean(td.Text())
			return false
		}
		return true
	})

	bodyText := ""
	if bodyCell := doc.Find("td.contArea").First(); bodyCell.Length() > 0 {
		bodyText = blockText(bodyCell)
	}

	var attachments []string
	doc.Find("td.attTxt a").Each(func(_ int, anchor *goquery.Selection) {
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		if href == "" {
			return
		}
		attachments = append(attachments, resolveURL(href))
	})

	pdfURL := ""
	for _, attachment := range attachments {
		lowered := strings.ToLower(attachment)
		if strings.Contains(lowered, ".pdf") || strings.Contains(lowered, "attachdownload") {
			pdfURL = attachment
			break
		}
	}

	return domain.NoticeDetail{
		ID:             summary.ID,
		Title:          title,
		BodyText:       bodyText,
		DetailURL:      summary.DetailURL,
		AttachmentURLs: attachments,
		PDFURL:         pdfURL,
	}
}

// blockText joins the text of each child block with newlines so the
// composer can segment on block boundaries.
func blockText(sel *goquery.Selection) string {
	var parts []string
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		text := strings.TrimSpace(node.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func resolveURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(defaultBaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func extractSeqnum(detailURL string) string {
	parsed, err := url.Parse(detailURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Query().Get("seqnum"))
}

func clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
