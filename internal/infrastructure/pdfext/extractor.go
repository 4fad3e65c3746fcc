package pdfext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

const extractPageLimit = 8

// Extractor downloads an attachment to disk, digests the raw bytes,
// and extracts text best-effort. A file with no extractable text is
// not an error; download and storage failures are.
type Extractor struct {
	dir       string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

var _ ports.DocumentExtractor = (*Extractor)(nil)

// NewExtractor stores downloads under dir.
func NewExtractor(dir, userAgent string, httpClient *http.Client, logger *slog.Logger) *Extractor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Extractor{dir: dir, userAgent: userAgent, client: httpClient, logger: logger}
}

// Fetch downloads documentURL to <dir>/<noticeID>.pdf and returns the
// digest and extracted text. The file is re-downloaded on every call.
func (e *Extractor) Fetch(ctx context.Context, documentURL, noticeID string) (domain.ExtractedDocument, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return domain.ExtractedDocument{}, fmt.Errorf("create pdf dir: %w", err)
	}
	outputPath := filepath.Join(e.dir, noticeID+".pdf")

	digest, err := e.download(ctx, documentURL, outputPath)
	if err != nil {
		return domain.ExtractedDocument{}, fmt.Errorf("download %s: %w", noticeID, err)
	}

	text, err := extractText(outputPath, extractPageLimit)
	if err != nil {
		// Unreadable PDFs degrade to an empty text, not a failed item.
		if e.logger != nil {
			e.logger.Warn("pdf text extraction failed", "notice_id", noticeID, "error", err)
		}
		text = ""
	}

	return domain.ExtractedDocument{Path: outputPath, DigestHex: digest, Text: text}, nil
}

func (e *Extractor) download(ctx context.Context, documentURL, outputPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document returned %s", resp.Status)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	hasher := sha256.New()
	_, err = io.Copy(io.MultiWriter(file, hasher), resp.Body)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// extractText reads up to maxPages pages of text. The pdf library
// panics on some malformed files, so the whole walk is guarded.
func extractText(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	if total > maxPages {
		total = maxPages
	}

	var parts []string
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText != "" {
			parts = append(parts, pageText)
		}
	}

	return strings.Join(parts, "\n"), nil
}
