package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ScourtNewsBot/internal/domain"
	"ScourtNewsBot/internal/ports"
)

// Notifier delivers composed articles to a Teams incoming webhook as
// MessageCard payloads.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the webhook endpoint.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type messageCard struct {
	Type            string    `json:"@type"`
	Context         string    `json:"@context"`
	Summary         string    `json:"summary"`
	ThemeColor      string    `json:"themeColor"`
	Title           string    `json:"title"`
	Sections        []section `json:"sections"`
	PotentialAction []action  `json:"potentialAction"`
}

type section struct {
	ActivityTitle string `json:"activityTitle"`
	Text          string `json:"text"`
	Markdown      bool   `json:"markdown"`
}

type action struct {
	Type    string   `json:"@type"`
	Name    string   `json:"name"`
	Targets []target `json:"targets"`
}

type target struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// Send posts the article as a MessageCard. The PDF button is omitted
// when the notice carries no document link.
func (n *Notifier) Send(ctx context.Context, article domain.ArticleDraft) error {
	if n.webhookURL == "" || n.client == nil {
		return fmt.Errorf("teams notifier misconfigured")
	}

	card := messageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    article.Headline,
		ThemeColor: "005A9C",
		Title:      "대법원 판결 보도자료 브리핑",
		Sections: []section{
			{
				ActivityTitle: fmt.Sprintf("**%s**", article.Headline),
				Text:          article.Body,
				Markdown:      true,
			},
		},
		PotentialAction: []action{
			{
				Type:    "OpenUri",
				Name:    "보도자료 상세 보기",
				Targets: []target{{OS: "default", URI: article.DetailURL}},
			},
		},
	}
	if article.PDFURL != "" {
		card.PotentialAction = append(card.PotentialAction, action{
			Type:    "OpenUri",
			Name:    "첨부 PDF 열기",
			Targets: []target{{OS: "default", URI: article.PDFURL}},
		})
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal message card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("teams error: %s", resp.Status)
	}

	return nil
}
