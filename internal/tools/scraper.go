package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// maxPageText limits the article text carried in a step event.
const maxPageText = 50000

type readablePage struct {
	URL     string
	Title   string
	Excerpt string
	Text    string
}

func (p readablePage) data() map[string]any {
	return map[string]any{
		"url":     p.URL,
		"title":   p.Title,
		"excerpt": p.Excerpt,
		"text":    p.Text,
	}
}

// extractReadable runs readability over an HTML document and strips any
// markup left in the text.
func extractReadable(r io.Reader, pageURL string) (readablePage, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return readablePage{}, fmt.Errorf("failed to parse URL: %v", err)
	}
	article, err := readability.FromReader(r, parsed)
	if err != nil {
		return readablePage{}, fmt.Errorf("failed to parse article: %v", err)
	}

	p := bluemonday.StrictPolicy()
	text := p.Sanitize(article.TextContent)
	if len(text) > maxPageText {
		text = clip(text, maxPageText) + "\n... (content truncated) ..."
	}
	return readablePage{
		URL:     pageURL,
		Title:   p.Sanitize(article.Title),
		Excerpt: p.Sanitize(article.Excerpt),
		Text:    text,
	}, nil
}

// FetchPageTool downloads a page over HTTP and returns its readable text.
type FetchPageTool struct {
	Client    *http.Client
	UserAgent string
}

func NewFetchPageTool() *FetchPageTool {
	return &FetchPageTool{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	}
}

func (s *FetchPageTool) Name() string {
	return "fetch_page"
}

func (s *FetchPageTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *FetchPageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL of the page to read",
			},
		},
		"required": []string{"url"},
	}
}

func (s *FetchPageTool) Execute(ctx context.Context, params Params) Result {
	target := NormalizeURL(params.String("url"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Failure(KindInvalidParams, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return Failure(KindExecution, "failed to fetch %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Failure(KindExecution, "failed to fetch %s: status code %d", target, resp.StatusCode)
	}

	page, err := extractReadable(resp.Body, target)
	if err != nil {
		return Failure(KindExecution, "%v", err)
	}
	return Success(fmt.Sprintf("Fetched %q (%d chars)", page.Title, len(page.Text)), page.data())
}
