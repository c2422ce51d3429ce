package capabilities

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nsharma/weft/internal/engine"
)

// WebpageExtractor implements the extract_webpage capability: fetch a
// URL, pull the main content out, and parse any tabular data into rows.
// JavaScript-rendered pages fall back to a headless browser when a
// renderer is attached.
type WebpageExtractor struct {
	UserAgent string
	Client    *http.Client
	Renderer  *PageRenderer
	MaxChars  int
}

func NewWebpageExtractor(renderer *PageRenderer) *WebpageExtractor {
	return &WebpageExtractor{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
		Renderer:  renderer,
		MaxChars:  50000,
	}
}

func (w *WebpageExtractor) Capability() *engine.Capability {
	return &engine.Capability{
		Name:        "extract_webpage",
		Description: "Fetch a webpage URL, extract the main content as clean text, and parse any data table into rows.",
		Required:    []string{"url"},
		OutputKeys: map[string]string{
			"markdown": "extracted_content",
			"rows":     "data_rows",
		},
		Invoke: w.invoke,
	}
}

func (w *WebpageExtractor) invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	pageURL, ok := args["url"].(string)
	if !ok || pageURL == "" {
		return nil, &engine.CapabilityError{Message: "url must be a non-empty string"}
	}

	text, err := w.fetchReadable(ctx, pageURL)
	if err != nil {
		return nil, &engine.CapabilityError{Message: err.Error()}
	}

	rows := ParseTableRows(text)

	// Static extraction often misses script-rendered tables. Retry with
	// the headless browser before giving up on rows.
	if len(rows) < 2 && w.Renderer != nil {
		rendered, rerr := w.Renderer.ExtractTable(ctx, pageURL)
		if rerr != nil {
			// Keep the static extraction; rows are best-effort.
			return map[string]any{
				"markdown": text,
				"rows":     rows,
				"url":      pageURL,
			}, nil
		}
		if len(rendered) >= 2 {
			rows = rendered
		}
	}

	return map[string]any{
		"markdown": text,
		"rows":     rows,
		"url":      pageURL,
	}, nil
}

func (w *WebpageExtractor) fetchReadable(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", w.UserAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %v", err)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %v", err)
	}

	p := bluemonday.StrictPolicy()
	sanitized := p.Sanitize(article.TextContent)

	var sb strings.Builder
	if article.Title != "" {
		sb.WriteString(article.Title + "\n\n")
	}
	content := sanitized
	if len(content) > w.MaxChars {
		content = content[:w.MaxChars] + "\n... (content truncated) ..."
	}
	sb.WriteString(content)
	return sb.String(), nil
}

// ParseTableRows pulls pipe-delimited table rows out of extracted text.
// Separator lines like |---|---| are dropped.
func ParseTableRows(text string) []any {
	var rows []any
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.Contains(trimmed, "|") || strings.HasPrefix(trimmed, "|-") {
			continue
		}
		var cells []any
		for _, cell := range strings.Split(trimmed, "|") {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if strings.Trim(cell, "-: ") == "" {
				cells = nil
				break
			}
			cells = append(cells, cell)
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}
