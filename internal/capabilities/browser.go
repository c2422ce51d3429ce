package capabilities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// PageRenderer drives a shared headless browser for pages whose content
// only exists after script execution. The browser is started lazily on
// first use and reused across invocations.
type PageRenderer struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	Timeout       time.Duration
}

func NewPageRenderer() *PageRenderer {
	return &PageRenderer{Timeout: 60 * time.Second}
}

func (r *PageRenderer) init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		select {
		case <-r.browserCtx.Done():
			r.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	r.browserCtx, r.browserCancel = chromedp.NewContext(r.allocCtx)

	return chromedp.Run(r.browserCtx)
}

func (r *PageRenderer) cleanup() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx = nil
	r.allocCtx = nil
}

// Close shuts the browser down.
func (r *PageRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup()
}

// ExtractTable loads the page, waits for a table element, and returns
// its cells row by row.
func (r *PageRenderer) ExtractTable(ctx context.Context, pageURL string) ([]any, error) {
	if err := r.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %v", err)
	}

	actionCtx, cancel := context.WithTimeout(r.browserCtx, r.Timeout)
	defer cancel()

	// Rows come back as [][]string straight from the DOM.
	var raw [][]string
	script := `Array.from(document.querySelectorAll("table tr")).map(tr =>
		Array.from(tr.querySelectorAll("td,th")).map(c => c.innerText.trim())
	).filter(r => r.length > 0)`

	err := chromedp.Run(actionCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("table", chromedp.ByQuery),
		chromedp.Evaluate(script, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("rendered extraction failed: %v", err)
	}

	rows := make([]any, 0, len(raw))
	for _, cells := range raw {
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		rows = append(rows, row)
	}
	return rows, nil
}
