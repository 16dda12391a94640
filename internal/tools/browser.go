package tools

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

const browserActionTimeout = 60 * time.Second

// Browser owns one long-lived Chrome session shared by the browser_* tools,
// so a navigate in one step is visible to a click in the next.
type Browser struct {
	mu            sync.Mutex
	headless      bool
	screenshotDir string
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowser(headless bool, screenshotDir string) *Browser {
	return &Browser{headless: headless, screenshotDir: screenshotDir}
}

func (b *Browser) session() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return b.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	if err := chromedp.Run(b.browserCtx); err != nil {
		b.cleanup()
		return nil, err
	}
	return b.browserCtx, nil
}

func (b *Browser) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close shuts the browser down if it was ever started.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

// run executes actions against the shared session. The step context and a
// per-action timeout both bound the call.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	sess, err := b.session()
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	actionCtx, cancel := context.WithTimeout(sess, browserActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(actionCtx, actions...)
}

func (b *Browser) pageHTML(ctx context.Context) (string, string, error) {
	var html, location string
	err := b.run(ctx,
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	return html, location, err
}

// browserTool adapts one browser action to the Tool interface.
type browserTool struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, params Params) Result
}

func (t *browserTool) Name() string {
	return t.name
}

func (t *browserTool) Description() string {
	return t.description
}

func (t *browserTool) Parameters() map[string]any {
	return t.schema
}

func (t *browserTool) Execute(ctx context.Context, params Params) Result {
	return t.run(ctx, params)
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

var selectorProp = map[string]any{"type": "string", "description": "CSS selector of the target element"}

// NormalizeURL adds https:// when a bare domain is given.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}

// NewBrowserTools returns the browser_* tools bound to b.
func NewBrowserTools(b *Browser) []Tool {
	return []Tool{
		&browserTool{
			name:        "browser_navigate",
			description: "Open a URL in the automation browser.",
			schema:      objectSchema(map[string]any{"url": map[string]any{"type": "string"}}, "url"),
			run: func(ctx context.Context, params Params) Result {
				target := NormalizeURL(params.String("url"))
				if _, err := url.ParseRequestURI(target); err != nil {
					return Failure(KindInvalidParams, "Navigation failed: invalid url %q", target)
				}
				var title string
				if err := b.run(ctx, chromedp.Navigate(target), chromedp.Title(&title)); err != nil {
					return Failure(KindExecution, "Navigation failed: %v", err)
				}
				return Success(fmt.Sprintf("Navigated to %s", target), map[string]any{"url": target, "title": title})
			},
		},
		&browserTool{
			name:        "browser_click",
			description: "Click the element matching a CSS selector.",
			schema:      objectSchema(map[string]any{"selector": selectorProp}, "selector"),
			run: func(ctx context.Context, params Params) Result {
				sel := params.String("selector")
				if err := b.run(ctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
					return Failure(KindExecution, "Click failed: %v", err)
				}
				return Success(fmt.Sprintf("Clicked %s", sel), map[string]any{"selector": sel})
			},
		},
		&browserTool{
			name:        "browser_type",
			description: "Type text into the element matching a CSS selector.",
			schema: objectSchema(map[string]any{
				"selector": selectorProp,
				"text":     map[string]any{"type": "string"},
			}, "selector", "text"),
			run: func(ctx context.Context, params Params) Result {
				sel := params.String("selector")
				if err := b.run(ctx, chromedp.SendKeys(sel, params.String("text"), chromedp.ByQuery)); err != nil {
					return Failure(KindExecution, "Type failed: %v", err)
				}
				return Success(fmt.Sprintf("Typed into %s", sel), map[string]any{"selector": sel})
			},
		},
		&browserTool{
			name:        "browser_get_text",
			description: "Read the visible text of the element matching a CSS selector.",
			schema:      objectSchema(map[string]any{"selector": selectorProp}, "selector"),
			run: func(ctx context.Context, params Params) Result {
				sel := params.String("selector")
				var text string
				if err := b.run(ctx, chromedp.Text(sel, &text, chromedp.ByQuery)); err != nil {
					return Failure(KindExecution, "Get text failed: %v", err)
				}
				return Success(fmt.Sprintf("Got text: %s", truncate(text, 50)), map[string]any{"selector": sel, "text": text})
			},
		},
		&browserTool{
			name:        "browser_screenshot",
			description: "Capture a screenshot of the current page.",
			schema:      objectSchema(map[string]any{}),
			run: func(ctx context.Context, params Params) Result {
				var buf []byte
				if err := b.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
					return Failure(KindExecution, "Screenshot failed: %v", err)
				}
				if err := os.MkdirAll(b.screenshotDir, 0755); err != nil {
					return Failure(KindFilesystem, "Screenshot failed: %v", err)
				}
				path := filepath.Join(b.screenshotDir, fmt.Sprintf("screenshot_%d.png", time.Now().UnixNano()))
				if err := os.WriteFile(path, buf, 0644); err != nil {
					return Failure(KindFilesystem, "Screenshot failed: %v", err)
				}
				absPath, _ := filepath.Abs(path)
				return Success(fmt.Sprintf("Screenshot saved to %s", absPath), map[string]any{"path": absPath})
			},
		},
		&browserTool{
			name:        "browser_summarize",
			description: "Extract the readable article text of the current page.",
			schema:      objectSchema(map[string]any{}),
			run: func(ctx context.Context, params Params) Result {
				html, location, err := b.pageHTML(ctx)
				if err != nil {
					return Failure(KindExecution, "Summarize failed: %v", err)
				}
				page, err := extractReadable(strings.NewReader(html), location)
				if err != nil {
					return Failure(KindExecution, "Summarize failed: %v", err)
				}
				return Success(fmt.Sprintf("Summary of %s: %s", page.Title, truncate(page.Excerpt, 200)), page.data())
			},
		},
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return clip(s, n) + "..."
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
