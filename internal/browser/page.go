// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
)

const (
	contentLengthScript = `document.documentElement ? document.documentElement.outerHTML.length : 0`
	outerHTMLScript     = `document.documentElement ? document.documentElement.outerHTML : ""`
)

// ErrPageClosed is returned by reads on a page after Close.
var ErrPageClosed = errors.New("page is closed")

// Page is one isolated browser tab.
type Page struct {
	url              string
	ctx              context.Context
	cancel           context.CancelFunc
	browserContextID cdp.BrowserContextID
	manager          *Manager

	once sync.Once
}

var _ schemas.PageHandle = (*Page)(nil)

// URL returns the address the page was opened with.
func (p *Page) URL() string { return p.url }

// ContentLength reports the length of the serialized document element.
func (p *Page) ContentLength(ctx context.Context) (int, error) {
	var n int
	if err := p.run(ctx, 0, chromedp.Evaluate(contentLengthScript, &n)); err != nil {
		return 0, fmt.Errorf("failed to measure page content: %w", err)
	}
	return n, nil
}

// HTML returns the serialized document element.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 0, chromedp.Evaluate(outerHTMLScript, &html)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Close closes the tab and disposes its browser context. Subsequent calls
// are no-ops.
func (p *Page) Close() error {
	p.once.Do(func() {
		p.release()
		p.manager.wg.Done()
	})
	return nil
}

// release tears down the tab without touching the manager's page count.
func (p *Page) release() {
	p.cancel()
	p.manager.disposeBrowserContext(p.browserContextID)
}

func (p *Page) navigate(ctx context.Context, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.Navigate(p.url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", p.url, err)
	}
	return nil
}

// run executes actions on the tab, aborting when either the caller's ctx or
// the optional timeout expires. The tab itself survives the abort.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
