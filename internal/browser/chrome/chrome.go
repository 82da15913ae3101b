// File: internal/browser/chrome/chrome.go
// Package chrome implements the page capability on a headless Chrome driven
// over the DevTools protocol. One browser process serves all pages; every
// page is a tab with its own chromedp context. Element handles live in an
// in-page registry so node queries and snapshot capture happen in a single
// JavaScript evaluation.
package chrome

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/config"
)

const shutdownTimeout = 15 * time.Second

// Browser owns the Chrome process. Launch is deferred until the first page
// is requested, so constructing one is free when the static backend ends up
// being used instead.
type Browser struct {
	cfg config.ChromeConfig
	log *zap.Logger

	initOnce sync.Once
	initErr  error

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
}

// New creates a Chrome backend. The browser process starts on first use.
func New(cfg config.ChromeConfig, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, log: logger.Named("chrome")}
}

// start launches the browser process once.
func (b *Browser) start() error {
	b.initOnce.Do(func() {
		b.log.Info("Launching browser process.", zap.Bool("headless", b.cfg.Headless))

		// The allocator parents to Background so the browser's lifetime is
		// bound to Close, not to whichever call triggered the launch.
		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), b.execOptions()...)

		browserCtx, _ := chromedp.NewContext(b.allocCtx,
			chromedp.WithLogf(func(format string, args ...interface{}) {
				b.log.Debug(fmt.Sprintf(format, args...))
			}))

		// Realize the process now so launch failures surface here instead
		// of inside the first navigation.
		if err := chromedp.Run(browserCtx); err != nil {
			b.allocCancel()
			b.initErr = fmt.Errorf("launch browser: %w", err)
			return
		}
		b.browserCtx = browserCtx
	})
	return b.initErr
}

// execOptions resolves the allocator flags from configuration.
func (b *Browser) execOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
	}
	if b.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	for _, arg := range b.cfg.Args {
		// Args come as "key=value" or bare "key" flag names.
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// NewPage opens a tab and navigates it to the initial URL.
func (b *Browser) NewPage(ctx context.Context, rawURL string) (browser.Page, error) {
	if err := b.start(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	p := &Page{
		browser: b,
		ctx:     tabCtx,
		cancel:  tabCancel,
		log:     b.log,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			p.log.Debug("Page lifecycle event.", zap.String("name", e.Name))
		case *page.EventJavascriptDialogOpening:
			p.log.Debug("Dismissing dialog.", zap.String("message", e.Message))
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(false)); err != nil {
					p.log.Warn("Failed to dismiss dialog.", zap.Error(err))
				}
			}()
		}
	})

	if err := p.Goto(ctx, rawURL); err != nil {
		tabCancel()
		return nil, err
	}
	return p, nil
}

// Close shuts the browser process down, waiting up to the context deadline
// or the shutdown grace period, whichever ends first.
func (b *Browser) Close(ctx context.Context) error {
	if b.browserCtx == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		// chromedp.Cancel blocks until the process has exited.
		done <- chromedp.Cancel(b.browserCtx)
	}()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("browser shutdown timed out after %s", shutdownTimeout)
	}

	b.allocCancel()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Page is one Chrome tab. The mutex serializes protocol operations so
// concurrent field extraction cannot interleave with mutations.
type Page struct {
	browser *Browser
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger

	mu sync.Mutex
}

// Goto navigates the tab and waits for the document to become ready.
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Debug("Navigating.", zap.String("url", rawURL))
	err := p.run(ctx, p.browser.cfg.NavigationTimeout,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate to %q: %w", rawURL, err)
	}
	return nil
}

// Click scrolls the element into view and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.run(ctx, p.browser.cfg.ActionTimeout, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Select marks the options matching the given values as selected and fires
// the input and change events scripts listen for.
func (p *Page) Select(ctx context.Context, selector string, values ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	script, err := selectScript(selector, values)
	if err != nil {
		return err
	}
	var res evalStatus
	if err := p.run(ctx, p.browser.cfg.ActionTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return fmt.Errorf("select in %q: %w", selector, err)
	}
	switch {
	case res.Missing:
		return fmt.Errorf("%w: %q", browser.ErrNoMatch, selector)
	case res.Err != "":
		return fmt.Errorf("select in %q: %s", selector, res.Err)
	}
	return nil
}

// Type sends keystrokes to the element.
func (p *Page) Type(ctx context.Context, selector string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.run(ctx, p.browser.cfg.ActionTimeout, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

// WaitFor sleeps inside the page's context so tab teardown interrupts it.
func (p *Page) WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return p.run(ctx, 0, chromedp.Sleep(d))
}

// Root registers the document element and returns its handle.
func (p *Page) Root(ctx context.Context) (browser.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res queryOneResult
	if err := p.run(ctx, p.browser.cfg.ActionTimeout, chromedp.Evaluate(rootScript(), &res)); err != nil {
		return nil, fmt.Errorf("document root: %w", err)
	}
	if res.Err != "" {
		return nil, fmt.Errorf("document root: %s", res.Err)
	}
	return &node{page: p, ref: res.Ref, snap: browser.Snapshot(res.Snap)}, nil
}

// Close tears down the tab.
func (p *Page) Close(ctx context.Context) error {
	p.cancel()
	return nil
}

// run executes actions bounded by the page lifetime, the caller's context
// and an optional timeout.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()

	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// node is a handle into the in-page element registry plus the snapshot
// captured when the handle was created. Handles go stale on navigation.
type node struct {
	page *Page
	ref  int
	snap browser.Snapshot
}

func (nd *node) Snapshot() browser.Snapshot {
	return nd.snap
}

func (nd *node) QueryOne(ctx context.Context, selector string) (browser.Node, browser.Snapshot, error) {
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()

	script, err := queryOneScript(nd.ref, selector)
	if err != nil {
		return nil, nil, err
	}
	var res queryOneResult
	if err := nd.page.run(ctx, nd.page.browser.cfg.ActionTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return nil, nil, fmt.Errorf("query %q: %w", selector, err)
	}
	switch {
	case res.Err != "":
		return nil, nil, fmt.Errorf("query %q: %s", selector, res.Err)
	case !res.Found:
		return nil, nil, fmt.Errorf("%w: %q", browser.ErrNoMatch, selector)
	}
	child := &node{page: nd.page, ref: res.Ref, snap: browser.Snapshot(res.Snap)}
	return child, child.snap, nil
}

func (nd *node) QueryAll(ctx context.Context, selector string) ([]browser.Node, []browser.Snapshot, error) {
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()

	script, err := queryAllScript(nd.ref, selector)
	if err != nil {
		return nil, nil, err
	}
	var res queryAllResult
	if err := nd.page.run(ctx, nd.page.browser.cfg.ActionTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return nil, nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	if res.Err != "" {
		return nil, nil, fmt.Errorf("query all %q: %s", selector, res.Err)
	}

	nodes := make([]browser.Node, 0, len(res.Refs))
	snaps := make([]browser.Snapshot, 0, len(res.Refs))
	for i, ref := range res.Refs {
		child := &node{page: nd.page, ref: ref, snap: browser.Snapshot(res.Snaps[i])}
		nodes = append(nodes, child)
		snaps = append(snaps, child.snap)
	}
	return nodes, snaps, nil
}

// combineContext derives a context from parent that is additionally
// cancelled when secondary ends. The parent must be the chromedp context so
// protocol plumbing stays attached.
func combineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
