// File: internal/browser/static/static.go
// Package static implements the page capability against plain fetched HTML.
// Each navigation downloads and parses one document; actions mutate the
// parsed tree in memory, with clicks following links and submitting forms
// the way a scriptless browser would. No JavaScript runs, which makes this
// backend fast and dependency-free for server-rendered sites.
package static

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/config"
)

var errNoDocument = errors.New("no document loaded")

// Matchers for the fixed structural selectors used during form handling.
var (
	formFieldMatcher = cascadia.MustCompile("input, textarea, select")
	optionMatcher    = cascadia.MustCompile("option")
	selectedMatcher  = cascadia.MustCompile("option[selected]")
	radioMatcher     = cascadia.MustCompile(`input[type="radio"]`)
)

// Browser hands out static pages sharing one cookie-aware HTTP client.
type Browser struct {
	fetch *fetcher
	log   *zap.Logger
}

// New builds a static backend from configuration.
func New(cfg config.StaticConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := newFetcher(cfg, logger.Named("static_fetch"))
	if err != nil {
		return nil, err
	}
	return &Browser{fetch: f, log: logger.Named("static")}, nil
}

// NewPage opens a page on the initial URL, which must be absolute.
func (b *Browser) NewPage(ctx context.Context, rawURL string) (browser.Page, error) {
	p := &Page{fetch: b.fetch, log: b.log}
	if err := p.Goto(ctx, rawURL); err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases pooled connections. Pages keep working on their parsed
// documents but can no longer navigate efficiently.
func (b *Browser) Close(ctx context.Context) error {
	b.fetch.client.CloseIdleConnections()
	return nil
}

// Page is one navigable document. The mutex serializes every operation
// touching the tree, including node queries, so extraction reads never
// observe a half-applied mutation.
type Page struct {
	fetch *fetcher
	log   *zap.Logger

	mu  sync.Mutex
	doc *html.Node
	url *url.URL
}

// CurrentURL returns the page's location after redirects, or "" before the
// first navigation.
func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.url == nil {
		return ""
	}
	return p.url.String()
}

// Goto fetches the target, which may be relative to the current location,
// and replaces the page's document with the parsed result.
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	target, referer, err := p.resolveTarget(rawURL)
	if err != nil {
		return err
	}

	doc, final, err := p.fetch.get(ctx, target, referer)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.doc = doc
	p.url = final
	p.mu.Unlock()

	p.log.Debug("Navigated.", zap.String("url", final.String()))
	return nil
}

// clickOutcome describes what a click resolved to while the page lock was
// held. Navigation and submission happen after the lock is released.
type clickOutcome struct {
	navigate string
	submit   *formSubmission
}

type formSubmission struct {
	method string
	action string
	data   url.Values
}

// Click locates the element and applies the click consequence: anchors
// navigate, submit buttons submit their form, checkboxes and radios toggle
// in place. Anything else is a no-op without scripting.
func (p *Page) Click(ctx context.Context, selector string) error {
	matcher, err := compileSelector(selector)
	if err != nil {
		return err
	}

	p.mu.Lock()
	el, err := p.find(matcher, selector)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	outcome := p.applyClick(el)
	p.mu.Unlock()

	switch {
	case outcome.navigate != "":
		return p.Goto(ctx, outcome.navigate)
	case outcome.submit != nil:
		return p.submitForm(ctx, outcome.submit)
	}
	return nil
}

// applyClick resolves the consequence of clicking el. State toggles happen
// immediately; navigations are returned for the caller to perform outside
// the lock. Callers must hold p.mu.
func (p *Page) applyClick(el *html.Node) clickOutcome {
	tag := strings.ToLower(el.Data)

	if tag == "a" {
		href := attrValue(el, "href")
		if href != "" && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return clickOutcome{navigate: href}
		}
	}

	typ := strings.ToLower(attrValue(el, "type"))
	isSubmit := (tag == "button" && (typ == "submit" || typ == "")) ||
		(tag == "input" && typ == "submit")
	if isSubmit {
		if form := findParentForm(el); form != nil {
			method, action, data := serializeForm(form)
			return clickOutcome{submit: &formSubmission{method: method, action: action, data: data}}
		}
	}

	if tag == "input" {
		switch typ {
		case "checkbox":
			if hasAttr(el, "checked") {
				removeAttr(el, "checked")
			} else {
				setAttr(el, "checked", "checked")
			}
			return clickOutcome{}
		case "radio":
			p.checkRadio(el)
			return clickOutcome{}
		}
	}

	p.log.Debug("Click had no effect without scripting.", zap.String("tag", tag))
	return clickOutcome{}
}

// Select marks the matching options of a <select> element as selected.
// Every requested value must match an option by its value attribute or, in
// its absence, by trimmed text; otherwise nothing is changed.
func (p *Page) Select(ctx context.Context, selector string, values ...string) error {
	matcher, err := compileSelector(selector)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	el, err := p.find(matcher, selector)
	if err != nil {
		return err
	}
	if strings.ToLower(el.Data) != "select" {
		return fmt.Errorf("element %q is a <%s>, not a select", selector, el.Data)
	}

	options := optionMatcher.MatchAll(el)
	chosen := make(map[*html.Node]bool, len(values))
	for _, want := range values {
		var match *html.Node
		for _, opt := range options {
			optValue := attrValue(opt, "value")
			if optValue == "" {
				optValue = strings.TrimSpace(textContent(opt))
			}
			if optValue == want {
				match = opt
				break
			}
		}
		if match == nil {
			return fmt.Errorf("option with value %q not found in %q", want, selector)
		}
		chosen[match] = true
	}

	for _, opt := range options {
		if chosen[opt] {
			setAttr(opt, "selected", "selected")
		} else {
			removeAttr(opt, "selected")
		}
	}
	return nil
}

// Type replaces the value of an input or the text of a textarea.
func (p *Page) Type(ctx context.Context, selector string, text string) error {
	matcher, err := compileSelector(selector)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	el, err := p.find(matcher, selector)
	if err != nil {
		return err
	}

	switch tag := strings.ToLower(el.Data); tag {
	case "input":
		setAttr(el, "value", text)
	case "textarea":
		for el.FirstChild != nil {
			el.RemoveChild(el.FirstChild)
		}
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	default:
		return fmt.Errorf("cannot type into <%s> element %q", tag, selector)
	}
	return nil
}

// WaitFor pauses for d. The static DOM never changes on its own, so this
// exists purely to honor scripted settle delays.
func (p *Page) WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Root returns the document element with its snapshot captured.
func (p *Page) Root(ctx context.Context) (browser.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, errNoDocument
	}
	return p.newNode(documentElement(p.doc)), nil
}

// Close drops the parsed document. Outstanding node handles keep their
// snapshots but further queries fail.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	p.doc = nil
	p.mu.Unlock()
	return nil
}

// submitForm resolves the form target and swaps in the response document.
func (p *Page) submitForm(ctx context.Context, sub *formSubmission) error {
	target, referer, err := p.resolveTarget(sub.action)
	if err != nil {
		return err
	}

	doc, final, err := p.fetch.submit(ctx, sub.method, target, sub.data, referer)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.doc = doc
	p.url = final
	p.mu.Unlock()

	p.log.Debug("Form submitted.",
		zap.String("method", sub.method),
		zap.String("url", final.String()))
	return nil
}

// resolveTarget parses raw and resolves it against the current location.
// The first navigation of a page has no base, so it requires an absolute
// URL. The returned referer is the current location, or "".
func (p *Page) resolveTarget(raw string) (*url.URL, string, error) {
	p.mu.Lock()
	base := p.url
	p.mu.Unlock()

	referer := ""
	if base != nil {
		referer = base.String()
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse URL %q: %w", raw, err)
	}
	if parsed.IsAbs() {
		return parsed, referer, nil
	}
	if base == nil {
		return nil, "", fmt.Errorf("initial navigation target must be an absolute URL: %q", raw)
	}
	return base.ResolveReference(parsed), referer, nil
}

// find locates the first match in the whole document. Callers hold p.mu.
func (p *Page) find(matcher cascadia.Selector, selector string) (*html.Node, error) {
	if p.doc == nil {
		return nil, errNoDocument
	}
	el := matcher.MatchFirst(p.doc)
	if el == nil {
		return nil, fmt.Errorf("%w: %q", browser.ErrNoMatch, selector)
	}
	return el, nil
}

// checkRadio checks el and unchecks the rest of its radio group, scoped to
// the containing form or the whole document. Callers hold p.mu.
func (p *Page) checkRadio(el *html.Node) {
	name := attrValue(el, "name")
	if name == "" {
		setAttr(el, "checked", "checked")
		return
	}

	scope := findParentForm(el)
	if scope == nil {
		scope = p.doc
	}
	for _, radio := range radioMatcher.MatchAll(scope) {
		if attrValue(radio, "name") != name {
			continue
		}
		if radio == el {
			setAttr(radio, "checked", "checked")
		} else {
			removeAttr(radio, "checked")
		}
	}
}

// node is a handle to one element plus the snapshot captured when the
// handle was created.
type node struct {
	page *Page
	n    *html.Node
	snap browser.Snapshot
}

// newNode captures the snapshot under the page lock. Callers hold p.mu.
func (p *Page) newNode(n *html.Node) *node {
	return &node{page: p, n: n, snap: snapshotOf(n)}
}

func (nd *node) Snapshot() browser.Snapshot {
	return nd.snap
}

func (nd *node) QueryOne(ctx context.Context, selector string) (browser.Node, browser.Snapshot, error) {
	matcher, err := compileSelector(selector)
	if err != nil {
		return nil, nil, err
	}

	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	if nd.page.doc == nil {
		return nil, nil, errNoDocument
	}

	sel := goquery.NewDocumentFromNode(nd.n).FindMatcher(matcher)
	if sel.Length() == 0 {
		return nil, nil, fmt.Errorf("%w: %q", browser.ErrNoMatch, selector)
	}
	child := nd.page.newNode(sel.Nodes[0])
	return child, child.snap, nil
}

func (nd *node) QueryAll(ctx context.Context, selector string) ([]browser.Node, []browser.Snapshot, error) {
	matcher, err := compileSelector(selector)
	if err != nil {
		return nil, nil, err
	}

	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	if nd.page.doc == nil {
		return nil, nil, errNoDocument
	}

	sel := goquery.NewDocumentFromNode(nd.n).FindMatcher(matcher)
	nodes := make([]browser.Node, 0, sel.Length())
	snaps := make([]browser.Snapshot, 0, sel.Length())
	for _, hn := range sel.Nodes {
		child := nd.page.newNode(hn)
		nodes = append(nodes, child)
		snaps = append(snaps, child.snap)
	}
	return nodes, snaps, nil
}

// compileSelector turns a CSS selector into a matcher, surfacing syntax
// errors instead of panicking the way goquery's string methods do.
func compileSelector(selector string) (cascadia.Selector, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return matcher, nil
}

// snapshotOf copies an element's attributes plus its trimmed text content.
func snapshotOf(n *html.Node) browser.Snapshot {
	snap := make(browser.Snapshot, len(n.Attr)+1)
	for _, a := range n.Attr {
		snap[a.Key] = a.Val
	}
	snap[browser.TextProperty] = strings.TrimSpace(textContent(n))
	return snap
}

// serializeForm walks a form's fields into URL values following standard
// browser submission rules. Unnamed and button-like fields are skipped.
func serializeForm(form *html.Node) (method, action string, data url.Values) {
	action = attrValue(form, "action")
	method = strings.ToUpper(attrValue(form, "method"))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	data = url.Values{}
	for _, field := range formFieldMatcher.MatchAll(form) {
		name := attrValue(field, "name")
		if name == "" {
			continue
		}
		switch strings.ToLower(field.Data) {
		case "input":
			switch strings.ToLower(attrValue(field, "type")) {
			case "checkbox", "radio":
				if hasAttr(field, "checked") {
					value := attrValue(field, "value")
					if value == "" {
						value = "on"
					}
					data.Add(name, value)
				}
			case "submit", "button", "image", "reset", "file":
				// Not serialized.
			default:
				data.Add(name, attrValue(field, "value"))
			}
		case "textarea":
			data.Add(name, textContent(field))
		case "select":
			for _, opt := range selectedMatcher.MatchAll(field) {
				value := attrValue(opt, "value")
				if value == "" {
					value = strings.TrimSpace(textContent(opt))
				}
				data.Add(name, value)
			}
		}
	}
	return method, action, data
}

// documentElement returns the top element of a parsed document, normally
// <html>.
func documentElement(doc *html.Node) *html.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return doc
}

func findParentForm(el *html.Node) *html.Node {
	for parent := el.Parent; parent != nil; parent = parent.Parent {
		if parent.Type == html.ElementNode && strings.ToLower(parent.Data) == "form" {
			return parent
		}
	}
	return nil
}

// textContent concatenates the text nodes under n, scripts and styles
// excluded.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			return
		}
		if c.Type == html.ElementNode {
			switch strings.ToLower(c.Data) {
			case "script", "style":
				return
			}
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return sb.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
