// File: internal/browser/static/fetch.go
package static

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/forceps-cli/internal/config"
)

// maxRedirects caps redirect chains before a navigation is abandoned.
const maxRedirects = 10

// fetcher wraps the HTTP client shared by every page of a static Browser.
// It keeps cookies across navigations, rate-limits outbound requests and
// transparently decompresses response bodies.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.StaticConfig
	log     *zap.Logger
}

func newFetcher(cfg config.StaticConfig, logger *zap.Logger) (*fetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}

	client := &http.Client{
		Transport: newDecompressTransport(nil),
		Jar:       jar,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cfg:     cfg,
		log:     logger,
	}, nil
}

// get fetches a document with a plain GET.
func (f *fetcher) get(ctx context.Context, target *url.URL, referer string) (*html.Node, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request for %q: %w", target, err)
	}
	return f.do(req, referer)
}

// submit sends serialized form data. POST carries the values in the body,
// anything else appends them to the query string, which is the browser
// default for HTML forms.
func (f *fetcher) submit(ctx context.Context, method string, target *url.URL, form url.Values, referer string) (*html.Node, *url.URL, error) {
	var req *http.Request
	var err error

	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		withQuery := *target
		if withQuery.RawQuery == "" {
			withQuery.RawQuery = form.Encode()
		} else {
			withQuery.RawQuery += "&" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, withQuery.String(), nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("build form request for %q: %w", target, err)
	}
	return f.do(req, referer)
}

// do executes one request and parses the response into a DOM tree. The
// returned URL is the final one after redirects.
func (f *fetcher) do(req *http.Request, referer string) (*html.Node, *url.URL, error) {
	if err := f.limiter.Wait(req.Context()); err != nil {
		return nil, nil, err
	}
	f.setHeaders(req, referer)

	f.log.Debug("Fetching document.",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("fetch %s: server returned %s", req.URL, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil, fmt.Errorf("fetch %s: unsupported content type %q", req.URL, ct)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", req.URL, err)
	}
	return doc, resp.Request.URL, nil
}

func (f *fetcher) setHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if f.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
	if referer != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", referer)
	}
}
