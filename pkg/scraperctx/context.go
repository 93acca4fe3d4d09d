// Package scraperctx implements the handler-facing context object: bounded
// HTTP access, file downloads, and per-scraper state persistence, with every
// request passed through an ordered middleware chain before it reaches the
// network.
package scraperctx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Method is one of the HTTP verbs the context exposes to handlers.
type Method int

const (
	MethodGet Method = iota
	MethodPost
	MethodPut
	MethodDelete
	MethodHead
	MethodOptions
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodPost:
		return http.MethodPost
	case MethodPut:
		return http.MethodPut
	case MethodDelete:
		return http.MethodDelete
	case MethodHead:
		return http.MethodHead
	case MethodOptions:
		return http.MethodOptions
	default:
		return http.MethodGet
	}
}

// Middleware intercepts every request and response the context issues.
// Config is looked up by middleware name from the owning scraper's
// middleware-config map.
type Middleware interface {
	Name() string
	OnRequest(req *http.Request, config map[string]any) (*http.Request, error)
	OnResponse(req *http.Request, resp *http.Response, config map[string]any) (*http.Response, error)
}

// UpdateStateFunc persists a handler's new opaque state string for the next
// invocation of the same logical scraper and returns the updated record.
type UpdateStateFunc func(ctx context.Context, state string) (model.Scraper, error)

// Context is the object passed to every TaskHandler.Process call.
type Context struct {
	httpClient       *http.Client
	middlewares      []Middleware
	middlewareConfig map[string]map[string]any

	mu    sync.RWMutex
	params string
	state  string

	updateState UpdateStateFunc
}

// New builds a Context. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(httpClient *http.Client, middlewares []Middleware, middlewareConfig map[string]map[string]any, params, state string, updateState UpdateStateFunc) *Context {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Context{
		httpClient:       httpClient,
		middlewares:      middlewares,
		middlewareConfig: middlewareConfig,
		params:           params,
		state:            state,
		updateState:      updateState,
	}
}

// Params returns the scraper's structured configuration, as the raw string
// the handler should decode (typically JSON).
func (c *Context) Params() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// State returns the opaque state persisted by the previous invocation.
func (c *Context) State() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UpdateState persists state for the next invocation of this scraper and
// returns the updated scraper record. If no updateState func was wired
// (e.g. a non-scraper-derived task), it only updates the in-memory copy
// State() returns and the zero model.Scraper is returned.
func (c *Context) UpdateState(ctx context.Context, state string) (model.Scraper, error) {
	var scraper model.Scraper
	if c.updateState != nil {
		var err error
		scraper, err = c.updateState(ctx, state)
		if err != nil {
			return model.Scraper{}, err
		}
	}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return scraper, nil
}

func (c *Context) do(ctx context.Context, method Method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method.String(), url, body)
	if err != nil {
		return nil, err
	}
	for _, mw := range c.middlewares {
		req, err = mw.OnRequest(req, c.middlewareConfig[mw.Name()])
		if err != nil {
			return nil, fmt.Errorf("scraperctx: middleware %q on_request: %w", mw.Name(), err)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	for _, mw := range c.middlewares {
		resp, err = mw.OnResponse(req, resp, c.middlewareConfig[mw.Name()])
		if err != nil {
			return nil, fmt.Errorf("scraperctx: middleware %q on_response: %w", mw.Name(), err)
		}
	}
	return resp, nil
}

func (c *Context) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, MethodGet, url, nil)
}

func (c *Context) Post(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	return c.do(ctx, MethodPost, url, body)
}

func (c *Context) Put(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	return c.do(ctx, MethodPut, url, body)
}

func (c *Context) Delete(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, MethodDelete, url, nil)
}

func (c *Context) Head(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, MethodHead, url, nil)
}

func (c *Context) Options(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, MethodOptions, url, nil)
}

// BatchResult is one URL's outcome from a bounded-concurrency batch call.
type BatchResult struct {
	URL      string
	Response *http.Response
	Err      error
}

// GetBatch issues GET requests for every url with at most maxConcurrency in
// flight at once. Every request runs to completion either way. If
// collectErrors is false, the error of the lowest-index failed URL is
// returned alongside all results; if true, every result (including errors)
// is returned and the error return is always nil.
func (c *Context) GetBatch(ctx context.Context, urls []string, maxConcurrency int, collectErrors bool) ([]BatchResult, error) {
	return c.batch(ctx, urls, maxConcurrency, collectErrors, c.Get)
}

func (c *Context) batch(ctx context.Context, urls []string, maxConcurrency int, collectErrors bool, call func(context.Context, string) (*http.Response, error)) ([]BatchResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = len(urls)
	}
	if maxConcurrency == 0 {
		return nil, nil
	}
	sem := make(chan struct{}, maxConcurrency)
	results := make([]BatchResult, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-sem }()
			resp, err := call(ctx, u)
			results[i] = BatchResult{URL: u, Response: resp, Err: err}
		}(i, u)
	}
	wg.Wait()

	if !collectErrors {
		for _, r := range results {
			if r.Err != nil {
				return results, r.Err
			}
		}
	}
	return results, nil
}

// FileHandler lets a handler stream a downloaded body itself instead of
// spilling it to a temp file.
type FileHandler func(ctx context.Context, url string, body io.Reader) error

// Download fetches url and either streams it through handler, or, if
// handler is nil, writes it to a new temp file and returns its path.
func (c *Context) Download(ctx context.Context, url string, handler FileHandler) (string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if handler != nil {
		return "", handler(ctx, url, resp.Body)
	}

	f, err := os.CreateTemp("", "scraperctx-download-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// DownloadBatch downloads every url with bounded concurrency and returns,
// index-aligned with urls, each download's temp-file path (empty when
// handler is set or the download failed) and its error (nil on success).
func (c *Context) DownloadBatch(ctx context.Context, urls []string, maxConcurrency int, handler FileHandler) ([]string, []error) {
	if maxConcurrency <= 0 {
		maxConcurrency = len(urls)
	}
	if maxConcurrency == 0 {
		return nil, nil
	}
	sem := make(chan struct{}, maxConcurrency)
	paths := make([]string, len(urls))
	errs := make([]error, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, u string) {
			defer wg.Done()
			defer func() { <-sem }()
			path, err := c.Download(ctx, u, handler)
			paths[i] = path
			errs[i] = err
		}(i, u)
	}
	wg.Wait()
	return paths, errs
}
