package scraperctx

import (
	"math/rand"
	"net/http"
)

// defaultUserAgents is the built-in rotation applied before any
// scraper-specific middleware runs.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
}

// UserAgentMiddleware assigns a random User-Agent header to every outgoing
// request unless one is already set.
type UserAgentMiddleware struct{}

func (UserAgentMiddleware) Name() string { return "user_agent" }

func (UserAgentMiddleware) OnRequest(req *http.Request, _ map[string]any) (*http.Request, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgents[rand.Intn(len(defaultUserAgents))])
	}
	return req, nil
}

func (UserAgentMiddleware) OnResponse(_ *http.Request, resp *http.Response, _ map[string]any) (*http.Response, error) {
	return resp, nil
}
