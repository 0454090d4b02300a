// Package grabber resolves what a user-supplied URL actually is — a
// direct file, an HTML page with links worth discovering, or a stream
// manifest — and yields the candidate URLs that should be offered for
// enqueue. The HTML link scraper itself is an external collaborator
// (PageDiscovery); grabber only classifies and dispatches to it.
package grabber

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind is what ClassifyURL decided a URL is.
type Kind int

const (
	DirectFile Kind = iota
	HTMLPage
	StreamHint
)

func (k Kind) String() string {
	switch k {
	case HTMLPage:
		return "page"
	case StreamHint:
		return "stream"
	default:
		return "direct"
	}
}

// PageDiscovery scrapes a page for candidate download links. It's an
// external collaborator; surge ships a no-op so the façade compiles and
// tests standalone without a real scraper wired in.
type PageDiscovery interface {
	Discover(ctx context.Context, pageURL string) ([]string, error)
}

// NopPageDiscovery never finds anything. Used until a real scraper is
// wired in.
type NopPageDiscovery struct{}

func (NopPageDiscovery) Discover(ctx context.Context, pageURL string) ([]string, error) {
	return nil, nil
}

// Candidate is one URL offered for enqueue.
type Candidate struct {
	URL string
}

// Grabber classifies URLs and resolves them to candidates.
type Grabber struct {
	HTTP      *http.Client
	Discovery PageDiscovery
}

// New constructs a Grabber. A nil discovery falls back to NopPageDiscovery.
func New(discovery PageDiscovery) *Grabber {
	if discovery == nil {
		discovery = NopPageDiscovery{}
	}
	return &Grabber{
		HTTP:      &http.Client{Timeout: 10 * time.Second},
		Discovery: discovery,
	}
}

var streamContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"audio/mpegurl",
}

// ClassifyURL inspects the URL's extension and, failing that, a HEAD
// request's Content-Type to decide its Kind. A HEAD that fails (network
// error, 4xx/5xx) is treated as DirectFile — classification degrades to
// the default rather than blocking on an unreachable server.
func (g *Grabber) ClassifyURL(ctx context.Context, rawurl string) Kind {
	if u, err := url.Parse(rawurl); err == nil && strings.HasSuffix(strings.ToLower(u.Path), ".m3u8") {
		return StreamHint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return DirectFile
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return DirectFile
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return DirectFile
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, streamCT := range streamContentTypes {
		if strings.Contains(ct, streamCT) {
			return StreamHint
		}
	}
	if strings.Contains(ct, "text/html") {
		return HTMLPage
	}
	return DirectFile
}

// Resolve classifies rawurl and returns the candidates it yields. For
// HTMLPage, the discovered links are the candidates and a discovery
// error is returned with no candidates. For StreamHint, the only check
// is a HEAD request: a network error or a 4xx/5xx status yields an
// empty slice; the manifest itself is not fetched or parsed here. In
// neither case is rawurl used as a direct-file fallback. For
// DirectFile, the URL itself is the (only) candidate.
func (g *Grabber) Resolve(ctx context.Context, rawurl string) (Kind, []Candidate, error) {
	kind := g.ClassifyURL(ctx, rawurl)

	switch kind {
	case HTMLPage:
		links, err := g.Discovery.Discover(ctx, rawurl)
		if err != nil {
			return kind, nil, err
		}
		candidates := make([]Candidate, 0, len(links))
		for _, link := range links {
			candidates = append(candidates, Candidate{URL: link})
		}
		return kind, candidates, nil

	case StreamHint:
		if !g.reachable(ctx, rawurl) {
			return kind, nil, nil
		}
		return kind, []Candidate{{URL: rawurl}}, nil

	default:
		return kind, []Candidate{{URL: rawurl}}, nil
	}
}

func (g *Grabber) reachable(ctx context.Context, rawurl string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return false
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
