// Package httpclient probes and streams a single URL over HTTP, honoring
// byte-range resume and a cooperative pause signal. The Engine's worker
// pool supplies concurrency across tasks; this package only ever drives
// one connection at a time per task.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/surge-downloader/surge/internal/errs"
	"github.com/surge-downloader/surge/internal/ratelimit"
	"github.com/surge-downloader/surge/internal/utils"
	"github.com/vfaronov/httpheader"
)

const probeTimeout = 10 * time.Second

var userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// Client issues the ranged GET requests a DownloadWorker needs. The zero
// value is usable; callers share one Client across tasks.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Limits    *ratelimit.Manager
}

// New returns a Client configured with sane timeouts for probing; the
// streaming GET in Download has no overall timeout since transfers can
// run for as long as the file takes. A fresh per-host rate-limit manager
// is attached so repeated 429s from one host back off every task hitting
// it, not just the one that got the 429.
func New() *Client {
	return &Client{
		HTTP:      &http.Client{},
		UserAgent: userAgent,
		Limits:    ratelimit.NewManager(),
	}
}

func (c *Client) limiterFor(rawurl string) *ratelimit.Limiter {
	if c.Limits == nil {
		return nil
	}
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return nil
	}
	return c.Limits.Get(u.Host)
}

// ProbeResult carries everything CheckRange/Probe can learn about a URL
// without downloading its body.
type ProbeResult struct {
	FileSize      int64
	HasSize       bool
	SupportsRange bool
	Filename      string
	ContentType   string
}

// Probe learns whether the server supports resumable ranged transfers,
// the total size if known, and a filename derived from
// Content-Disposition or the URL path. It tries a HEAD request first,
// since it costs the server nothing to answer; when the server doesn't
// support HEAD (405, 501, or the request fails outright) it falls back
// to a ranged GET (bytes=0-0), which every server capable of serving the
// file at all must honor. The GET path makes up to 3 attempts on
// transport failure with a fixed backoff; HEAD is tried once since a failure there
// just triggers the GET fallback anyway.
func (c *Client) Probe(ctx context.Context, rawurl string, filenameHint string) (ProbeResult, error) {
	utils.Debug("httpclient: probing %s", rawurl)

	resp, err := c.probeHead(ctx, rawurl)
	if err != nil || resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		if resp != nil {
			drainAndClose(resp)
		}
		utils.Debug("httpclient: HEAD probe of %s unsupported (%v), retrying via streaming GET", rawurl, err)
		resp, err = c.probeGet(ctx, rawurl)
	}
	if err != nil {
		return ProbeResult{}, err
	}
	defer drainAndClose(resp)

	result := ProbeResult{}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		if cr, ok := httpheader.ContentRange(resp.Header); ok && !cr.Unsatisfiable && cr.Size >= 0 {
			result.FileSize = cr.Size
			result.HasSize = true
		}
	case http.StatusOK:
		result.SupportsRange = acceptsRanges(resp.Header)
		if resp.ContentLength >= 0 {
			result.FileSize = resp.ContentLength
			result.HasSize = true
		}
	default:
		return ProbeResult{}, errs.Wrap(errs.TransportFailure, "httpclient.Probe", "unexpected status %d", resp.StatusCode)
	}

	name, _, err := utils.DetermineFilename(rawurl, resp, false)
	if err != nil {
		name = "download.bin"
	}
	if filenameHint != "" {
		result.Filename = filenameHint
	} else {
		result.Filename = name
	}
	result.ContentType = resp.Header.Get("Content-Type")

	utils.Debug("httpclient: probe of %s -> size=%d range=%v filename=%s", rawurl, result.FileSize, result.SupportsRange, result.Filename)
	return result, nil
}

// probeHead issues a single HEAD request, returning the response
// unconsumed so Probe's status-code switch can read it the same way it
// reads a GET response. The caller is responsible for draining/closing
// it (including on the 405/501 fallback path).
func (c *Client) probeHead(ctx context.Context, rawurl string) (*http.Response, error) {
	limiter := c.limiterFor(rawurl)
	if limiter != nil {
		limiter.WaitIfBlocked()
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, reqErr := http.NewRequestWithContext(probeCtx, http.MethodHead, rawurl, nil)
	if reqErr != nil {
		return nil, errs.Wrap(errs.InvalidInput, "httpclient.Probe", "build HEAD request: %w", reqErr)
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.TransportFailure, "httpclient.Probe", "HEAD request failed: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if limiter != nil {
			limiter.Handle429(resp)
		}
		return resp, errs.Wrap(errs.TransportFailure, "httpclient.Probe", "HEAD request rate limited (429)")
	}
	if limiter != nil {
		limiter.ReportSuccess()
	}
	return resp, nil
}

// probeGet is the streaming-GET fallback used when HEAD isn't
// supported: a ranged GET (bytes=0-0), with up to 3 attempts on
// transport failure or 429.
func (c *Client) probeGet(ctx context.Context, rawurl string) (*http.Response, error) {
	limiter := c.limiterFor(rawurl)

	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Second)
		}
		if limiter != nil {
			limiter.WaitIfBlocked()
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, reqErr := http.NewRequestWithContext(probeCtx, http.MethodGet, rawurl, nil)
		if reqErr != nil {
			cancel()
			return nil, errs.Wrap(errs.InvalidInput, "httpclient.Probe", "build GET request: %w", reqErr)
		}
		req.Header.Set("Range", "bytes=0-0")
		req.Header.Set("User-Agent", c.userAgent())

		resp, err = c.client().Do(req)
		cancel()
		if err != nil {
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests && limiter != nil {
			wait := limiter.Handle429(resp)
			drainAndClose(resp)
			resp = nil
			err = &ratelimit.Error{WaitDuration: wait}
			continue
		}
		break
	}
	if err != nil {
		return nil, errs.Wrap(errs.TransportFailure, "httpclient.Probe", "probe request failed: %w", err)
	}
	if limiter != nil {
		limiter.ReportSuccess()
	}
	return resp, nil
}

func acceptsRanges(h http.Header) bool {
	ranges := httpheader.AcceptRanges(h)
	for _, r := range ranges {
		if r == "bytes" {
			return true
		}
	}
	return false
}

// PauseFunc is polled periodically during Download; when it returns true
// the transfer stops cleanly at the next chunk boundary and Download
// returns ErrPaused so the caller can persist partial progress.
type PauseFunc func() bool

// ProgressFunc is called after every chunk is durably written, with the
// number of bytes just written (not the cumulative total).
type ProgressFunc func(n int64)

const bufSize = 32 * 1024

// Download streams bytes [from, total) of rawurl into w, invoking
// onProgress after each write and checking paused before every read. It
// returns ErrPaused (wrapping errs.IllegalState) if paused ever reports
// true, leaving w positioned wherever the last write left it.
func (c *Client) Download(ctx context.Context, rawurl string, from int64, w io.Writer, paused PauseFunc, onProgress ProgressFunc) error {
	limiter := c.limiterFor(rawurl)
	if limiter != nil {
		limiter.WaitIfBlocked()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return errs.Wrap(errs.InvalidInput, "httpclient.Download", "build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	if from > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", from))
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return errs.Wrap(errs.TransportFailure, "httpclient.Download", "request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Duration(0)
		if limiter != nil {
			wait = limiter.Handle429(resp)
		}
		return errs.Wrap(errs.TransportFailure, "httpclient.Download", "rate limited, retry after %v: %w", wait, &ratelimit.Error{WaitDuration: wait})
	}
	if from > 0 && resp.StatusCode != http.StatusPartialContent {
		return errs.Wrap(errs.TransportFailure, "httpclient.Download", "server ignored range request, got status %d", resp.StatusCode)
	}
	if from == 0 && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return errs.Wrap(errs.TransportFailure, "httpclient.Download", "unexpected status %d", resp.StatusCode)
	}
	if limiter != nil {
		limiter.ReportSuccess()
	}

	buf := make([]byte, bufSize)
	for {
		if paused != nil && paused() {
			return errs.New(errs.IllegalState, "httpclient.Download", ErrPaused)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return errs.Wrap(errs.StorageFailure, "httpclient.Download", "write chunk: %w", writeErr)
			}
			if onProgress != nil {
				onProgress(int64(n))
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return errs.Wrap(errs.TransportFailure, "httpclient.Download", "read chunk: %w", readErr)
		}
	}
}

// CheckRange is a lightweight HEAD-style capability check: range support
// and size only, without the filename derivation a full Probe does. The
// worker does not call it; it relies on Probe.
func (c *Client) CheckRange(ctx context.Context, rawurl string) (supportsRange bool, size int64, hasSize bool, err error) {
	req, buildErr := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if buildErr != nil {
		return false, 0, false, errs.Wrap(errs.InvalidInput, "httpclient.CheckRange", "build request: %w", buildErr)
	}
	req.Header.Set("User-Agent", c.userAgent())

	if limiter := c.limiterFor(rawurl); limiter != nil {
		limiter.WaitIfBlocked()
	}

	resp, doErr := c.client().Do(req)
	if doErr != nil {
		return false, 0, false, errs.Wrap(errs.TransportFailure, "httpclient.CheckRange", "request failed: %w", doErr)
	}
	defer drainAndClose(resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		if limiter := c.limiterFor(rawurl); limiter != nil {
			limiter.Handle429(resp)
		}
		return false, 0, false, errs.Wrap(errs.TransportFailure, "httpclient.CheckRange", "rate limited (429)")
	}

	supportsRange = acceptsRanges(resp.Header)
	if resp.ContentLength >= 0 {
		size = resp.ContentLength
		hasSize = true
	} else if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
			size = parsed
			hasSize = true
		}
	}
	return supportsRange, size, hasSize, nil
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return userAgent
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
