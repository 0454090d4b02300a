package hls

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/surge-downloader/surge/internal/errs"
	"github.com/surge-downloader/surge/internal/utils"
)

var userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Downloader fetches manifests and segments over HTTP.
type Downloader struct {
	HTTP *http.Client
}

// New returns a Downloader with a 30s per-request timeout, matching
// HLS's many small requests rather than HttpClient's long-lived one.
func New() *Downloader {
	return &Downloader{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// FetchManifest downloads and parses the playlist at rawurl.
func (d *Downloader) FetchManifest(ctx context.Context, rawurl string) (Manifest, error) {
	resp, err := d.get(ctx, rawurl)
	if err != nil {
		return Manifest{}, err
	}
	defer resp.Body.Close()
	return Parse(resp.Body, rawurl)
}

// ResolveVariant follows a master manifest down to a concrete media
// manifest, selecting the highest-bandwidth variant. If m is already a
// media manifest, it is returned unchanged.
func (d *Downloader) ResolveVariant(ctx context.Context, m Manifest) (Manifest, error) {
	if !m.IsMaster {
		return m, nil
	}
	if len(m.Variants) == 0 {
		return Manifest{}, errs.Wrap(errs.InvalidManifest, "hls.ResolveVariant", "master manifest has no variants")
	}
	best := m.Variants[0]
	for _, v := range m.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return d.FetchManifest(ctx, best.URI)
}

// PauseFunc is polled between segments; returning true stops the
// transfer at the next segment boundary.
type PauseFunc func() bool

// ProgressFunc is called after each segment is durably appended, with
// the count of segments written so far and the total known.
type ProgressFunc func(done, total int)

// DownloadVariant fetches every segment of a media manifest in order and
// appends each one to destPath as it arrives, so a pause leaves a valid
// prefix of the final file on disk. resumeFrom skips that many leading
// segments, for resuming a previously paused transfer.
//
// For a LIVE manifest with no #EXT-X-ENDLIST, this makes one bounded
// pass over whatever segments are listed right now; it does not re-poll
// the manifest for newly appended segments.
func (d *Downloader) DownloadVariant(ctx context.Context, m Manifest, destPath string, resumeFrom int, paused PauseFunc, onProgress ProgressFunc) (segmentsWritten int, err error) {
	if m.IsMaster {
		return 0, errs.New(errs.InvalidInput, "hls.DownloadVariant", errMasterNotMedia)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, openErr := os.OpenFile(destPath, flags, 0644)
	if openErr != nil {
		return 0, errs.Wrap(errs.StorageFailure, "hls.DownloadVariant", "open %s: %w", destPath, openErr)
	}
	defer f.Close()

	total := len(m.Segments)
	written := resumeFrom
	for i := resumeFrom; i < total; i++ {
		if paused != nil && paused() {
			return written, errs.New(errs.IllegalState, "hls.DownloadVariant", ErrPaused)
		}

		seg := m.Segments[i]
		if err := d.appendSegment(ctx, seg.URI, f); err != nil {
			return written, err
		}
		written++
		utils.Debug("hls: wrote segment %d/%d (%s)", written, total, seg.URI)
		if onProgress != nil {
			onProgress(written, total)
		}
	}
	return written, nil
}

func (d *Downloader) appendSegment(ctx context.Context, rawurl string, w io.Writer) error {
	resp, err := d.get(ctx, rawurl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return errs.Wrap(errs.StorageFailure, "hls.appendSegment", "write segment: %w", err)
	}
	return nil
}

func (d *Downloader) get(ctx context.Context, rawurl string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "hls.get", "build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.TransportFailure, "hls.get", "request %s: %w", rawurl, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.Wrap(errs.TransportFailure, "hls.get", "unexpected status %d for %s", resp.StatusCode, rawurl)
	}
	return resp, nil
}

func (d *Downloader) client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}
