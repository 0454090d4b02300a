package hls

import (
	"bufio"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/surge-downloader/surge/internal/errs"
)

var (
	bandwidthRe  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
	resolutionRe = regexp.MustCompile(`RESOLUTION=(\d+x\d+)`)
	codecsRe     = regexp.MustCompile(`CODECS="([^"]*)"`)
	audioRe      = regexp.MustCompile(`AUDIO="([^"]*)"`)
	subtitlesRe  = regexp.MustCompile(`SUBTITLES="([^"]*)"`)
	versionRe    = regexp.MustCompile(`#EXT-X-VERSION:(\d+)`)
)

// Parse reads an M3U8 playlist body fetched from baseURL and classifies
// it as a master or media playlist. Relative URIs in the playlist are
// resolved against baseURL.
func Parse(r io.Reader, baseURL string) (Manifest, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return Manifest{}, errs.Wrap(errs.InvalidManifest, "hls.Parse", "parse base URL: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return Manifest{}, errs.Wrap(errs.InvalidManifest, "hls.Parse", "scan playlist: %w", err)
	}
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "#EXTM3U") {
		return Manifest{}, errs.Wrap(errs.InvalidManifest, "hls.Parse", "missing #EXTM3U header")
	}

	var version int
	for _, line := range lines {
		if m := versionRe.FindStringSubmatch(line); len(m) == 2 {
			version, _ = strconv.Atoi(m[1])
			break
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			manifest := parseMaster(lines, base)
			manifest.Version = version
			return manifest, nil
		}
	}
	manifest := parseMedia(lines, base)
	manifest.Version = version
	return manifest, nil
}

func parseMaster(lines []string, base *url.URL) Manifest {
	var variants []Variant
	for i, line := range lines {
		if !strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			continue
		}
		v := Variant{}
		if m := bandwidthRe.FindStringSubmatch(line); len(m) == 2 {
			v.Bandwidth, _ = strconv.Atoi(m[1])
		}
		if m := resolutionRe.FindStringSubmatch(line); len(m) == 2 {
			v.Resolution = m[1]
		}
		if m := codecsRe.FindStringSubmatch(line); len(m) == 2 {
			v.Codecs = m[1]
		}
		if m := audioRe.FindStringSubmatch(line); len(m) == 2 {
			v.Audio = m[1]
		}
		if m := subtitlesRe.FindStringSubmatch(line); len(m) == 2 {
			v.Subtitles = m[1]
		}
		if i+1 < len(lines) && !strings.HasPrefix(lines[i+1], "#") {
			v.URI = resolve(base, lines[i+1])
			v.Label = qualityLabel(v)
			variants = append(variants, v)
		}
	}
	return Manifest{IsMaster: true, Variants: variants}
}

func parseMedia(lines []string, base *url.URL) Manifest {
	m := Manifest{StreamType: StreamLive}
	index := 0
	var pendingDuration float64

	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if d, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				m.TargetDuration = d
			}
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			m.EndList = true
			m.StreamType = StreamVOD
		case strings.HasPrefix(line, "#EXTINF:"):
			rest := strings.TrimPrefix(line, "#EXTINF:")
			durStr, _, _ := strings.Cut(rest, ",")
			pendingDuration, _ = strconv.ParseFloat(strings.TrimRight(durStr, ","), 64)
		case !strings.HasPrefix(line, "#"):
			m.Segments = append(m.Segments, Segment{
				URI:      resolve(base, line),
				Duration: pendingDuration,
				Index:    index,
			})
			m.Duration += pendingDuration
			index++
			pendingDuration = 0
			_ = i
		}
	}
	return m
}

func resolve(base *url.URL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
