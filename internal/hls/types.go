// Package hls parses M3U8 playlists and downloads a selected variant's
// segments into a single ordered file. There is no HLS support anywhere
// in the repo this was grown from; the tag grammar below follows the
// handful of community HLS readers that do exist in the broader Go
// ecosystem.
package hls

import (
	"strconv"
	"strings"
)

// Segment is one media segment entry from a media playlist.
type Segment struct {
	URI      string
	Duration float64
	Index    int
}

// Variant is one quality rendition from a master playlist's
// #EXT-X-STREAM-INF entries.
type Variant struct {
	URI        string
	Bandwidth  int
	Resolution string // e.g. "1920x1080", empty if absent
	Codecs     string
	Audio      string // AUDIO group id, empty if absent
	Subtitles  string // SUBTITLES group id, empty if absent
	Label      string // human-readable quality label derived below
}

// StreamType is a media playlist's liveness, derived from whether
// #EXT-X-ENDLIST was seen.
type StreamType string

const (
	StreamVOD  StreamType = "vod"
	StreamLive StreamType = "live"
)

// Manifest is the parsed result of fetching one playlist URL. Exactly
// one of Variants or Segments is populated: a master playlist yields
// Variants (and the caller must fetch the chosen one's URI to get a
// second Manifest with Segments); a media playlist yields Segments
// directly.
type Manifest struct {
	Version        int
	IsMaster       bool
	Variants       []Variant
	Segments       []Segment
	Duration       float64 // sum of segment durations, media playlists only
	TargetDuration float64
	StreamType     StreamType
	EndList        bool // true once #EXT-X-ENDLIST is seen (VOD, or LIVE that just ended)
}

// qualityLabel derives a human-readable label from a variant's
// resolution height, falling back to bandwidth bins when resolution is
// absent.
func qualityLabel(v Variant) string {
	if height, ok := resolutionHeight(v.Resolution); ok {
		switch {
		case height >= 2160:
			return "4K"
		case height >= 1440:
			return "1440p"
		case height >= 1080:
			return "1080p"
		case height >= 720:
			return "720p"
		case height >= 480:
			return "480p"
		default:
			return "360p"
		}
	}

	switch {
	case v.Bandwidth >= 8_000_000:
		return "1080p+"
	case v.Bandwidth >= 5_000_000:
		return "1080p"
	case v.Bandwidth >= 2_500_000:
		return "720p"
	case v.Bandwidth >= 1_000_000:
		return "480p"
	case v.Bandwidth > 0:
		return "360p"
	default:
		return "unknown"
	}
}

// resolutionHeight extracts the height from a "WIDTHxHEIGHT" string.
func resolutionHeight(resolution string) (int, bool) {
	_, heightStr, found := strings.Cut(resolution, "x")
	if !found {
		return 0, false
	}
	height, err := strconv.Atoi(heightStr)
	if err != nil {
		return 0, false
	}
	return height, true
}
