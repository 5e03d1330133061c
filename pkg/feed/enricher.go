package feed

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Enricher derives presentation metadata from normalized articles. It is
// purely pattern-based and never touches the network, so it can't fail.
type Enricher struct{}

// NewEnricher creates an enricher
func NewEnricher() *Enricher {
	return &Enricher{}
}

// youtube video ids are url-safe base64; real ones are 11 chars but the
// format isn't guaranteed, so accept anything plausible
var youtubePathRe = regexp.MustCompile(`^/(?:embed|shorts|v)/([A-Za-z0-9_-]{6,})`)

// matches youtube URLs inside summary HTML (iframe src, anchors)
var youtubeEmbedRe = regexp.MustCompile(`https?://(?:www\.)?(?:youtube\.com/(?:watch\?(?:[^"'\s<>]*&)?v=|embed/|shorts/|v/)|youtu\.be/)([A-Za-z0-9_-]{6,})`)

// Thumbnail returns a thumbnail URL for the article when its link or summary
// HTML contains a recognized video URL, or "" when nothing matches.
func (e *Enricher) Thumbnail(link, summaryHTML string) string {
	if id := youtubeVideoID(link); id != "" {
		return thumbnailURL(id)
	}
	if m := youtubeEmbedRe.FindStringSubmatch(summaryHTML); m != nil {
		return thumbnailURL(m[1])
	}
	return ""
}

// youtubeVideoID extracts the video id from a youtube watch/short/embed URL,
// or returns "" when rawURL isn't one
func youtubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			if id := u.Query().Get("v"); len(id) >= 6 {
				return id
			}
			return ""
		}
		if m := youtubePathRe.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	case "youtu.be":
		id := strings.TrimPrefix(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if len(id) >= 6 {
			return id
		}
	}
	return ""
}

func thumbnailURL(videoID string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}
