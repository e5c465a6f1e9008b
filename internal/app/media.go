package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/peersync/watchparty/internal/domain"
)

const youtubeIDLen = 11

var (
	youtubePattern = regexp.MustCompile(`(?:youtu\.be/|v/|u/\w/|embed/|shorts/|watch\?v=|&v=)([^#&?/]*)`)

	drivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/file/d/([^/]+)`),
		regexp.MustCompile(`id=([^&]+)`),
		regexp.MustCompile(`/d/([^/]+)`),
	}
)

// ParseMediaURL classifies a URL against the known source patterns and
// extracts the source-specific media identifier.
func ParseMediaURL(raw string) (domain.MediaSource, string, error) {
	switch {
	case strings.Contains(raw, "youtube.com") || strings.Contains(raw, "youtu.be"):
		m := youtubePattern.FindStringSubmatch(raw)
		if m == nil || len(m[1]) != youtubeIDLen {
			return domain.SourceNone, "", fmt.Errorf("%w: %q", domain.ErrInvalidMediaURL, raw)
		}
		return domain.SourceYouTube, m[1], nil
	case strings.Contains(raw, "drive.google.com"):
		for _, p := range drivePatterns {
			if m := p.FindStringSubmatch(raw); m != nil {
				return domain.SourceDrive, m[1], nil
			}
		}
		return domain.SourceNone, "", fmt.Errorf("%w: %q", domain.ErrInvalidMediaURL, raw)
	}
	return domain.SourceNone, "", fmt.Errorf("%w: %q", domain.ErrInvalidMediaURL, raw)
}

func sourceLabel(src domain.MediaSource) string {
	if src == domain.SourceDrive {
		return "Drive"
	}
	return "YouTube"
}
