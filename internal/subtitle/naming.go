package subtitle

import (
	"fmt"
	"strings"

	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/model"
)

// Extension maps a subtitle format to its file extension.
func Extension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "ass", "ssa":
		return ".ass"
	case "srt", "subrip":
		return ".srt"
	case "vtt", "webvtt":
		return ".vtt"
	default:
		return "." + strings.ToLower(format)
	}
}

// Code picks the short language code used in file names.
func Code(sub model.Subtitle) string {
	switch {
	case sub.Language != "":
		return strings.ToLower(sub.Language)
	case sub.Locale != "":
		return strings.ToLower(sub.Locale)
	default:
		return "und"
	}
}

// SidecarPath returns <output-stem>.<language-code>.<ext> next to the output file.
func SidecarPath(outputPath string, sub model.Subtitle) string {
	return helpers.StemPath(outputPath) + "." + helpers.Sanitise(Code(sub)) + Extension(sub.Format)
}

// WorkspaceName is the file name of a subtitle inside the session workspace.
func WorkspaceName(i int, sub model.Subtitle) string {
	return fmt.Sprintf("%02d_%s%s", i, helpers.Sanitise(Code(sub)), Extension(sub.Format))
}

// Match reports whether sub is selected by langs. An empty list or "all"
// selects everything; entries match the locale or the language code.
func Match(sub model.Subtitle, langs []string) bool {
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		l = strings.TrimSpace(l)
		if strings.EqualFold(l, "all") ||
			strings.EqualFold(l, sub.Locale) ||
			strings.EqualFold(l, sub.Language) {
			return true
		}
	}
	return false
}

// Filter keeps the subtitles selected by langs, preserving order.
func Filter(subs []model.Subtitle, langs []string) []model.Subtitle {
	var out []model.Subtitle
	for _, s := range subs {
		if Match(s, langs) {
			out = append(out, s)
		}
	}
	return out
}
