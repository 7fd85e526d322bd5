package ui

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/jmagar/epgrab/internal/model"
)

// AnsiRegex is compiled once for performance.
var AnsiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

const termWidthCacheTTL = 500 * time.Millisecond

var (
	termWidthMu         sync.Mutex
	cachedTermWidth     = 80
	cachedTermWidthTime time.Time
)

// GetTermWidth returns the terminal width, defaulting to 80.
func GetTermWidth() int {
	termWidthMu.Lock()
	defer termWidthMu.Unlock()
	if time.Since(cachedTermWidthTime) <= termWidthCacheTTL && cachedTermWidth > 0 {
		return cachedTermWidth
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width == 0 {
		width = 80
	}
	cachedTermWidth = width
	cachedTermWidthTime = time.Now()
	return width
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// StripAnsiCodes removes ANSI escape sequences from a string.
func StripAnsiCodes(s string) string {
	return AnsiRegex.ReplaceAllString(s, "")
}

// VisibleLength returns the visible length of a string (excluding ANSI codes).
func VisibleLength(s string) int {
	return utf8.RuneCountInString(StripAnsiCodes(s))
}

// TruncateWithEllipsis truncates a string to maxLen visible runes.
func TruncateWithEllipsis(s string, maxLen int) string {
	if VisibleLength(s) <= maxLen {
		return s
	}
	runes := []rune(StripAnsiCodes(s))
	if maxLen <= 3 {
		return string(runes[:max(maxLen, 0)])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Bar renders a fixed-width progress bar.
func Bar(percentage, width int) string {
	percentage = min(max(percentage, 0), 100)
	filled := percentage * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// DownloadLine formats a segment download snapshot on one line.
func DownloadLine(s model.ProgressSnapshot) string {
	eta := "--"
	if d := s.ETA(); d > 0 {
		eta = d.Round(time.Second).String()
	}
	return fmt.Sprintf("%s%s%s [%s] %s%3d%%%s %s/%s @ %s/s, %d/%d segments, eta %s",
		ColorBold, "video", ColorReset,
		Bar(s.Percent(), 24),
		ColorBold, s.Percent(), ColorReset,
		humanize.Bytes(uint64(max(s.DownloadedBytes, 0))),
		humanize.Bytes(uint64(max(s.EstimatedTotalBytes, 0))),
		humanize.Bytes(uint64(max(s.Speed, 0))),
		s.Completed, s.Total, eta)
}

// MuxLine formats mux progress on one line.
func MuxLine(p model.MuxProgress) string {
	elapsed := time.Duration(p.ElapsedMs) * time.Millisecond
	total := time.Duration(p.TotalDurationMs) * time.Millisecond
	return fmt.Sprintf("%s%s%s   [%s] %s%3d%%%s %s/%s @ %.1fx",
		ColorBold, "mux", ColorReset,
		Bar(p.Percent(), 24),
		ColorBold, p.Percent(), ColorReset,
		elapsed.Round(time.Second), total.Round(time.Second), p.Rate)
}
