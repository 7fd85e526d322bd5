package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jmagar/epgrab/internal/model"
)

func TestTruncateWithEllipsis(t *testing.T) {
	assert.Equal(t, "short", TruncateWithEllipsis("short", 10))
	assert.Equal(t, "abcdefg...", TruncateWithEllipsis("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateWithEllipsis("\033[1mabcdef\033[0m", 2))
}

func TestBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", Bar(50, 10))
	assert.Equal(t, "░░░░", Bar(-5, 4))
	assert.Equal(t, "████", Bar(300, 4))
}

func TestDownloadLine(t *testing.T) {
	line := StripAnsiCodes(DownloadLine(model.ProgressSnapshot{
		DownloadedBytes: 5_000_000, EstimatedTotalBytes: 10_000_000, Speed: 1_000_000, Completed: 5, Total: 10,
	}))
	assert.Contains(t, line, " 50% 5.0 MB/10 MB @ 1.0 MB/s, 5/10 segments, eta 5s")
}

func TestMuxLine(t *testing.T) {
	line := StripAnsiCodes(MuxLine(model.MuxProgress{TotalDurationMs: 60000, ElapsedMs: 15000, Rate: 12.5}))
	assert.Contains(t, line, " 25% 15s/1m0s @ 12.5x")
}

func TestProgress_Throttles(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)
	p.interval = time.Hour

	p.Download(model.ProgressSnapshot{Completed: 1, Total: 3, DownloadedBytes: 1, EstimatedTotalBytes: 3})
	p.Download(model.ProgressSnapshot{Completed: 2, Total: 3, DownloadedBytes: 2, EstimatedTotalBytes: 3})
	p.Download(model.ProgressSnapshot{Completed: 3, Total: 3, DownloadedBytes: 3, EstimatedTotalBytes: 3})
	p.Done()

	out := StripAnsiCodes(buf.String())
	assert.Equal(t, 2, strings.Count(out, "\r"), "second update throttled, final forced")
	assert.Contains(t, out, "3/3 segments")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestProgress_Disabled(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)
	p.Download(model.ProgressSnapshot{Completed: 1, Total: 1})
	p.Done()
	assert.Empty(t, buf.String())
}

func TestPrintWarningCounts(t *testing.T) {
	var buf bytes.Buffer
	orig := Out
	Out = &buf
	t.Cleanup(func() { Out = orig })

	before := RunWarningCount
	PrintWarning("careful")
	assert.Equal(t, before+1, RunWarningCount)
	assert.Contains(t, buf.String(), "careful")
}
