package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jmagar/epgrab/internal/model"
)

// Progress redraws a single status line, throttled to avoid flooding the terminal.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	width    int
	enabled  bool
}

// NewProgress returns a renderer writing to w. Disabled renderers print nothing.
func NewProgress(w io.Writer, enabled bool) *Progress {
	return &Progress{w: w, interval: 150 * time.Millisecond, enabled: enabled}
}

// Download renders a download snapshot. The final snapshot is always drawn.
func (p *Progress) Download(s model.ProgressSnapshot) {
	p.draw(DownloadLine(s), s.Completed == s.Total)
}

// Mux renders mux progress.
func (p *Progress) Mux(m model.MuxProgress) {
	p.draw(MuxLine(m), m.TotalDurationMs > 0 && m.ElapsedMs >= m.TotalDurationMs)
}

// Done ends the current status line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled && p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func (p *Progress) draw(line string, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	now := time.Now()
	if !force && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	line = TruncateWithEllipsis(line, GetTermWidth()-1)
	pad := max(p.width-VisibleLength(line), 0)
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
	p.width = VisibleLength(line)
}
