package mux

import "sync"

// LineRing keeps the last N lines of tool output for error reports.
type LineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	full  bool
}

// NewLineRing creates a ring holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest once full.
func (r *LineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// Lines returns the retained lines in chronological order.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]string(nil), r.lines[:r.head]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.head:]...)
	return append(out, r.lines[:r.head]...)
}
