package model

import "time"

// ProgressSnapshot is emitted by the download engine after each completed segment.
type ProgressSnapshot struct {
	DownloadedBytes     int64
	EstimatedTotalBytes int64
	Speed               float64 // bytes/sec over the recent window
	Completed           int
	Total               int
	Timestamp           time.Time
}

// Percent returns completion by bytes, clamped to [0,100].
func (p ProgressSnapshot) Percent() int {
	if p.EstimatedTotalBytes <= 0 {
		return 0
	}
	pct := int(float64(p.DownloadedBytes) / float64(p.EstimatedTotalBytes) * 100)
	return min(max(pct, 0), 100)
}

// ETA estimates the remaining download time from the current speed.
func (p ProgressSnapshot) ETA() time.Duration {
	remaining := p.EstimatedTotalBytes - p.DownloadedBytes
	if p.Speed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / p.Speed * float64(time.Second))
}

// MuxProgress is the structured progress extracted from the muxer's diagnostics.
type MuxProgress struct {
	TotalDurationMs int64
	ElapsedMs       int64
	Rate            float64 // encode speed relative to realtime, e.g. 12.5x
}

// Percent returns elapsed/total clamped to [0,100], or 0 while the duration is unknown.
func (p MuxProgress) Percent() int {
	if p.TotalDurationMs <= 0 {
		return 0
	}
	pct := int(float64(p.ElapsedMs) / float64(p.TotalDurationMs) * 100)
	return min(max(pct, 0), 100)
}
