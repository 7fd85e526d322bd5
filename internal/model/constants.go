package model

import "strings"

// Segment naming modes for local files in the workspace.
const (
	NamingOrdinal = "ordinal" // <base>_<00001>.<ext>
	NamingSource  = "source"  // remote basename, kept as served by the CDN
)

// Defaults applied by config validation when a field is left empty.
const (
	DefaultConnections = 5
	DefaultMaxRetries  = 5
	DefaultFfmpeg      = "ffmpeg"
	DefaultUserAgent   = "epgrab/1.0"
	DefaultSpeedWindow = 10
)

// SegmentStatus is the lifecycle state of a single segment fetch.
type SegmentStatus int

const (
	SegmentPending SegmentStatus = iota
	SegmentInProgress
	SegmentDone
	SegmentFailed
)

// String returns the string representation of the SegmentStatus
func (s SegmentStatus) String() string {
	switch s {
	case SegmentPending:
		return "pending"
	case SegmentInProgress:
		return "in-progress"
	case SegmentDone:
		return "done"
	case SegmentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseNaming normalizes a naming mode, defaulting to NamingOrdinal.
func ParseNaming(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", NamingOrdinal:
		return NamingOrdinal, true
	case NamingSource:
		return NamingSource, true
	default:
		return "", false
	}
}
