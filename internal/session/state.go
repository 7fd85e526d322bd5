package session

import "fmt"

// State is a session lifecycle step.
type State int

const (
	StateIdle State = iota
	StateResolvingStream
	StateDownloadingManifest
	StateDownloadingKey
	StateDownloadingSegments
	StateMuxing
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateResolvingStream:     "resolving-stream",
	StateDownloadingManifest: "downloading-manifest",
	StateDownloadingKey:      "downloading-key",
	StateDownloadingSegments: "downloading-segments",
	StateMuxing:              "muxing",
	StateDone:                "done",
	StateFailed:              "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Idle goes straight to Done for skipped outputs and subtitles-only runs.
var transitions = map[State][]State{
	StateIdle:                {StateResolvingStream, StateDone},
	StateResolvingStream:     {StateDownloadingManifest},
	StateDownloadingManifest: {StateDownloadingKey},
	StateDownloadingKey:      {StateDownloadingSegments},
	StateDownloadingSegments: {StateMuxing},
	StateMuxing:              {StateDone},
}

// CanTransition reports whether s may move to next. Every non-terminal
// state may fail.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the session.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
