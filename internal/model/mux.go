package model

import "fmt"

// SubtitleTrack is one subtitle file attached to the output container.
type SubtitleTrack struct {
	Path     string
	Language string // ISO 639 code written to the stream metadata
	Title    string
	Default  bool
}

// MuxSpec describes one mux invocation.
type MuxSpec struct {
	ManifestPath string
	Subtitles    []SubtitleTrack
	Fonts        []string
	OutputPath   string
}

// Validate checks the spec before a mux process is started.
func (s MuxSpec) Validate() error {
	if s.ManifestPath == "" {
		return fmt.Errorf("mux spec: manifest path is empty")
	}
	if s.OutputPath == "" {
		return fmt.Errorf("mux spec: output path is empty")
	}
	defaults := 0
	for i, sub := range s.Subtitles {
		if sub.Path == "" {
			return fmt.Errorf("mux spec: subtitle %d has no path", i)
		}
		if sub.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("mux spec: %d subtitle tracks flagged default, at most one allowed", defaults)
	}
	return nil
}
