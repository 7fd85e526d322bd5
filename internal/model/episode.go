package model

import "context"

// Episode is the per-episode collaborator supplied by a site integration.
// Discovery, login and scraping live behind this interface.
type Episode interface {
	Metadata() Metadata
	Blocked() BlockReason
	// Resolutions lists available heights for a hardsub language ("" = none), best first.
	Resolutions(ctx context.Context, hardsubLang string) ([]int, error)
	// Streams lists candidate streams for one height, in preference order.
	Streams(ctx context.Context, hardsubLang string, height int) ([]Stream, error)
	Subtitles(ctx context.Context) ([]Subtitle, error)
}

// Metadata describes an episode for naming and logging.
type Metadata struct {
	Series        string
	Season        string
	SeasonNumber  int
	EpisodeNumber string
	Title         string
}

// BlockReason reports why an episode cannot be fetched.
type BlockReason struct {
	Premium bool
	Region  bool
}

// Any reports whether any block flag is set.
func (b BlockReason) Any() bool {
	return b.Premium || b.Region
}

// Stream is a playable manifest URL at a known height.
type Stream struct {
	URL    string
	Height int
}

// Subtitle is a subtitle handle with its raw payload.
type Subtitle struct {
	Locale   string // e.g. en-US
	Language string // ISO 639-2 code, e.g. eng
	Title    string
	Default  bool
	Format   string // ass, srt, vtt
	Data     []byte
}
