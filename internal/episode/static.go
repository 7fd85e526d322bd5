// Package episode provides model.Episode implementations that do not need a
// site integration.
package episode

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/hls"
	"github.com/jmagar/epgrab/internal/model"
)

// SubtitleSource is one subtitle given on the command line.
type SubtitleSource struct {
	Location string // file path or http(s) URL
	Language string
	Locale   string
	Title    string
	Default  bool
}

// ParseSubtitleSource reads "path[,lang=eng][,locale=en-US][,title=English][,default]".
func ParseSubtitleSource(raw string) (SubtitleSource, error) {
	parts := strings.Split(raw, ",")
	src := SubtitleSource{Location: strings.TrimSpace(parts[0])}
	if src.Location == "" {
		return src, model.UserInputf("subtitle %q: missing path", raw)
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch strings.ToLower(key) {
		case "lang", "language":
			src.Language = value
		case "locale":
			src.Locale = value
		case "title":
			src.Title = value
		case "default":
			src.Default = true
		case "":
		default:
			return src, model.UserInputf("subtitle %q: unknown option %q", raw, key)
		}
	}
	return src, nil
}

// Static is an episode described entirely by a stream URL, subtitle sources
// and metadata flags.
type Static struct {
	streamURL string
	meta      model.Metadata
	subs      []SubtitleSource
	fetcher   api.Fetcher

	once     sync.Once
	variants []hls.Variant
	err      error
}

var _ model.Episode = (*Static)(nil)

// NewStatic validates the subtitle sources. At most one may be flagged default.
func NewStatic(streamURL string, meta model.Metadata, subs []string, fetcher api.Fetcher) (*Static, error) {
	if streamURL == "" {
		return nil, model.UserInputf("a stream URL is required")
	}
	s := &Static{streamURL: streamURL, meta: meta, fetcher: fetcher}
	defaults := 0
	for _, raw := range subs {
		src, err := ParseSubtitleSource(raw)
		if err != nil {
			return nil, err
		}
		if src.Default {
			defaults++
		}
		s.subs = append(s.subs, src)
	}
	if defaults > 1 {
		return nil, model.UserInputf("only one subtitle can be default, got %d", defaults)
	}
	return s, nil
}

func (s *Static) Metadata() model.Metadata { return s.meta }

func (s *Static) Blocked() model.BlockReason { return model.BlockReason{} }

func (s *Static) loadVariants(ctx context.Context) ([]hls.Variant, error) {
	s.once.Do(func() {
		s.variants, _, s.err = hls.Variants(ctx, s.fetcher, s.streamURL)
	})
	return s.variants, s.err
}

// Resolutions lists the master playlist heights, tallest first. A media
// playlist has a single unknown height, reported as 0.
func (s *Static) Resolutions(ctx context.Context, _ string) ([]int, error) {
	variants, err := s.loadVariants(ctx)
	if err != nil {
		return nil, err
	}
	var heights []int
	for _, v := range variants {
		if v.Height > 0 && !slices.Contains(heights, v.Height) {
			heights = append(heights, v.Height)
		}
	}
	if len(heights) == 0 {
		return []int{0}, nil
	}
	slices.Sort(heights)
	slices.Reverse(heights)
	return heights, nil
}

// Streams returns the single stream URL; variant choice happens when the
// manifest is loaded.
func (s *Static) Streams(_ context.Context, _ string, height int) ([]model.Stream, error) {
	return []model.Stream{{URL: s.streamURL, Height: height}}, nil
}

// Subtitles loads every source from disk or over HTTP.
func (s *Static) Subtitles(ctx context.Context) ([]model.Subtitle, error) {
	out := make([]model.Subtitle, 0, len(s.subs))
	for _, src := range s.subs {
		data, name, err := s.read(ctx, src.Location)
		if err != nil {
			return nil, err
		}
		title := src.Title
		if title == "" {
			title = src.Language
		}
		out = append(out, model.Subtitle{
			Locale:   src.Locale,
			Language: src.Language,
			Title:    title,
			Default:  src.Default,
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
			Data:     data,
		})
	}
	return out, nil
}

func (s *Static) read(ctx context.Context, location string) ([]byte, string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		resp, err := s.fetcher.Get(ctx, location)
		if err != nil {
			return nil, "", fmt.Errorf("subtitle: %w", err)
		}
		name := location
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		return resp.Body, path.Base(name), nil
	}
	data, err := os.ReadFile(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", model.UserInputf("subtitle file %s does not exist", location)
		}
		return nil, "", model.FSError("read", location, err)
	}
	return data, location, nil
}
