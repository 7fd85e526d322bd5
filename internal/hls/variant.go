package hls

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/model"
)

// Variant is one rendition of a master playlist.
type Variant struct {
	URL        string
	Height     int
	Bandwidth  uint32
	Resolution string
	FrameRate  float64
}

// Variants fetches rawURL. For a master playlist it returns the variants sorted
// by bandwidth, highest first; for a media playlist it returns nil, false.
func Variants(ctx context.Context, fetcher api.Fetcher, rawURL string) ([]Variant, bool, error) {
	resp, err := fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, false, fmt.Errorf("fetch playlist: %w", err)
	}
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(resp.Body), false)
	if err != nil {
		return nil, false, &model.ManifestParseError{Msg: fmt.Sprintf("decode playlist: %v", err)}
	}
	if listType != m3u8.MASTER {
		return nil, false, nil
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		return nil, true, &model.ManifestParseError{Msg: fmt.Sprintf("invalid playlist url %q: %v", resp.FinalURL, err)}
	}

	master := playlist.(*m3u8.MasterPlaylist)
	variants := make([]Variant, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		ref, err := url.Parse(v.URI)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if !ref.IsAbs() && ref.RawQuery == "" && base.RawQuery != "" {
			abs.RawQuery = base.RawQuery
		}
		variants = append(variants, Variant{
			URL:        abs.String(),
			Height:     parseHeight(v.Resolution),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			FrameRate:  v.FrameRate,
		})
	}
	sort.SliceStable(variants, func(x, y int) bool {
		return variants[x].Bandwidth > variants[y].Bandwidth
	})
	return variants, true, nil
}

// ChooseVariant picks the variant matching wantHeight, falling back to the
// tallest variant below it and finally to the highest bandwidth. wantHeight 0
// means best available. exact reports whether the requested height was found.
func ChooseVariant(variants []Variant, wantHeight int) (v Variant, exact bool, err error) {
	if len(variants) == 0 {
		return Variant{}, false, &model.ManifestParseError{Msg: "master playlist has no variants"}
	}
	if wantHeight <= 0 {
		return variants[0], true, nil
	}
	best := -1
	for i, candidate := range variants {
		if candidate.Height == wantHeight {
			return candidate, true, nil
		}
		if candidate.Height < wantHeight && (best < 0 || candidate.Height > variants[best].Height) {
			best = i
		}
	}
	if best >= 0 {
		return variants[best], false, nil
	}
	return variants[0], false, nil
}

// ResolveMediaURL turns a master playlist URL into the chosen media playlist
// URL. Media playlist URLs are returned unchanged with height 0.
func ResolveMediaURL(ctx context.Context, fetcher api.Fetcher, rawURL string, wantHeight int) (string, int, error) {
	variants, master, err := Variants(ctx, fetcher, rawURL)
	if err != nil {
		return "", 0, err
	}
	if !master {
		return rawURL, 0, nil
	}
	v, _, err := ChooseVariant(variants, wantHeight)
	if err != nil {
		return "", 0, err
	}
	return v.URL, v.Height, nil
}

// FormatRes formats a height for display.
func FormatRes(height int) string {
	switch {
	case height <= 0:
		return "source"
	case height == 2160:
		return "4K"
	default:
		return strconv.Itoa(height) + "p"
	}
}

func parseHeight(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0
	}
	return n
}
