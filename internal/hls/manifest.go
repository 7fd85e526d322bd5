// Package hls parses and rewrites HLS media playlists so they reference the
// files of a local session workspace.
package hls

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/grafov/m3u8"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/model"
)

const (
	tagHeader    = "#EXTM3U"
	tagKey       = "#EXT-X-KEY:"
	tagMap       = "#EXT-X-MAP:"
	tagStreamInf = "#EXT-X-STREAM-INF"

	defaultSegmentExt = ".ts"
)

// Options tunes manifest parsing.
type Options struct {
	Naming string // model.NamingOrdinal or model.NamingSource
}

// Option mutates Options.
type Option func(*Options)

// WithNaming selects how local segment files are named.
func WithNaming(mode string) Option {
	return func(o *Options) { o.Naming = mode }
}

// Manifest is a parsed media playlist bound to a workspace directory.
type Manifest struct {
	Dir       string
	BaseName  string
	SourceURL string // post-redirect URL relative references were resolved against

	segments  []*model.Segment
	key       *model.EncryptionKey
	rewritten string
}

// Load fetches remoteURL and parses it for the workspace dir. Segment and key
// files are named after baseName.
func Load(ctx context.Context, remoteURL, workspaceDir, baseName string, fetcher api.Fetcher, opts ...Option) (*Manifest, error) {
	resp, err := fetcher.Get(ctx, remoteURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return Parse(string(resp.Body), resp.FinalURL, workspaceDir, baseName, opts...)
}

// Parse classifies every playlist line and builds the rewritten text.
func Parse(text, sourceURL, workspaceDir, baseName string, opts ...Option) (*Manifest, error) {
	o := Options{Naming: model.NamingOrdinal}
	for _, opt := range opts {
		opt(&o)
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, &model.ManifestParseError{Msg: fmt.Sprintf("invalid manifest url %q: %v", sourceURL, err)}
	}
	baseName = helpers.Sanitise(baseName)
	if baseName == "" {
		baseName = "video"
	}

	m := &Manifest{Dir: workspaceDir, BaseName: baseName, SourceURL: sourceURL}
	p := &parser{m: m, base: base, naming: o.Naming, names: make(map[string]int), inits: make(map[string]*model.Segment)}

	rawLines := strings.Split(text, "\n")
	out := make([]string, len(rawLines))
	for i, raw := range rawLines {
		content, cr := strings.CutSuffix(raw, "\r")
		rewritten, err := p.line(i+1, content)
		if err != nil {
			return nil, err
		}
		if cr {
			rewritten += "\r"
		}
		out[i] = rewritten
	}
	if !p.sawHeader {
		return nil, &model.ManifestParseError{Msg: "empty playlist"}
	}
	if len(m.segments) == 0 {
		return nil, &model.ManifestParseError{Msg: "playlist has no segments"}
	}
	m.rewritten = strings.Join(out, "\n")
	return m, nil
}

type parser struct {
	m         *Manifest
	base      *url.URL
	naming    string
	names     map[string]int            // local name -> line that claimed it
	inits     map[string]*model.Segment // resolved init URI -> its segment
	sawHeader bool
}

func (p *parser) line(lineNo int, content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if !p.sawHeader {
		if trimmed == "" {
			return content, nil
		}
		if strings.TrimPrefix(trimmed, "\ufeff") != tagHeader {
			return "", &model.ManifestParseError{Line: lineNo, Msg: "missing #EXTM3U header"}
		}
		p.sawHeader = true
		return content, nil
	}

	switch {
	case trimmed == "":
		return content, nil
	case strings.HasPrefix(trimmed, tagStreamInf):
		return "", &model.ManifestParseError{Line: lineNo, Msg: "master playlist given, a media playlist is required"}
	case strings.HasPrefix(trimmed, tagKey):
		return p.keyLine(lineNo, content, trimmed)
	case strings.HasPrefix(trimmed, tagMap):
		return p.mapLine(lineNo, content, trimmed)
	case strings.HasPrefix(trimmed, "#"):
		return content, nil
	default:
		seg, err := p.segment(lineNo, trimmed, false)
		if err != nil {
			return "", err
		}
		return strings.Replace(content, trimmed, seg.Name, 1), nil
	}
}

func (p *parser) keyLine(lineNo int, content, trimmed string) (string, error) {
	attrs := parseAttributes(strings.TrimPrefix(trimmed, tagKey))
	method := strings.ToUpper(attrs["METHOD"])
	switch method {
	case "":
		return "", &model.ManifestParseError{Line: lineNo, Msg: "EXT-X-KEY without METHOD"}
	case "NONE":
		return content, nil
	}
	uri := attrs["URI"]
	if uri == "" {
		return "", &model.ManifestParseError{Line: lineNo, Msg: "EXT-X-KEY without URI"}
	}
	abs, err := p.resolve(uri, false)
	if err != nil {
		return "", &model.ManifestParseError{Line: lineNo, Msg: fmt.Sprintf("invalid key uri %q: %v", uri, err)}
	}

	if p.m.key == nil {
		name := p.m.BaseName + ".key"
		if err := p.claim(lineNo, name); err != nil {
			return "", err
		}
		p.m.key = &model.EncryptionKey{
			Method: method,
			URI:    abs,
			IV:     attrs["IV"],
			Name:   name,
			Path:   filepath.Join(p.m.Dir, name),
		}
	} else if p.m.key.URI != abs {
		return "", &model.ManifestParseError{Line: lineNo, Msg: "multiple distinct encryption keys are not supported"}
	}
	return replaceURIAttr(content, uri, p.m.key.Name), nil
}

// mapLine handles an init section. A URI repeated after a discontinuity
// points at the file already claimed for it.
func (p *parser) mapLine(lineNo int, content, trimmed string) (string, error) {
	attrs := parseAttributes(strings.TrimPrefix(trimmed, tagMap))
	uri := attrs["URI"]
	if uri == "" {
		return "", &model.ManifestParseError{Line: lineNo, Msg: "EXT-X-MAP without URI"}
	}
	abs, err := p.resolve(uri, true)
	if err != nil {
		return "", &model.ManifestParseError{Line: lineNo, Msg: fmt.Sprintf("invalid init uri %q: %v", uri, err)}
	}
	seg, ok := p.inits[abs]
	if !ok {
		seg, err = p.segment(lineNo, uri, true)
		if err != nil {
			return "", err
		}
		p.inits[abs] = seg
	}
	return replaceURIAttr(content, uri, seg.Name), nil
}

func (p *parser) segment(lineNo int, uri string, init bool) (*model.Segment, error) {
	abs, err := p.resolve(uri, true)
	if err != nil {
		return nil, &model.ManifestParseError{Line: lineNo, Msg: fmt.Sprintf("invalid segment uri %q: %v", uri, err)}
	}
	index := len(p.m.segments)
	ordinal := index
	if init {
		ordinal = len(p.inits)
	}
	name := p.localName(ordinal, abs, init)
	if err := p.claim(lineNo, name); err != nil {
		return nil, err
	}
	seg := &model.Segment{
		Index:  index,
		URI:    abs,
		Name:   name,
		Path:   filepath.Join(p.m.Dir, name),
		Init:   init,
		Status: model.SegmentPending,
	}
	p.m.segments = append(p.m.segments, seg)
	return seg, nil
}

// resolve makes ref absolute against the manifest URL. Relative segment
// references without a query inherit the manifest's (CDN tokens).
func (p *parser) resolve(ref string, inheritQuery bool) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	abs := p.base.ResolveReference(u)
	if inheritQuery && !u.IsAbs() && u.RawQuery == "" && p.base.RawQuery != "" {
		abs.RawQuery = p.base.RawQuery
	}
	return abs.String(), nil
}

func (p *parser) localName(index int, abs string, init bool) string {
	ext := defaultSegmentExt
	var remoteBase string
	if u, err := url.Parse(abs); err == nil {
		remoteBase = path.Base(u.Path)
		if e := strings.ToLower(path.Ext(u.Path)); validExt(e) {
			ext = e
		}
	}
	if p.naming == model.NamingSource {
		if name := helpers.Sanitise(remoteBase); name != "" && name != "." && name != "_" {
			return name
		}
	}
	if init {
		return fmt.Sprintf("%s_init%02d%s", p.m.BaseName, index, ext)
	}
	return fmt.Sprintf("%s_%05d%s", p.m.BaseName, index, ext)
}

// claim registers a local file name, failing on the second claimant.
func (p *parser) claim(lineNo int, name string) error {
	if prev, ok := p.names[name]; ok {
		return &model.ManifestParseError{
			Line: lineNo,
			Msg:  fmt.Sprintf("local file name %q collides with line %d", name, prev),
		}
	}
	p.names[name] = lineNo
	return nil
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// KeyFile returns the referenced encryption key, or nil.
func (m *Manifest) KeyFile() *model.EncryptionKey {
	return m.key
}

// VideoFiles returns the segments in manifest order.
func (m *Manifest) VideoFiles() []*model.Segment {
	return m.segments
}

// Rewritten returns the manifest text pointing at local files.
func (m *Manifest) Rewritten() string {
	return m.rewritten
}

// LocalPath is where WriteLocal stores the rewritten manifest.
func (m *Manifest) LocalPath() string {
	return filepath.Join(m.Dir, m.BaseName+".m3u8")
}

// WriteLocal validates the rewritten manifest and stores it atomically.
func (m *Manifest) WriteLocal() (string, error) {
	if err := m.validate(); err != nil {
		return "", err
	}
	target := m.LocalPath()
	if err := renameio.WriteFile(target, []byte(m.rewritten), 0o644); err != nil {
		return "", model.FSError("write manifest", target, err)
	}
	return target, nil
}

// validate decodes the rewritten text with an independent HLS decoder and
// checks the media segment count survived the rewrite.
func (m *Manifest) validate() error {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(m.rewritten), false)
	if err != nil {
		return &model.ManifestParseError{Msg: fmt.Sprintf("rewritten playlist does not decode: %v", err)}
	}
	if listType != m3u8.MEDIA {
		return &model.ManifestParseError{Msg: "rewritten playlist is not a media playlist"}
	}
	media := playlist.(*m3u8.MediaPlaylist)
	want := 0
	for _, seg := range m.segments {
		if !seg.Init {
			want++
		}
	}
	if got := int(media.Count()); got != want {
		return &model.ManifestParseError{Msg: fmt.Sprintf("rewritten playlist has %d segments, expected %d", got, want)}
	}
	return nil
}
