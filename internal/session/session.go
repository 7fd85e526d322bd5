// Package session sequences one episode download: stream resolution,
// manifest, key, segments, fonts and mux, inside a private workspace that is
// always removed afterwards.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/download"
	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/hls"
	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/mux"
	"github.com/jmagar/epgrab/internal/subtitle"
)

const (
	videoDir = "video"
	subsDir  = "subs"
)

// Hooks receive session events. Any of them may be nil.
type Hooks struct {
	OnState    func(from, to State)
	OnProgress func(model.ProgressSnapshot)
	OnMux      func(mux.Event)
}

// Options are the per-process settings shared by every session.
type Options struct {
	WorkDir      string
	FontsDir     string
	FontsBaseURL string
	Connections  int
	MaxRetries   int
	Naming       string
	Download     []download.Option
}

// Request selects what to fetch for one episode.
type Request struct {
	OutputPath    string // derived from the episode metadata when empty
	Resolution    int    // height; 0 picks the best available
	HardsubLang   string
	SubtitleLangs []string
	SubsOnly      bool
	SkipFonts     bool
	Fonts         []string // extra font files attached as is
	Overwrite     bool
}

// Result describes a finished session.
type Result struct {
	OutputPath string
	Subtitles  []string // sidecar files written in subtitles-only mode
	Height     int
	Segments   int
	Bytes      int64
	Skipped    bool // output already existed
}

// Coordinator runs sessions with a shared HTTP capability and mux runner.
type Coordinator struct {
	fetcher api.Fetcher
	runner  mux.Runner
	opts    Options
	hooks   Hooks
	logger  zerolog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	engine  *download.Engine // set while segments download
	aborted bool
}

// New builds a Coordinator.
func New(fetcher api.Fetcher, runner mux.Runner, opts Options, hooks Hooks) *Coordinator {
	if opts.Connections < 1 {
		opts.Connections = model.DefaultConnections
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = model.DefaultMaxRetries
	}
	return &Coordinator{
		fetcher: fetcher,
		runner:  runner,
		opts:    opts,
		hooks:   hooks,
		logger:  log.WithComponent("session"),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Abort stops the running session. While segments download, no new fetches
// start and in-flight ones finish or fail before cleanup; in any other state
// the current step is cancelled.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.aborted = true
	if c.engine != nil {
		c.engine.Abort()
		return
	}
	c.cancel()
}

func (c *Coordinator) isAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

func (c *Coordinator) transition(next State) error {
	c.mu.Lock()
	prev := c.state
	if !prev.CanTransition(next) {
		c.mu.Unlock()
		return fmt.Errorf("invalid session transition %s -> %s", prev, next)
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("session state")
	if c.hooks.OnState != nil {
		c.hooks.OnState(prev, next)
	}
	return nil
}

// Run downloads ep according to req. A Coordinator runs one session at a time.
func (c *Coordinator) Run(ctx context.Context, ep model.Episode, req Request) (res *Result, err error) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return nil, errors.New("session already running")
	}
	c.state = StateIdle
	c.cancel = cancel
	c.aborted = false
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.engine = nil
		c.mu.Unlock()
	}()
	defer func() {
		if err != nil && !c.State().Terminal() {
			_ = c.transition(StateFailed)
		}
	}()

	meta := ep.Metadata()
	if reason := ep.Blocked(); reason.Any() {
		return nil, blockedError(meta, reason)
	}
	if req.OutputPath == "" {
		req.OutputPath = DefaultOutputName(meta)
	}
	if err := helpers.ValidatePath(req.OutputPath); err != nil {
		return nil, model.UserInputf("output path: %v", err)
	}
	req.OutputPath = filepath.Clean(req.OutputPath)
	logger := c.logger.With().Str("output", req.OutputPath).Logger()

	if !req.SubsOnly && !req.Overwrite {
		if exists, _ := helpers.FileExists(req.OutputPath); exists {
			logger.Info().Msg("output exists, skipping")
			return &Result{OutputPath: req.OutputPath, Skipped: true}, c.transition(StateDone)
		}
	}

	ws, err := newWorkspace(c.opts.WorkDir)
	if err != nil {
		return nil, err
	}
	defer removeWorkspace(logger, ws)
	logger.Debug().Str("workspace", ws).Msg("workspace created")

	subs, err := c.writeSubtitles(ctx, ep, req, ws)
	if err != nil {
		return nil, err
	}
	if req.SubsOnly {
		return c.relocateSubtitles(req, subs)
	}
	return c.download(ctx, ep, req, ws, subs, logger)
}

type localSubtitle struct {
	model.Subtitle
	path string
}

// writeSubtitles stores the selected subtitle payloads under <ws>/subs.
func (c *Coordinator) writeSubtitles(ctx context.Context, ep model.Episode, req Request, ws string) ([]localSubtitle, error) {
	all, err := ep.Subtitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subtitles: %w", err)
	}
	selected := subtitle.Filter(all, req.SubtitleLangs)
	if len(selected) == 0 {
		if req.SubsOnly {
			return nil, model.UserInputf("no subtitles match %s", strings.Join(req.SubtitleLangs, ", "))
		}
		return nil, nil
	}

	dir := filepath.Join(ws, subsDir)
	if err := helpers.MakeDirs(dir); err != nil {
		return nil, model.FSError("mkdir", dir, err)
	}
	out := make([]localSubtitle, 0, len(selected))
	seenDefault := false
	for i, sub := range selected {
		if sub.Default {
			if seenDefault {
				sub.Default = false
			}
			seenDefault = true
		}
		path := filepath.Join(dir, subtitle.WorkspaceName(i, sub))
		if err := renameio.WriteFile(path, sub.Data, 0o644); err != nil {
			return nil, model.FSError("write subtitle", path, err)
		}
		out = append(out, localSubtitle{Subtitle: sub, path: path})
	}
	return out, nil
}

// relocateSubtitles moves workspace subtitles to <output-stem>.<code>.<ext>.
func (c *Coordinator) relocateSubtitles(req Request, subs []localSubtitle) (*Result, error) {
	if err := helpers.MakeDirs(filepath.Dir(req.OutputPath)); err != nil {
		return nil, model.FSError("mkdir", filepath.Dir(req.OutputPath), err)
	}
	res := &Result{OutputPath: req.OutputPath}
	for _, sub := range subs {
		dst := subtitle.SidecarPath(req.OutputPath, sub.Subtitle)
		if slices.Contains(res.Subtitles, dst) {
			return nil, model.UserInputf("two subtitle tracks map to %s", filepath.Base(dst))
		}
		if exists, _ := helpers.FileExists(dst); exists && !req.Overwrite {
			c.logger.Info().Str("path", dst).Msg("subtitle exists, skipping")
			res.Subtitles = append(res.Subtitles, dst)
			continue
		}
		if err := moveFile(sub.path, dst); err != nil {
			return nil, err
		}
		res.Subtitles = append(res.Subtitles, dst)
	}
	return res, c.transition(StateDone)
}

func (c *Coordinator) download(ctx context.Context, ep model.Episode, req Request, ws string, subs []localSubtitle, logger zerolog.Logger) (*Result, error) {
	if err := c.transition(StateResolvingStream); err != nil {
		return nil, err
	}
	height, streams, err := c.resolveStreams(ctx, ep, req)
	if err != nil {
		return nil, err
	}

	if err := c.transition(StateDownloadingManifest); err != nil {
		return nil, err
	}
	vdir := filepath.Join(ws, videoDir)
	if err := helpers.MakeDirs(vdir); err != nil {
		return nil, model.FSError("mkdir", vdir, err)
	}
	baseName := helpers.TruncateRunes(helpers.Sanitise(filepath.Base(helpers.StemPath(req.OutputPath))), 64)
	manifest, err := c.loadManifest(ctx, streams, height, vdir, baseName)
	if err != nil {
		return nil, err
	}
	manifestPath, err := manifest.WriteLocal()
	if err != nil {
		return nil, err
	}

	if err := c.transition(StateDownloadingKey); err != nil {
		return nil, err
	}
	if err := download.NewKeyResolver(manifest.KeyFile(), c.opts.MaxRetries, c.fetcher, c.opts.Download...).Resolve(ctx); err != nil {
		return nil, err
	}

	if err := c.transition(StateDownloadingSegments); err != nil {
		return nil, err
	}
	segments := manifest.VideoFiles()
	bytes, err := c.downloadSegments(ctx, segments)
	if err != nil {
		return nil, err
	}

	if err := c.transition(StateMuxing); err != nil {
		return nil, err
	}
	spec := model.MuxSpec{ManifestPath: manifestPath, OutputPath: req.OutputPath}
	for _, sub := range subs {
		spec.Subtitles = append(spec.Subtitles, model.SubtitleTrack{Path: sub.path, Language: sub.Language, Title: sub.Title, Default: sub.Default})
	}
	if !req.SkipFonts {
		spec.Fonts = c.fonts(ctx, subs)
	}
	spec.Fonts = append(spec.Fonts, req.Fonts...)
	if err := c.mux(ctx, spec); err != nil {
		return nil, err
	}

	logger.Info().Int("segments", len(segments)).Int64("bytes", bytes).Msg("episode complete")
	res := &Result{OutputPath: req.OutputPath, Height: height, Segments: len(segments), Bytes: bytes}
	return res, c.transition(StateDone)
}

// resolveStreams picks the height and returns its candidate streams.
func (c *Coordinator) resolveStreams(ctx context.Context, ep model.Episode, req Request) (int, []model.Stream, error) {
	heights, err := ep.Resolutions(ctx, req.HardsubLang)
	if err != nil {
		return 0, nil, fmt.Errorf("list resolutions: %w", err)
	}
	if len(heights) == 0 {
		return 0, nil, model.UserInputf("no streams available for hardsub %q", req.HardsubLang)
	}
	height := slices.Max(heights)
	if req.Resolution > 0 {
		if !slices.Contains(heights, req.Resolution) {
			avail := make([]string, len(heights))
			for i, h := range heights {
				avail[i] = hls.FormatRes(h)
			}
			return 0, nil, model.UserInputf("resolution %s not available, choose from %s", hls.FormatRes(req.Resolution), strings.Join(avail, ", "))
		}
		height = req.Resolution
	}
	streams, err := ep.Streams(ctx, req.HardsubLang, height)
	if err != nil {
		return 0, nil, fmt.Errorf("list streams: %w", err)
	}
	if len(streams) == 0 {
		return 0, nil, model.UserInputf("no streams available at %s", hls.FormatRes(height))
	}
	return height, streams, nil
}

// loadManifest tries candidate streams in order. Network failures move on
// to the next candidate; a malformed playlist is fatal at once.
func (c *Coordinator) loadManifest(ctx context.Context, streams []model.Stream, height int, dir, baseName string) (*hls.Manifest, error) {
	var lastErr error
	for _, stream := range streams {
		mediaURL, _, err := hls.ResolveMediaURL(ctx, c.fetcher, stream.URL, height)
		if err == nil {
			var m *hls.Manifest
			m, err = hls.Load(ctx, mediaURL, dir, baseName, c.fetcher, hls.WithNaming(c.opts.Naming))
			if err == nil {
				return m, nil
			}
		}
		var parseErr *model.ManifestParseError
		if errors.As(err, &parseErr) || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("url", stream.URL).Msg("stream unavailable, trying next")
		lastErr = err
	}
	return nil, lastErr
}

func (c *Coordinator) downloadSegments(ctx context.Context, segments []*model.Segment) (int64, error) {
	engine := download.NewEngine(segments, c.opts.MaxRetries, c.opts.Connections, c.fetcher, c.opts.Download...)
	progress := engine.Subscribe()
	c.mu.Lock()
	c.engine = engine
	if c.aborted {
		engine.Abort()
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.engine = nil
		c.mu.Unlock()
	}()

	var (
		last model.ProgressSnapshot
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		for snap := range progress {
			last = snap
			if c.hooks.OnProgress != nil {
				c.hooks.OnProgress(snap)
			}
		}
	}()
	err := engine.Start(ctx)
	<-done
	if err == nil && c.isAborted() {
		// Every in-flight fetch completed before the abort took effect.
		err = download.ErrAborted
	}
	return last.DownloadedBytes, err
}

func (c *Coordinator) fonts(ctx context.Context, subs []localSubtitle) []string {
	var names []string
	for _, sub := range subs {
		if subtitle.Extension(sub.Format) == ".ass" {
			names = append(names, subtitle.Fonts(sub.Data)...)
		}
	}
	if len(names) == 0 || c.opts.FontsDir == "" {
		return nil
	}
	resolver := subtitle.NewResolver(c.opts.FontsDir, c.opts.FontsBaseURL, c.fetcher, c.opts.MaxRetries, c.opts.Download...)
	paths, err := resolver.Resolve(ctx, names)
	if err != nil {
		c.logger.Warn().Err(err).Msg("fonts unavailable, muxing without them")
	}
	return paths
}

func (c *Coordinator) mux(ctx context.Context, spec model.MuxSpec) error {
	orch := mux.NewOrchestrator(c.runner)
	events := orch.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if c.hooks.OnMux != nil {
				c.hooks.OnMux(ev)
			}
		}
	}()
	temp, err := orch.Mux(ctx, spec)
	<-done
	if err != nil {
		return err
	}
	return orch.Commit(temp, spec.OutputPath)
}

func blockedError(meta model.Metadata, reason model.BlockReason) error {
	why := "region locked"
	if reason.Premium {
		why = "premium only"
	}
	return &model.UserInputError{
		Msg: fmt.Sprintf("%s is not available (%s)", describe(meta), why),
		Err: model.ErrEpisodeBlocked,
	}
}

func describe(meta model.Metadata) string {
	switch {
	case meta.Series != "" && meta.EpisodeNumber != "":
		return fmt.Sprintf("%s episode %s", meta.Series, meta.EpisodeNumber)
	case meta.Title != "":
		return meta.Title
	default:
		return "episode"
	}
}

// DefaultOutputName builds "<series> - S<nn>E<ep> - <title>.mkv" from whatever metadata is present.
func DefaultOutputName(meta model.Metadata) string {
	var parts []string
	if meta.Series != "" {
		parts = append(parts, meta.Series)
	}
	var num string
	if meta.SeasonNumber > 0 {
		num = fmt.Sprintf("S%02d", meta.SeasonNumber)
	}
	if meta.EpisodeNumber != "" {
		num += "E" + meta.EpisodeNumber
	}
	if num != "" {
		parts = append(parts, num)
	}
	if meta.Title != "" {
		parts = append(parts, meta.Title)
	}
	if len(parts) == 0 {
		parts = []string{"episode"}
	}
	return helpers.Sanitise(strings.Join(parts, " - ")) + ".mkv"
}
