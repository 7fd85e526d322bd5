// Package mux drives the external muxer that joins the downloaded stream,
// subtitles and fonts into one Matroska file.
package mux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
)

// EventKind tells which field of an Event is set.
type EventKind int

const (
	EventDuration EventKind = iota
	EventProgress
	EventDiagnostic
)

// Event is one structured item extracted from the muxer's output.
type Event struct {
	Kind       EventKind
	DurationMs int64
	Progress   model.MuxProgress
	Line       string
}

// Runner runs one mux. It is the only code that knows a tool's log format.
type Runner interface {
	Run(ctx context.Context, spec model.MuxSpec, output string, events chan<- Event) error
}

// FFmpeg runs an ffmpeg binary.
type FFmpeg struct {
	Bin      string
	RingSize int

	logger zerolog.Logger
}

var _ Runner = (*FFmpeg)(nil)

// NewFFmpeg returns a runner for bin, "ffmpeg" when empty.
func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = model.DefaultFfmpeg
	}
	return &FFmpeg{Bin: bin, RingSize: 200, logger: log.WithComponent("mux")}
}

// Args builds the ffmpeg command line for spec writing to output.
func Args(spec model.MuxSpec, output string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-allowed_extensions", "ALL",
		"-protocol_whitelist", "file,crypto,data",
		"-i", spec.ManifestPath,
	}
	for _, sub := range spec.Subtitles {
		args = append(args, "-i", sub.Path)
	}
	args = append(args, "-map", "0:v?", "-map", "0:a?")
	for i := range spec.Subtitles {
		args = append(args, "-map", strconv.Itoa(i+1))
	}
	args = append(args, "-c", "copy")
	for i, sub := range spec.Subtitles {
		k := strconv.Itoa(i)
		if sub.Language != "" {
			args = append(args, "-metadata:s:s:"+k, "language="+sub.Language)
		}
		if sub.Title != "" {
			args = append(args, "-metadata:s:s:"+k, "title="+sub.Title)
		}
		disposition := "0"
		if sub.Default {
			disposition = "default"
		}
		args = append(args, "-disposition:s:"+k, disposition)
	}
	for j, font := range spec.Fonts {
		args = append(args, "-attach", font, "-metadata:s:t:"+strconv.Itoa(j), "mimetype="+fontMimeType(font))
	}
	return append(args, "-f", "matroska", output)
}

func fontMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttf", ".ttc":
		return "application/x-truetype-font"
	case ".otf":
		return "application/vnd.ms-opentype"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	default:
		return "application/octet-stream"
	}
}

// Run executes ffmpeg and translates its stderr into events. A nonzero exit
// becomes a *model.MuxError holding the retained output.
func (f *FFmpeg) Run(ctx context.Context, spec model.MuxSpec, output string, events chan<- Event) error {
	args := Args(spec, output)
	cmd := exec.CommandContext(ctx, f.Bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &model.MuxError{ExitCode: -1, Err: err}
	}

	f.logger.Debug().Str("command", cmd.String()).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return &model.MuxError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", f.Bin, err)}
	}

	ring := NewLineRing(f.RingSize)
	emit := func(ev Event) {
		if events == nil {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	var totalMs int64
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ring.Add(line)
		if ms, ok := parseDuration(line); ok {
			if totalMs == 0 {
				totalMs = ms
				emit(Event{Kind: EventDuration, DurationMs: ms})
			}
			continue
		}
		if elapsed, rate, ok := parseStats(line); ok {
			emit(Event{Kind: EventProgress, Progress: model.MuxProgress{TotalDurationMs: totalMs, ElapsedMs: elapsed, Rate: rate}})
			continue
		}
		if !isNoisy(line) {
			emit(Event{Kind: EventDiagnostic, Line: line})
		}
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn().Err(err).Msg("stopped parsing ffmpeg output")
		_, _ = io.Copy(io.Discard, stderr)
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return fmt.Errorf("mux interrupted: %w", ctx.Err())
	}
	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		f.logger.Error().Int("exit_code", code).Err(waitErr).Msg("ffmpeg failed")
		return &model.MuxError{ExitCode: code, Err: waitErr, Diagnostics: ring.Lines()}
	}
	return nil
}
