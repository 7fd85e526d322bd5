package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/config"
	"github.com/jmagar/epgrab/internal/download"
	"github.com/jmagar/epgrab/internal/episode"
	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/mux"
	"github.com/jmagar/epgrab/internal/session"
	"github.com/jmagar/epgrab/internal/ui"
)

func main() {
	args := config.ParseArgs()
	if err := run(args); err != nil {
		reportErr(err)
		os.Exit(1)
	}
}

func run(args *model.Args) error {
	fileCfg, err := config.ReadConfig(args.ConfigPath)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(fileCfg, args)
	if err != nil {
		return err
	}

	logOut, closeLog, err := logWriter(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Configure(log.Config{Level: cfg.LogLevel, Output: logOut})
	logger := log.WithComponent("main")
	if config.LoadedConfigPath != "" {
		logger.Debug().Str("path", config.LoadedConfigPath).Msg("config loaded")
	}

	if args.StreamURL == "" {
		return model.UserInputf("a stream URL is required")
	}
	if !cfg.SubsOnly {
		bin, err := config.ResolveFfmpegBinary(cfg)
		if err != nil {
			return err
		}
		cfg.FfmpegNameStr = bin
	}

	client, err := api.NewClient(api.Options{
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout(),
		RateLimit: cfg.RateLimit,
	})
	if err != nil {
		return err
	}
	meta := model.Metadata{
		Series:        args.Series,
		SeasonNumber:  args.Season,
		EpisodeNumber: args.Episode,
		Title:         args.Title,
	}
	ep, err := episode.NewStatic(args.StreamURL, meta, args.Subtitles, client)
	if err != nil {
		return err
	}

	progress := ui.NewProgress(ui.Out, ui.IsTerminal())
	hooks := session.Hooks{
		OnState: func(_, to session.State) {
			progress.Done()
			switch to {
			case session.StateDownloadingSegments:
				ui.PrintDownload("Downloading segments")
			case session.StateMuxing:
				ui.PrintInfo("Muxing")
			}
		},
		OnProgress: progress.Download,
		OnMux:      muxHook(progress, logger),
	}
	coord := session.New(client, mux.NewFFmpeg(cfg.FfmpegNameStr), session.Options{
		WorkDir:      cfg.WorkDir,
		FontsDir:     cfg.FontsDir,
		FontsBaseURL: cfg.FontsBaseURL,
		Connections:  cfg.Connections,
		MaxRetries:   cfg.MaxRetries,
		Naming:       cfg.Naming,
		Download: []download.Option{
			download.WithBackoff(download.Backoff{Base: cfg.RetryBase(), Max: cfg.RetryMax()}),
		},
	}, hooks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(ctx, coord, cancel)

	res, err := coord.Run(ctx, ep, session.Request{
		OutputPath:    cfg.OutPath,
		Resolution:    cfg.Resolution,
		HardsubLang:   cfg.HardsubLang,
		SubtitleLangs: cfg.SubtitleLangs,
		SubsOnly:      cfg.SubsOnly,
		SkipFonts:     cfg.SkipFonts,
		Fonts:         args.Fonts,
		Overwrite:     cfg.Overwrite,
	})
	progress.Done()
	if err != nil {
		if errors.Is(err, download.ErrAborted) {
			return fmt.Errorf("interrupted: %w", err)
		}
		return err
	}
	printSummary(res)
	if ui.RunWarningCount > 0 {
		ui.PrintInfo(fmt.Sprintf("Finished with %d warning(s)", ui.RunWarningCount))
	}
	return nil
}

// muxHook renders mux progress and keeps the remaining tool output in the log.
func muxHook(progress *ui.Progress, logger zerolog.Logger) func(mux.Event) {
	return func(ev mux.Event) {
		switch ev.Kind {
		case mux.EventDuration:
			logger.Debug().Int64("duration_ms", ev.DurationMs).Msg("mux input duration")
		case mux.EventProgress:
			progress.Mux(ev.Progress)
		case mux.EventDiagnostic:
			logger.Debug().Str("line", ev.Line).Msg("ffmpeg")
		}
	}
}

// handleSignals aborts the session on the first interrupt, letting in-flight
// segments finish, and cancels everything on the second.
func handleSignals(ctx context.Context, coord *session.Coordinator, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
	case <-ctx.Done():
		return
	}
	ui.PrintWarning("Interrupted, finishing in-flight downloads (interrupt again to stop now)")
	coord.Abort()
	select {
	case <-sigs:
		cancel()
	case <-ctx.Done():
	}
}

func logWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, model.FSError("open log file", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}

func printSummary(res *session.Result) {
	switch {
	case res.Skipped:
		ui.PrintWarning(fmt.Sprintf("%s already exists, use --overwrite to replace it", res.OutputPath))
	case len(res.Subtitles) > 0 && res.Segments == 0:
		for _, p := range res.Subtitles {
			ui.PrintSubtitle(p)
		}
		ui.PrintSuccess(fmt.Sprintf("Wrote %d subtitle file(s)", len(res.Subtitles)))
	default:
		height := "source"
		if res.Height > 0 {
			height = fmt.Sprintf("%dp", res.Height)
		}
		ui.PrintSuccess(res.OutputPath)
		ui.PrintKeyValue("Resolution", height, ui.ColorCyan)
		ui.PrintKeyValue("Segments", humanize.Comma(int64(res.Segments)), ui.ColorCyan)
		ui.PrintKeyValue("Size", humanize.Bytes(uint64(res.Bytes)), ui.ColorCyan)
	}
}

func reportErr(err error) {
	var userErr *model.UserInputError
	if errors.As(err, &userErr) {
		ui.PrintError(userErr.Msg)
		return
	}
	var muxErr *model.MuxError
	if errors.As(err, &muxErr) {
		ui.PrintError(fmt.Sprintf("mux failed (exit %d)", muxErr.ExitCode))
		ui.PrintLines(muxErr.Diagnostics)
		return
	}
	ui.PrintError(err.Error())
}
