package model

import "time"

// Config is the validated configuration record built once at startup.
type Config struct {
	OutPath       string            `json:"outPath"`
	WorkDir       string            `json:"workDir,omitempty"`
	FontsDir      string            `json:"fontsDir,omitempty"`
	FontsBaseURL  string            `json:"fontsBaseURL,omitempty"`
	FfmpegNameStr string            `json:"ffmpegNameStr,omitempty"`
	Connections   int               `json:"connections"`
	MaxRetries    int               `json:"maxRetries"`
	RetryBaseMs   int               `json:"retryBaseMs,omitempty"`
	RetryMaxMs    int               `json:"retryMaxMs,omitempty"`
	RateLimit     float64           `json:"rateLimit,omitempty"` // requests/sec, 0 = unlimited
	TimeoutSec    int               `json:"timeoutSec,omitempty"`
	UserAgent     string            `json:"userAgent,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Resolution    int               `json:"resolution,omitempty"` // 0 = best available
	HardsubLang   string            `json:"hardsubLang,omitempty"`
	SubtitleLangs []string          `json:"subtitleLangs,omitempty"`
	SubsOnly      bool              `json:"subsOnly,omitempty"`
	SkipFonts     bool              `json:"skipFonts,omitempty"`
	Naming        string            `json:"naming,omitempty"`
	Overwrite     bool              `json:"overwrite,omitempty"`
	LogLevel      string            `json:"logLevel,omitempty"`
	LogFile       string            `json:"logFile,omitempty"`
}

// RetryBase returns the first backoff delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

// RetryMax returns the backoff ceiling.
func (c *Config) RetryMax() time.Duration {
	return time.Duration(c.RetryMaxMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout, 0 meaning none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Args holds CLI arguments parsed by go-arg.
type Args struct {
	StreamURL     string   `arg:"positional" help:"HLS master or media playlist URL."`
	OutPath       string   `arg:"-o,--output" help:"Output .mkv path (subtitle files are named after it)."`
	ConfigPath    string   `arg:"--config" help:"Config file path. Defaults to ./epgrab.json, ~/.epgrab/config.json, ~/.config/epgrab/config.json."`
	Resolution    int      `arg:"-r" default:"-1" help:"Video height, e.g. 1080. 0 = best available."`
	Connections   int      `arg:"-c" default:"-1" help:"Concurrent segment downloads."`
	MaxRetries    int      `arg:"--retries" default:"-1" help:"Attempts per segment before giving up."`
	Subtitles     []string `arg:"--sub,separate" help:"Subtitle file or URL: path[,lang=eng][,locale=en-US][,title=English][,default]"`
	Fonts         []string `arg:"--font,separate" help:"Extra font file attached to the output."`
	SubtitleLangs []string `arg:"--sub-lang,separate" help:"Only keep subtitles with this locale or language code, or codes listed in a .txt file."`
	HardsubLang   string   `arg:"--hardsub" help:"Hardsub language of the stream."`
	SubsOnly      bool     `arg:"--subs-only" help:"Only write subtitle files, skip video."`
	SkipFonts     bool     `arg:"--skip-fonts" help:"Do not resolve fonts referenced by ASS subtitles."`
	Naming        string   `arg:"--naming" help:"Segment file naming: ordinal or source."`
	WorkDir       string   `arg:"--workdir" help:"Parent directory of the session workspace."`
	Overwrite     bool     `arg:"--overwrite" help:"Replace an existing output file."`
	Headers       []string `arg:"-H,--header,separate" help:"Extra request header, 'Name: value'."`
	LogLevel      string   `arg:"--log-level" help:"debug, info, warn or error."`
	Series        string   `arg:"--series" help:"Series title (metadata only)."`
	Season        int      `arg:"--season" help:"Season number (metadata only)."`
	Episode       string   `arg:"--episode" help:"Episode number (metadata only)."`
	Title         string   `arg:"--title" help:"Episode title (metadata only)."`
}

// Description provides help text for go-arg.
func (Args) Description() string {
	return "epgrab downloads an HLS episode stream and muxes it with subtitles and fonts into MKV.\n"
}
