// Package config loads the JSON config file, merges CLI arguments and
// validates the result into a model.Config.
package config

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/ui"
)

// LoadedConfigPath records which config file was read, empty when none.
var LoadedConfigPath string

// Paths lists the config locations searched in order.
func Paths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return []string{
		"epgrab.json",
		filepath.Join(homeDir, ".epgrab", "config.json"),
		filepath.Join(homeDir, ".config", "epgrab", "config.json"),
	}, nil
}

// ReadConfig reads explicit when set, otherwise the first file found in
// Paths. A missing default config is not an error: every field has a default.
func ReadConfig(explicit string) (*model.Config, error) {
	var candidates []string
	if explicit != "" {
		expanded, err := helpers.ExpandHome(explicit)
		if err != nil {
			return nil, err
		}
		candidates = []string{expanded}
	} else {
		paths, err := Paths()
		if err != nil {
			return nil, err
		}
		candidates = paths
	}

	var (
		data       []byte
		configPath string
	)
	for _, path := range candidates {
		b, err := os.ReadFile(path)
		if err == nil {
			data, configPath = b, path
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, model.FSError("read config", path, err)
		}
	}
	LoadedConfigPath = configPath
	if data == nil {
		if explicit != "" {
			return nil, model.UserInputf("config file %s does not exist", explicit)
		}
		return &model.Config{}, nil
	}

	var cfg model.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, model.UserInputf("failed to parse config at %s: %v", configPath, err)
	}
	warnInsecure(configPath, cfg)
	return &cfg, nil
}

// warnInsecure flags group/world readable configs that carry request headers,
// which usually hold cookies or tokens.
func warnInsecure(configPath string, cfg model.Config) {
	if len(cfg.Headers) == 0 {
		return
	}
	fileInfo, err := os.Stat(configPath)
	if err != nil || fileInfo.Mode().Perm()&0o077 == 0 {
		return
	}
	ui.PrintWarning(fmt.Sprintf("Config file %s has insecure permissions (%04o) and contains request headers", configPath, fileInfo.Mode().Perm()))
	if runtime.GOOS == "windows" {
		return
	}
	if err := os.Chmod(configPath, 0o600); err != nil {
		ui.PrintWarning(fmt.Sprintf("Auto-fix failed, run: chmod 600 %s", configPath))
		return
	}
	ui.PrintInfo(fmt.Sprintf("Auto-fix applied: chmod 600 %s", configPath))
}

// ParseArgs parses CLI arguments using go-arg.
func ParseArgs() *model.Args {
	var args model.Args
	arg.MustParse(&args)
	return &args
}

// Resolve merges args over cfg and validates the result.
func Resolve(cfg *model.Config, args *model.Args) (*model.Config, error) {
	if args.OutPath != "" {
		cfg.OutPath = args.OutPath
	}
	if args.Resolution != -1 {
		cfg.Resolution = args.Resolution
	}
	if args.Connections != -1 {
		cfg.Connections = args.Connections
	}
	if args.MaxRetries != -1 {
		cfg.MaxRetries = args.MaxRetries
	}
	if args.HardsubLang != "" {
		cfg.HardsubLang = args.HardsubLang
	}
	if len(args.SubtitleLangs) > 0 {
		cfg.SubtitleLangs = args.SubtitleLangs
	}
	langs, err := expandLangLists(cfg.SubtitleLangs)
	if err != nil {
		return nil, err
	}
	cfg.SubtitleLangs = langs
	if args.Naming != "" {
		cfg.Naming = args.Naming
	}
	if args.WorkDir != "" {
		cfg.WorkDir = args.WorkDir
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	cfg.SubsOnly = cfg.SubsOnly || args.SubsOnly
	cfg.SkipFonts = cfg.SkipFonts || args.SkipFonts
	cfg.Overwrite = cfg.Overwrite || args.Overwrite

	if len(args.Headers) > 0 && cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	for _, h := range args.Headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, model.UserInputf("invalid header %q, expected 'Name: value'", h)
		}
		cfg.Headers[name] = strings.TrimSpace(value)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandLangLists replaces .txt entries with the codes listed in them, one per
// line, and drops duplicates.
func expandLangLists(entries []string) ([]string, error) {
	var langs []string
	for _, entry := range entries {
		codes := []string{entry}
		if strings.HasSuffix(strings.ToLower(entry), ".txt") {
			path, err := helpers.ExpandHome(entry)
			if err != nil {
				return nil, err
			}
			codes, err = readLangList(path)
			if err != nil {
				return nil, err
			}
		}
		for _, code := range codes {
			code = strings.TrimSpace(code)
			known := slices.ContainsFunc(langs, func(l string) bool { return strings.EqualFold(l, code) })
			if code != "" && !known {
				langs = append(langs, code)
			}
		}
	}
	return langs, nil
}

// readLangList returns the codes of a language list file, one per line.
// Blank lines and lines starting with # are ignored.
func readLangList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.UserInputf("cannot open subtitle language list %s: %v", path, err)
	}
	defer f.Close()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			codes = append(codes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, model.FSError("read subtitle language list", path, err)
	}
	return codes, nil
}

// Validate checks ranges and fills defaults.
func Validate(cfg *model.Config) error {
	switch {
	case cfg.Connections == 0:
		cfg.Connections = model.DefaultConnections
	case cfg.Connections < 0 || cfg.Connections > 64:
		return model.UserInputf("connections must be between 1 and 64, got %d", cfg.Connections)
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = model.DefaultMaxRetries
	case cfg.MaxRetries < 0:
		return model.UserInputf("retries must be positive, got %d", cfg.MaxRetries)
	}
	if cfg.Resolution < 0 {
		return model.UserInputf("resolution must be a height like 1080, got %d", cfg.Resolution)
	}
	if cfg.RetryBaseMs < 0 || cfg.RetryMaxMs < 0 || cfg.TimeoutSec < 0 || cfg.RateLimit < 0 {
		return model.UserInputf("retry delays, timeout and rate limit cannot be negative")
	}
	if cfg.RetryBaseMs == 0 {
		cfg.RetryBaseMs = 500
	}
	if cfg.RetryMaxMs == 0 {
		cfg.RetryMaxMs = 30_000
	}
	if cfg.RetryMaxMs < cfg.RetryBaseMs {
		cfg.RetryMaxMs = cfg.RetryBaseMs
	}
	naming, ok := model.ParseNaming(cfg.Naming)
	if !ok {
		return model.UserInputf("naming must be %q or %q, got %q", model.NamingOrdinal, model.NamingSource, cfg.Naming)
	}
	cfg.Naming = naming
	if cfg.UserAgent == "" {
		cfg.UserAgent = model.DefaultUserAgent
	}

	cfg.OutPath = strings.TrimSpace(cfg.OutPath)
	if err := helpers.ValidatePath(cfg.OutPath); err != nil {
		return model.UserInputf("output path: %v", err)
	}
	for _, p := range []*string{&cfg.OutPath, &cfg.WorkDir, &cfg.FontsDir, &cfg.LogFile} {
		expanded, err := helpers.ExpandHome(strings.TrimSpace(*p))
		if err != nil {
			return err
		}
		*p = expanded
	}
	if cfg.FontsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.FontsDir = filepath.Join(home, ".epgrab", "fonts")
		}
	}
	return nil
}

// ResolveFfmpegBinary locates the ffmpeg binary based on config settings.
func ResolveFfmpegBinary(cfg *model.Config) (string, error) {
	preferred := strings.TrimSpace(cfg.FfmpegNameStr)
	if preferred != "" && preferred != model.DefaultFfmpeg {
		if resolved, err := exec.LookPath(preferred); err == nil {
			return resolved, nil
		}
		if info, err := os.Stat(preferred); err == nil && !info.IsDir() {
			return preferred, nil
		}
		return "", model.UserInputf("configured ffmpeg binary not found: %s", preferred)
	}

	candidates := []string{"./ffmpeg"}
	if exePath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exePath), "ffmpeg"))
	}
	if resolved, err := exec.LookPath(model.DefaultFfmpeg); err == nil {
		return resolved, nil
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", model.UserInputf("ffmpeg binary not found (checked PATH and ./ffmpeg); set ffmpegNameStr in the config")
}
