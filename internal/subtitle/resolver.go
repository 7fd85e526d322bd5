package subtitle

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/download"
	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
)

// Resolver turns font names into local font files, downloading the ones
// missing from a persistent cache directory.
type Resolver struct {
	dir        string
	baseURL    string
	catalog    Catalog
	fetcher    api.Fetcher
	maxRetries int
	opts       []download.Option
	logger     zerolog.Logger
}

// NewResolver returns a resolver backed by DefaultCatalog. An empty baseURL
// disables downloads, leaving only already cached fonts.
func NewResolver(dir, baseURL string, fetcher api.Fetcher, maxRetries int, opts ...download.Option) *Resolver {
	return &Resolver{
		dir:        dir,
		baseURL:    baseURL,
		catalog:    DefaultCatalog,
		fetcher:    fetcher,
		maxRetries: maxRetries,
		opts:       opts,
		logger:     log.WithComponent("fonts"),
	}
}

// WithCatalog replaces the font table.
func (r *Resolver) WithCatalog(c Catalog) *Resolver {
	r.catalog = c
	return r
}

// Resolve returns local paths for every font it could provide. Unknown and
// unreachable fonts are logged and skipped; only a cache directory that
// cannot be created is an error.
func (r *Resolver) Resolve(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if err := helpers.MakeDirs(r.dir); err != nil {
		return nil, model.FSError("mkdir", r.dir, err)
	}

	var paths []string
	seen := make(map[string]bool)
	for _, name := range names {
		file, ok := r.catalog.Lookup(name)
		if !ok {
			r.logger.Warn().Str("font", name).Msg("font not in catalog, skipping")
			continue
		}
		if seen[file] {
			continue
		}
		seen[file] = true

		dest := filepath.Join(r.dir, file)
		if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
			paths = append(paths, dest)
			continue
		}
		if r.baseURL == "" {
			r.logger.Warn().Str("font", name).Msg("font not cached and no font source configured")
			continue
		}
		src, err := url.JoinPath(r.baseURL, file)
		if err != nil {
			r.logger.Warn().Err(err).Str("font", name).Msg("bad font url")
			continue
		}
		if _, err := download.SafeDownload(ctx, src, dest, r.maxRetries, r.fetcher, r.opts...); err != nil {
			if ctx.Err() != nil {
				return paths, ctx.Err()
			}
			r.logger.Warn().Err(err).Str("font", name).Msg("font download failed, skipping")
			continue
		}
		r.logger.Debug().Str("font", name).Str("path", dest).Msg("font downloaded")
		paths = append(paths, dest)
	}
	return paths, nil
}
