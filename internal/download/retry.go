package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
)

// DefaultBackoff doubles from 500ms up to 30s between attempts.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}

// Backoff is a bounded exponential delay between attempts. A zero Base disables waiting.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt < 1 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

type settings struct {
	backoff     Backoff
	speedWindow int
	now         func() time.Time
	logger      zerolog.Logger
}

// Option configures retry and progress behavior.
type Option func(*settings)

// WithBackoff overrides DefaultBackoff.
func WithBackoff(b Backoff) Option {
	return func(s *settings) { s.backoff = b }
}

// WithSpeedWindow sets how many recent completions the speed average covers.
func WithSpeedWindow(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.speedWindow = n
		}
	}
}

// WithClock replaces time.Now for progress timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{
		backoff:     DefaultBackoff,
		speedWindow: model.DefaultSpeedWindow,
		now:         time.Now,
		logger:      log.WithComponent("download"),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fsErr *model.FilesystemError
	if errors.As(err, &fsErr) {
		return false
	}
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable()
	}
	return true
}

// SafeDownload fetches rawURL to dest with the same retry policy as the
// segment engine. Used for keys, fonts and other one-off resources.
func SafeDownload(ctx context.Context, rawURL, dest string, maxRetries int, fetcher api.Fetcher, opts ...Option) (int64, error) {
	s := newSettings(opts)
	return fetchWithRetry(ctx, fetcher, rawURL, dest, maxRetries, s, nil)
}

// fetchWithRetry makes up to maxRetries attempts. onFailure sees every failed attempt.
func fetchWithRetry(ctx context.Context, fetcher api.Fetcher, rawURL, dest string, maxRetries int, s settings, onFailure func(attempt int, err error)) (int64, error) {
	maxRetries = max(maxRetries, 1)
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		size, err := fetchOnce(ctx, fetcher, rawURL, dest)
		if err == nil {
			return size, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !Retryable(err) {
			s.logger.Debug().Str("url", rawURL).Int("attempt", attempt).Err(err).Msg("permanent failure, not retrying")
			return 0, err
		}
		if attempt == maxRetries {
			break
		}
		wait := s.backoff.Delay(attempt)
		s.logger.Warn().Str("url", rawURL).Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("fetch failed, retrying")
		if err := sleepCtx(ctx, wait); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr)
}

func fetchOnce(ctx context.Context, fetcher api.Fetcher, rawURL, dest string) (int64, error) {
	resp, err := fetcher.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	if err := renameio.WriteFile(dest, resp.Body, 0o644); err != nil {
		return 0, model.FSError("write", dest, err)
	}
	return int64(len(resp.Body)), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
