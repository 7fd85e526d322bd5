// Package testutil provides shared test helpers used across internal packages.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/model"
)

// WithTempHome sets HOME to a temporary directory for the duration of the test.
func WithTempHome(t *testing.T) string {
	t.Helper()
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	return tempHome
}

// ChdirTemp changes to a temp directory and restores cwd on cleanup.
func ChdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get cwd: %v", err)
	}
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("failed to chdir temp: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(orig)
	})
	return tmp
}

// WriteExecutable writes a shell script to path and marks it executable.
func WriteExecutable(t *testing.T, path, script string) {
	t.Helper()
	content := []byte("#!/bin/sh\n" + script + "\n")
	if err := os.WriteFile(path, content, 0755); err != nil {
		t.Fatalf("failed to write executable %s: %v", path, err)
	}
}

// HandlerFunc answers one fake request. attempt counts calls per URL, starting at 1.
type HandlerFunc func(rawURL string, attempt int) ([]byte, error)

// Fetcher is an in-memory api.Fetcher that records call counts and concurrency.
type Fetcher struct {
	Handler HandlerFunc
	Delay   time.Duration

	mu          sync.Mutex
	calls       map[string]int
	inFlight    int
	maxInFlight int
}

var _ api.Fetcher = (*Fetcher)(nil)

// NewFetcher serves fixed bodies; unknown URLs answer 404.
func NewFetcher(bodies map[string]string) *Fetcher {
	return &Fetcher{Handler: func(rawURL string, _ int) ([]byte, error) {
		body, ok := bodies[rawURL]
		if !ok {
			return nil, &model.NetworkError{URL: rawURL, StatusCode: 404}
		}
		return []byte(body), nil
	}}
}

// Get implements api.Fetcher.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*api.Response, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[rawURL]++
	attempt := f.calls[rawURL]
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &model.NetworkError{URL: rawURL, Err: ctx.Err()}
		case <-time.After(f.Delay):
		}
	}
	body, err := f.Handler(rawURL, attempt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// A real transfer is torn down when its context ends.
		return nil, &model.NetworkError{URL: rawURL, Err: err}
	}
	return &api.Response{Body: body, FinalURL: rawURL, StatusCode: 200}, nil
}

// Post implements api.Fetcher by routing to Get with the encoded form as query.
func (f *Fetcher) Post(ctx context.Context, rawURL string, form url.Values) (*api.Response, error) {
	return f.Get(ctx, fmt.Sprintf("%s?%s", rawURL, form.Encode()))
}

// Calls returns how many times rawURL was requested.
func (f *Fetcher) Calls(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

// TotalCalls returns the number of requests across all URLs.
func (f *Fetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (f *Fetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// Status returns a NetworkError for an HTTP status.
func Status(rawURL string, code int) error {
	return &model.NetworkError{URL: rawURL, StatusCode: code}
}
