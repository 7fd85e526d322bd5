package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jmagar/epgrab/internal/model"
	"github.com/jmagar/epgrab/internal/testutil"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Zero(t, Backoff{}.Delay(3))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", testutil.Status("u", 503), true},
		{"throttled", testutil.Status("u", 429), true},
		{"request timeout", testutil.Status("u", 408), true},
		{"not found", testutil.Status("u", 404), false},
		{"forbidden", testutil.Status("u", 403), false},
		{"transport", &model.NetworkError{URL: "u", Err: errors.New("connection reset")}, true},
		{"filesystem", model.FSError("write", "/x", os.ErrPermission), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestSafeDownload(t *testing.T) {
	const url = "https://cdn.example.com/thing.bin"

	t.Run("retries transient failures", func(t *testing.T) {
		f := &testutil.Fetcher{Handler: func(rawURL string, attempt int) ([]byte, error) {
			if attempt < 3 {
				return nil, testutil.Status(rawURL, 502)
			}
			return []byte("payload"), nil
		}}
		dest := filepath.Join(t.TempDir(), "thing.bin")

		n, err := SafeDownload(context.Background(), url, dest, 3, f, noWait)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))
		assert.Equal(t, 3, f.Calls(url))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		f := &testutil.Fetcher{Handler: func(rawURL string, _ int) ([]byte, error) {
			return nil, testutil.Status(rawURL, 500)
		}}
		dest := filepath.Join(t.TempDir(), "thing.bin")

		_, err := SafeDownload(context.Background(), url, dest, 2, f, noWait)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "giving up after 2 attempts")
		var netErr *model.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, 500, netErr.StatusCode)
		assert.Equal(t, 2, f.Calls(url))
		assert.NoFileExists(t, dest)
	})

	t.Run("write failure is permanent", func(t *testing.T) {
		f := testutil.NewFetcher(map[string]string{url: "payload"})
		dest := filepath.Join(t.TempDir(), "missing", "thing.bin")

		_, err := SafeDownload(context.Background(), url, dest, 4, f, noWait)
		var fsErr *model.FilesystemError
		require.ErrorAs(t, err, &fsErr)
		assert.Equal(t, 1, f.Calls(url))
	})
}

func TestSafeDownload_BackoffHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := &testutil.Fetcher{Handler: func(rawURL string, _ int) ([]byte, error) {
		return nil, testutil.Status(rawURL, 503)
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := SafeDownload(ctx, "https://cdn.example.com/x", filepath.Join(t.TempDir(), "x"), 5, f,
		WithBackoff(Backoff{Base: time.Hour, Max: time.Hour}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, f.TotalCalls())
}
