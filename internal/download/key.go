package download

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/model"
)

const aesKeySize = 16

// KeyResolver fetches a manifest's key at most once. The outcome, success
// or failure, is cached for every later Resolve call.
type KeyResolver struct {
	key        *model.EncryptionKey
	maxRetries int
	fetcher    api.Fetcher
	opts       []Option

	once sync.Once
	err  error
}

// NewKeyResolver returns a resolver for key. A nil key resolves to nothing.
func NewKeyResolver(key *model.EncryptionKey, maxRetries int, fetcher api.Fetcher, opts ...Option) *KeyResolver {
	return &KeyResolver{key: key, maxRetries: maxRetries, fetcher: fetcher, opts: opts}
}

// Resolve downloads the key to its local path.
func (r *KeyResolver) Resolve(ctx context.Context) error {
	if r.key == nil {
		return nil
	}
	r.once.Do(func() {
		r.err = r.fetch(ctx)
	})
	return r.err
}

func (r *KeyResolver) fetch(ctx context.Context) error {
	size, err := SafeDownload(ctx, r.key.URI, r.key.Path, r.maxRetries, r.fetcher, r.opts...)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if strings.EqualFold(r.key.Method, "AES-128") && size != aesKeySize {
		_ = os.Remove(r.key.Path)
		return fmt.Errorf("key: %w", &model.NetworkError{
			URL: r.key.URI,
			Err: fmt.Errorf("expected %d bytes for AES-128, got %d", aesKeySize, size),
		})
	}
	return nil
}
