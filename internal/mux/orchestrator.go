package mux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmagar/epgrab/internal/helpers"
	"github.com/jmagar/epgrab/internal/log"
	"github.com/jmagar/epgrab/internal/model"
)

// Orchestrator runs a mux into a temporary file on the destination
// filesystem and places the result atomically.
type Orchestrator struct {
	runner Runner
	logger zerolog.Logger

	mu   sync.Mutex
	subs []chan Event
}

// NewOrchestrator wraps runner.
func NewOrchestrator(runner Runner) *Orchestrator {
	return &Orchestrator{runner: runner, logger: log.WithComponent("mux")}
}

// Subscribe registers a listener for the next Mux call. The channel is
// closed when that call returns; events are dropped when it is full.
func (o *Orchestrator) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, max(buffer, 1))
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

// Mux validates spec and writes the container to a temporary path next to
// spec.OutputPath, returning that path. The temp file is removed on failure.
func (o *Orchestrator) Mux(ctx context.Context, spec model.MuxSpec) (string, error) {
	defer o.closeSubs()

	if err := spec.Validate(); err != nil {
		return "", err
	}
	dir := filepath.Dir(spec.OutputPath)
	if err := helpers.MakeDirs(dir); err != nil {
		return "", model.FSError("mkdir", dir, err)
	}
	temp := filepath.Join(renameio.TempDir(dir), "."+filepath.Base(helpers.StemPath(spec.OutputPath))+"."+uuid.NewString()+".mkv")

	events := make(chan Event, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range events {
			o.publish(ev)
		}
	}()

	o.logger.Debug().Str("temp", temp).Int("subtitles", len(spec.Subtitles)).Int("fonts", len(spec.Fonts)).Msg("muxing")
	err := o.runner.Run(ctx, spec, temp, events)
	close(events)
	<-forwarded

	if err != nil {
		if rmErr := os.Remove(temp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.logger.Warn().Err(rmErr).Str("path", temp).Msg("failed to remove temp output")
		}
		return "", err
	}
	if _, statErr := os.Stat(temp); statErr != nil {
		return "", model.FSError("stat", temp, statErr)
	}
	return temp, nil
}

// Commit moves a finished temp file to its final name.
func (o *Orchestrator) Commit(temp, final string) error {
	if err := os.Rename(temp, final); err != nil {
		_ = os.Remove(temp)
		return model.FSError("rename", final, err)
	}
	return nil
}

func (o *Orchestrator) publish(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (o *Orchestrator) closeSubs() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
}
