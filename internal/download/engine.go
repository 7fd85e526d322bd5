package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jmagar/epgrab/internal/api"
	"github.com/jmagar/epgrab/internal/model"
)

// ErrAborted is returned by Start after Abort or context cancellation.
var ErrAborted = errors.New("download aborted")

// Engine fetches a fixed set of segments with a bounded worker pool.
type Engine struct {
	segments   []*model.Segment
	maxRetries int
	maxWorkers int
	fetcher    api.Fetcher
	s          settings

	mu      sync.Mutex
	subs    []chan model.ProgressSnapshot
	started bool

	next      atomic.Int64
	abort     chan struct{}
	abortOnce sync.Once
}

// NewEngine builds an engine. maxRetries counts total attempts per segment.
func NewEngine(segments []*model.Segment, maxRetries, maxWorkers int, fetcher api.Fetcher, opts ...Option) *Engine {
	return &Engine{
		segments:   segments,
		maxRetries: max(maxRetries, 1),
		maxWorkers: max(maxWorkers, 1),
		fetcher:    fetcher,
		s:          newSettings(opts),
		abort:      make(chan struct{}),
	}
}

// Subscribe returns a progress channel closed once Start returns. Call it
// before Start; later subscribers get an already closed channel.
func (e *Engine) Subscribe() <-chan model.ProgressSnapshot {
	// One snapshot per segment at most, so a buffer this size never blocks the aggregator.
	ch := make(chan model.ProgressSnapshot, len(e.segments)+1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

// Abort stops claiming new segments. Safe to call more than once.
func (e *Engine) Abort() {
	e.abortOnce.Do(func() { close(e.abort) })
}

func (e *Engine) aborted() bool {
	select {
	case <-e.abort:
		return true
	default:
		return false
	}
}

// Start runs the pool and returns when every segment is Done, the first
// permanent failure occurs, or the download is aborted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()
	defer e.closeSubs()

	workers := min(e.maxWorkers, len(e.segments))
	e.s.logger.Debug().Int("segments", len(e.segments)).Int("workers", workers).Int("max_retries", e.maxRetries).Msg("starting segment download")

	sizes := make(chan int64, len(e.segments))
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg := newAggregator(len(e.segments), e.s.speedWindow, e.s.now)
		for size := range sizes {
			e.publish(agg.add(size))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				if e.aborted() || gctx.Err() != nil {
					return nil
				}
				i := int(e.next.Add(1) - 1)
				if i >= len(e.segments) {
					return nil
				}
				seg := e.segments[i]
				if err := e.fetch(gctx, seg); err != nil {
					return err
				}
				sizes <- seg.Size
			}
		})
	}
	err := g.Wait()
	close(sizes)
	<-aggDone

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
	}
	if err != nil {
		e.s.logger.Error().Err(err).Msg("segment download failed")
		return err
	}
	for _, seg := range e.segments {
		if seg.Status != model.SegmentDone {
			return ErrAborted
		}
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, seg *model.Segment) error {
	seg.Status = model.SegmentInProgress
	size, err := fetchWithRetry(ctx, e.fetcher, seg.URI, seg.Path, e.maxRetries, e.s, func(attempt int, _ error) {
		seg.Retries = attempt
	})
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by a sibling failure or the caller, not this segment's fault.
			seg.Status = model.SegmentPending
			return ctx.Err()
		}
		seg.Status = model.SegmentFailed
		return fmt.Errorf("segment %d: %w", seg.Index, err)
	}
	seg.Size = size
	seg.Status = model.SegmentDone
	return nil
}

func (e *Engine) publish(snap model.ProgressSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *Engine) closeSubs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}
