package download

import (
	"slices"
	"time"

	"github.com/jmagar/epgrab/internal/model"
)

type sample struct {
	at    time.Time
	bytes int64
}

// aggregator owns all progress state. It is only touched by the engine's
// aggregator goroutine.
type aggregator struct {
	total      int
	completed  int
	downloaded int64
	estimate   int64
	sizes      []int64 // completed sizes, sorted

	window      []sample
	windowSize  int
	windowStart time.Time
	now         func() time.Time
}

func newAggregator(total, windowSize int, now func() time.Time) *aggregator {
	return &aggregator{
		total:       total,
		windowSize:  max(windowSize, 1),
		windowStart: now(),
		now:         now,
	}
}

// add records one completed segment and returns the resulting snapshot.
// Remaining segments are projected at the median known size, so a single
// outlier does not inflate the total. The estimate never decreases while
// segments remain; once every size is known it is exact.
func (a *aggregator) add(size int64) model.ProgressSnapshot {
	now := a.now()
	a.completed++
	a.downloaded += size
	i, _ := slices.BinarySearch(a.sizes, size)
	a.sizes = slices.Insert(a.sizes, i, size)

	a.window = append(a.window, sample{at: now, bytes: size})
	if len(a.window) > a.windowSize {
		a.windowStart = a.window[0].at
		a.window = a.window[1:]
	}

	remaining := a.total - a.completed
	if remaining <= 0 {
		a.estimate = a.downloaded
	} else {
		a.estimate = max(a.estimate, a.downloaded+a.median()*int64(remaining))
	}

	return model.ProgressSnapshot{
		DownloadedBytes:     a.downloaded,
		EstimatedTotalBytes: a.estimate,
		Speed:               a.speed(now),
		Completed:           a.completed,
		Total:               a.total,
		Timestamp:           now,
	}
}

func (a *aggregator) median() int64 {
	n := len(a.sizes)
	if n%2 == 1 {
		return a.sizes[n/2]
	}
	return (a.sizes[n/2-1] + a.sizes[n/2]) / 2
}

// speed averages the bytes of the recent window over the time it spans.
func (a *aggregator) speed(now time.Time) float64 {
	elapsed := now.Sub(a.windowStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	var bytes int64
	for _, s := range a.window {
		bytes += s.bytes
	}
	return float64(bytes) / elapsed
}
