package position

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// errorPause throttles the read loop while the source keeps failing.
const errorPause = 500 * time.Millisecond

// Options tune a watch or a one-shot read.
type Options struct {
	HighAccuracy bool
	// Timeout is the longest silent period before a Timeout error is
	// reported. Zero disables timeout reporting.
	Timeout time.Duration
	// MaxCachedAge drops samples older than this. Zero accepts any age.
	MaxCachedAge time.Duration
}

// WatchOptions are the defaults for a navigation watch.
func WatchOptions() Options {
	return Options{HighAccuracy: true, Timeout: 5 * time.Second, MaxCachedAge: time.Second}
}

// CurrentOptions are the defaults for a one-shot current position read.
func CurrentOptions() Options {
	return Options{HighAccuracy: true, Timeout: 10 * time.Second, MaxCachedAge: 5 * time.Minute}
}

// watchBuffer is how many events a watch queues behind a slow callback.
// Further events are dropped and counted.
const watchBuffer = 16

// Handle identifies a watch.
type Handle uint64

// Feed reads one Source and fans its samples and errors out to watches.
// Callbacks for a watch run on that watch's goroutine, one at a time.
type Feed struct {
	source Source
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	watches map[Handle]*watch
	next    Handle
	last    *Sample

	dropped atomic.Int64
}

type feedEvent struct {
	sample *Sample
	err    *Error
}

type watch struct {
	handle   Handle
	opts     Options
	onSample func(Sample)
	onError  func(error)
	events   chan feedEvent
	done     chan struct{}
	stopOnce sync.Once
}

// NewFeed creates a feed over source. A nil source makes every watch fail
// with ErrUnsupported.
func NewFeed(source Source, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		source:  source,
		logger:  logger.Named("position"),
		now:     time.Now,
		watches: make(map[Handle]*watch),
	}
}

// Source returns the underlying source, or nil.
func (f *Feed) Source() Source { return f.source }

// Run reads the source until ctx is done.
func (f *Feed) Run(ctx context.Context) error {
	if f.source == nil {
		<-ctx.Done()
		return nil
	}
	f.logger.Info("position feed started", zap.String("source", f.source.Name()))
	for ctx.Err() == nil {
		s, err := f.source.Read()
		if err != nil {
			f.publishError(Classify(err))
			select {
			case <-ctx.Done():
			case <-time.After(errorPause):
			}
			continue
		}
		if s != nil {
			f.publishSample(*s)
		}
	}
	return nil
}

func (f *Feed) publishSample(s Sample) {
	if !s.Coordinate.Valid() {
		f.publishError(newError(PositionUnavailable, "invalid coordinate", nil))
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = f.now()
	}

	f.mu.Lock()
	f.last = &s
	ws := f.snapshotLocked()
	f.mu.Unlock()

	for _, w := range ws {
		f.deliver(w, feedEvent{sample: &s})
	}
}

func (f *Feed) publishError(e *Error) {
	f.mu.Lock()
	ws := f.snapshotLocked()
	f.mu.Unlock()

	f.logger.Debug("position error", zap.Stringer("code", e.Code), zap.Error(e))
	for _, w := range ws {
		f.deliver(w, feedEvent{err: e})
	}
}

// deliver queues ev for w without blocking the read loop.
func (f *Feed) deliver(w *watch, ev feedEvent) {
	select {
	case w.events <- ev:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Debug("watch queue full, dropping",
				zap.Uint64("handle", uint64(w.handle)), zap.Int64("dropped", n))
		}
	}
}

// Dropped reports how many events were discarded because a watch's queue
// was full.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }

func (f *Feed) snapshotLocked() []*watch {
	ws := make([]*watch, 0, len(f.watches))
	for _, w := range f.watches {
		ws = append(ws, w)
	}
	return ws
}

// Last returns the most recent valid sample seen by the feed.
func (f *Feed) Last() (Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return Sample{}, false
	}
	return *f.last, true
}

// Watch subscribes to samples and errors. PermissionDenied ends the watch
// after it is reported; other errors are reported and watching continues.
func (f *Feed) Watch(onSample func(Sample), onError func(error), opts Options) (Handle, error) {
	if f.source == nil {
		return 0, newError(Unsupported, "", nil)
	}
	if onSample == nil {
		onSample = func(Sample) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	f.mu.Lock()
	f.next++
	w := &watch{
		handle:   f.next,
		opts:     opts,
		onSample: onSample,
		onError:  onError,
		events:   make(chan feedEvent, watchBuffer),
		done:     make(chan struct{}),
	}
	f.watches[w.handle] = w
	f.mu.Unlock()

	go w.run(f)
	return w.handle, nil
}

// Unwatch cancels a watch without waiting for an in-flight callback. It
// reports whether the handle was active.
func (f *Feed) Unwatch(h Handle) bool {
	f.mu.Lock()
	w, ok := f.watches[h]
	delete(f.watches, h)
	f.mu.Unlock()
	if ok {
		w.stop()
	}
	return ok
}

// Current returns a sample no older than opts.MaxCachedAge, waiting for a
// fresh one when the cached sample is too old.
func (f *Feed) Current(ctx context.Context, opts Options) (Sample, error) {
	if f.source == nil {
		return Sample{}, newError(Unsupported, "", nil)
	}
	if last, ok := f.Last(); ok && opts.MaxCachedAge > 0 && last.Age(f.now()) <= opts.MaxCachedAge {
		return last, nil
	}

	samples := make(chan Sample, 1)
	errs := make(chan error, 1)
	h, err := f.Watch(
		func(s Sample) {
			select {
			case samples <- s:
			default:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
		opts,
	)
	if err != nil {
		return Sample{}, err
	}
	defer f.Unwatch(h)

	select {
	case s := <-samples:
		return s, nil
	case err := <-errs:
		return Sample{}, err
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

func (w *watch) stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *watch) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *watch) run(f *Feed) {
	var (
		timer    *time.Timer
		timeout  <-chan time.Time
		lastCode Code
	)
	if w.opts.Timeout > 0 {
		timer = time.NewTimer(w.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-w.done:
			return

		case ev := <-w.events:
			if w.stopped() {
				return
			}
			if ev.err != nil {
				// Repeats of the same error are reported once until a sample arrives.
				if ev.err.Code == lastCode {
					continue
				}
				lastCode = ev.err.Code
				w.onError(ev.err)
				if ev.err.Code == PermissionDenied {
					f.Unwatch(w.handle)
					return
				}
				continue
			}
			if w.opts.MaxCachedAge > 0 && ev.sample.Age(f.now()) > w.opts.MaxCachedAge {
				continue
			}
			lastCode = 0
			w.onSample(*ev.sample)
			if timer != nil {
				timer.Reset(w.opts.Timeout)
				timeout = timer.C
			}

		case <-timeout:
			if w.stopped() {
				return
			}
			timeout = nil
			if lastCode != Timeout {
				lastCode = Timeout
				w.onError(newError(Timeout, "", nil))
			}
		}
	}
}
