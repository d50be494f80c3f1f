package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options mirrors the knobs a platform position API accepts.
type Options struct {
	EnableHighAccuracy bool          // ask the platform for its most precise fix
	MaximumAge         time.Duration // oldest cached fix that is still accepted
	Timeout            time.Duration // max wait for a fix before reporting a timeout
}

// DefaultOptions returns the options the chat view watches with.
func DefaultOptions() Options {
	return Options{
		EnableHighAccuracy: true,
		MaximumAge:         10 * time.Second,
		Timeout:            15 * time.Second,
	}
}

// Source is the platform side of position watching. Watch starts delivering
// samples on the returned channel until ctx is cancelled; the source closes
// the channel when it stops.
type Source interface {
	Watch(ctx context.Context, opts Options) (<-chan Sample, error)
}

// ErrorCode classifies a GeolocationError.
type ErrorCode int

const (
	PermissionDenied ErrorCode = iota + 1
	PositionUnavailable
	Timeout
)

// GeolocationError is a non-fatal device or permission failure.
type GeolocationError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *GeolocationError) Error() string {
	return "geolocation: " + e.Message
}

func (e *GeolocationError) Unwrap() error {
	return e.Err
}

// Event is emitted by the Watcher. Exactly one of a qualifying Position or
// Err is meaningful: Err is nil for position events.
type Event struct {
	Position Position
	Err      *GeolocationError
}

// Watcher filters a Source down to the positions worth announcing: the first
// fix, then only fixes more than MovementThresholdKm away from the last one
// reported.
type Watcher struct {
	source Source
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *Position

	events   chan Event
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewWatcher creates a Watcher over source. Start must be called to begin
// watching.
func NewWatcher(source Source, opts Options, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source: source,
		opts:   opts,
		logger: logger.Named("geo"),
		now:    time.Now,
		events: make(chan Event, 16),
	}
}

// Events returns the channel of reported positions and errors. It is closed
// once the watch ends.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start subscribes to the source and processes samples in a background
// goroutine until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	samples, err := w.source.Watch(ctx, w.opts)
	if err != nil {
		cancel()
		return fmt.Errorf("geo: watch: %w", err)
	}

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(ctx, samples)
	return nil
}

// Stop cancels the subscription. Only the first call has an effect.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		w.logger.Debug("watch cleared")
	})
}

// Observe applies the movement threshold to p. It returns true and records p
// as the last reported position when p is the first fix or lies further than
// MovementThresholdKm from the previous report.
func (w *Watcher) Observe(p Position) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.last != nil && Distance(*w.last, p) <= MovementThresholdKm {
		return false
	}
	w.last = &p
	return true
}

// LastReported returns the last reported position, if any.
func (w *Watcher) LastReported() (Position, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return Position{}, false
	}
	return *w.last, true
}

func (w *Watcher) loop(ctx context.Context, samples <-chan Sample) {
	defer close(w.events)

	var timeout <-chan time.Time
	var timer *time.Timer
	if w.opts.Timeout > 0 {
		timer = time.NewTimer(w.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case s, ok := <-samples:
			if !ok {
				return
			}
			if timer != nil {
				timer.Reset(w.opts.Timeout)
			}
			w.handle(ctx, s)

		case <-timeout:
			w.emit(ctx, Event{Err: &GeolocationError{
				Code:    Timeout,
				Message: fmt.Sprintf("timeout expired after %s", w.opts.Timeout),
			}})
			// Re-armed by the next sample.
		}
	}
}

func (w *Watcher) handle(ctx context.Context, s Sample) {
	if s.Err != nil {
		var gerr *GeolocationError
		if !errors.As(s.Err, &gerr) {
			gerr = &GeolocationError{Code: PositionUnavailable, Message: s.Err.Error(), Err: s.Err}
		}
		w.logger.Warn("position error", zap.Error(gerr))
		w.emit(ctx, Event{Err: gerr})
		return
	}

	if w.opts.MaximumAge > 0 && !s.Timestamp.IsZero() {
		if age := w.now().Sub(s.Timestamp); age > w.opts.MaximumAge {
			w.logger.Debug("stale fix dropped", zap.Duration("age", age))
			return
		}
	}

	if !w.Observe(s.Position) {
		return
	}
	w.logger.Debug("position reported",
		zap.Float64("lat", s.Position.Latitude),
		zap.Float64("lng", s.Position.Longitude))
	w.emit(ctx, Event{Position: s.Position})
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
