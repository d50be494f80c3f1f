package geo

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d := Distance(Position{Latitude: 0, Longitude: 0}, Position{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111.195, d, 0.01)
}

func TestDistance_SamePointIsZero(t *testing.T) {
	p := Position{Latitude: 48.137, Longitude: 11.575}
	assert.Zero(t, Distance(p, p))
}

func TestDistance_Symmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawPosition(t, "a")
		b := drawPosition(t, "b")
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	})
}

func TestObserve_FirstFixAlwaysReported(t *testing.T) {
	w := NewWatcher(nil, DefaultOptions(), nil)
	assert.True(t, w.Observe(Position{Latitude: 10, Longitude: 10}))

	last, ok := w.LastReported()
	require.True(t, ok)
	assert.Equal(t, Position{Latitude: 10, Longitude: 10}, last)
}

func TestObserve_JitterSuppressed(t *testing.T) {
	w := NewWatcher(nil, DefaultOptions(), nil)
	origin := Position{Latitude: 48.137, Longitude: 11.575}
	require.True(t, w.Observe(origin))

	// ~55 m north: below the threshold.
	assert.False(t, w.Observe(Position{Latitude: 48.1375, Longitude: 11.575}))
	// ~222 m north of origin: above the threshold.
	assert.True(t, w.Observe(Position{Latitude: 48.139, Longitude: 11.575}))
}

// The reference is measured from the last *reported* fix, so slow drift made
// of individually small steps is eventually reported.
func TestObserve_SlowDriftEventuallyReported(t *testing.T) {
	w := NewWatcher(nil, DefaultOptions(), nil)
	require.True(t, w.Observe(Position{Latitude: 0, Longitude: 0}))

	reported := 0
	for i := 1; i <= 10; i++ {
		// 0.0003 deg ~ 33 m per step.
		if w.Observe(Position{Latitude: float64(i) * 0.0003, Longitude: 0}) {
			reported++
		}
	}
	assert.Equal(t, 3, reported)
}

func TestObserve_ReportsIffFirstOrBeyondThreshold(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := NewWatcher(nil, DefaultOptions(), nil)
		base := drawPosition(t, "base")
		steps := rapid.SliceOfN(rapid.Float64Range(-0.003, 0.003), 1, 40).Draw(t, "steps")

		var last *Position
		for i, step := range steps {
			p := Position{Latitude: base.Latitude + step, Longitude: base.Longitude + steps[len(steps)-1-i]}
			want := last == nil || Distance(*last, p) > MovementThresholdKm
			got := w.Observe(p)
			if got != want {
				t.Fatalf("sample %d %+v: reported=%v, want %v", i, p, got, want)
			}
			if want {
				pp := p
				last = &pp
			}
		}
	})
}

func TestWatcher_EmitsQualifyingPositions(t *testing.T) {
	src := NewChannelSource(4)
	w := NewWatcher(src, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	now := time.Now()
	src.Push(ctx, Sample{Position: Position{Latitude: 1, Longitude: 1}, Timestamp: now})
	src.Push(ctx, Sample{Position: Position{Latitude: 1.0001, Longitude: 1}, Timestamp: now})
	src.Push(ctx, Sample{Position: Position{Latitude: 1.01, Longitude: 1}, Timestamp: now})

	first := receive(t, w.Events())
	assert.Nil(t, first.Err)
	assert.Equal(t, 1.0, first.Position.Latitude)

	second := receive(t, w.Events())
	assert.Nil(t, second.Err)
	assert.Equal(t, 1.01, second.Position.Latitude)
}

func TestWatcher_DropsStaleFixes(t *testing.T) {
	src := NewChannelSource(4)
	w := NewWatcher(src, Options{MaximumAge: 10 * time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	src.Push(ctx, Sample{Position: Position{Latitude: 5}, Timestamp: time.Now().Add(-time.Minute)})
	src.Push(ctx, Sample{Position: Position{Latitude: 6}, Timestamp: time.Now()})

	ev := receive(t, w.Events())
	assert.Equal(t, 6.0, ev.Position.Latitude)
}

func TestWatcher_PlatformErrorSurfaced(t *testing.T) {
	src := NewChannelSource(1)
	w := NewWatcher(src, Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	cause := errors.New("User denied Geolocation")
	src.Push(ctx, Sample{Err: &GeolocationError{Code: PermissionDenied, Message: cause.Error(), Err: cause}})

	ev := receive(t, w.Events())
	require.NotNil(t, ev.Err)
	assert.Equal(t, PermissionDenied, ev.Err.Code)
	assert.ErrorIs(t, ev.Err, cause)
	assert.Contains(t, ev.Err.Error(), "User denied Geolocation")
}

func TestWatcher_TimeoutReported(t *testing.T) {
	src := NewChannelSource(1)
	w := NewWatcher(src, Options{Timeout: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	ev := receive(t, w.Events())
	require.NotNil(t, ev.Err)
	assert.Equal(t, Timeout, ev.Err.Code)
}

type countingSource struct {
	inner   Source
	cancels atomic.Int32
}

func (s *countingSource) Watch(ctx context.Context, opts Options) (<-chan Sample, error) {
	go func() {
		<-ctx.Done()
		s.cancels.Add(1)
	}()
	return s.inner.Watch(ctx, opts)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	src := &countingSource{inner: NewChannelSource(1)}
	w := NewWatcher(src, Options{}, nil)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
	w.Stop()

	// Events closes once the loop has observed the cancellation.
	for range w.Events() {
	}
	require.Eventually(t, func() bool { return src.cancels.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.cancels.Load())
}

func TestStaticSource_RepeatsFix(t *testing.T) {
	src := StaticSource{Position: Position{Latitude: 3, Longitude: 4}, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Watch(ctx, DefaultOptions())
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		select {
		case s := <-ch:
			assert.Equal(t, Position{Latitude: 3, Longitude: 4}, s.Position)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for static fix")
		}
	}
}

func drawPosition(t *rapid.T, label string) Position {
	return Position{
		Latitude:  rapid.Float64Range(-80, 80).Draw(t, label+"_lat"),
		Longitude: rapid.Float64Range(-179, 179).Draw(t, label+"_lng"),
	}
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for geo event")
	}
	return Event{}
}
