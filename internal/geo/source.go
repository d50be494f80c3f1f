package geo

import (
	"context"
	"time"
)

// ChannelSource is a Source fed by Push. It is used by the terminal client to
// turn typed coordinates into fixes, and by tests.
type ChannelSource struct {
	samples chan Sample
}

// NewChannelSource creates a ChannelSource whose Push blocks once buffer
// samples are pending.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{samples: make(chan Sample, buffer)}
}

// Push delivers a sample to the active watch. It returns false if ctx ends
// first.
func (s *ChannelSource) Push(ctx context.Context, sample Sample) bool {
	select {
	case s.samples <- sample:
		return true
	case <-ctx.Done():
		return false
	}
}

// Watch implements Source.
func (s *ChannelSource) Watch(ctx context.Context, _ Options) (<-chan Sample, error) {
	out := make(chan Sample)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case sample := <-s.samples:
				select {
				case out <- sample:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StaticSource reports a fixed position every Interval, like a stationary
// device.
type StaticSource struct {
	Position Position
	Interval time.Duration
}

// Watch implements Source.
func (s StaticSource) Watch(ctx context.Context, _ Options) (<-chan Sample, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	out := make(chan Sample)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case out <- Sample{Position: s.Position, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
