package stability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock advances virtual time only when the detector sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequenceSampler replays sizes and repeats the last one once exhausted.
func sequenceSampler(sizes ...int) (Sampler, *int) {
	calls := 0
	return func(ctx context.Context) (int, error) {
		idx := calls
		if idx >= len(sizes) {
			idx = len(sizes) - 1
		}
		calls++
		return sizes[idx], nil
	}, &calls
}

func newTestDetector(t *testing.T, opts Options) (*Detector, *fakeClock) {
	t.Helper()
	d, err := NewDetector(opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	clk := newFakeClock()
	d.clock = clk
	return d, clk
}

func TestDetect_SettlesOnFirstCompletedRun(t *testing.T) {
	d, _ := newTestDetector(t, Options{
		Interval:              500 * time.Millisecond,
		RequiredStableSamples: 3,
		Timeout:               5 * time.Second,
	})
	sampler, calls := sequenceSampler(100, 150, 150, 150)

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, 4, res.SamplesTaken)
	assert.Equal(t, 4, *calls)
	assert.Equal(t, 1500*time.Millisecond, res.Elapsed)
	assert.NoError(t, res.Err())
}

func TestDetect_SamplesTakenIsIndexOfCompletingSample(t *testing.T) {
	tests := []struct {
		name     string
		sizes    []int
		required int
		want     int
	}{
		{"identical from the start", []int{7, 7, 7, 7, 7}, 3, 3},
		{"late run", []int{1, 2, 3, 4, 4}, 2, 5},
		{"interrupted run restarts", []int{5, 5, 6, 6, 6, 6}, 3, 5},
		{"single sample suffices", []int{42}, 1, 1},
		{"run after growth", []int{10, 20, 20, 30, 30, 30, 30}, 4, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDetector(t, Options{
				Interval:              time.Second,
				RequiredStableSamples: tt.required,
				Timeout:               time.Minute,
			})
			sampler, _ := sequenceSampler(tt.sizes...)

			res, err := d.Detect(context.Background(), sampler)

			require.NoError(t, err)
			assert.True(t, res.Settled)
			assert.Equal(t, tt.want, res.SamplesTaken)
		})
	}
}

func TestDetect_NeverRepeatingTimesOut(t *testing.T) {
	d, _ := newTestDetector(t, Options{
		Interval:              500 * time.Millisecond,
		RequiredStableSamples: 3,
		Timeout:               5 * time.Second,
	})
	size := 0
	sampler := func(ctx context.Context) (int, error) {
		size += 10
		return size, nil
	}

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.False(t, res.Settled)
	// Samples at t=0, 0.5, ..., 5.0s.
	assert.Equal(t, 11, res.SamplesTaken)
	assert.LessOrEqual(t, res.Elapsed, 5*time.Second)
	assert.ErrorIs(t, res.Err(), ErrStabilityTimeout)
}

func TestDetect_AlternatingValuesNeverSettle(t *testing.T) {
	d, _ := newTestDetector(t, Options{
		Interval:              100 * time.Millisecond,
		RequiredStableSamples: 2,
		Timeout:               2 * time.Second,
	})
	n := 0
	sampler := func(ctx context.Context) (int, error) {
		n++
		return n % 2, nil
	}

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.False(t, res.Settled)
}

func TestDetect_TimeoutShorterThanIntervalTakesExactlyOneSample(t *testing.T) {
	d, _ := newTestDetector(t, Options{
		Interval:              time.Second,
		RequiredStableSamples: 3,
		Timeout:               100 * time.Millisecond,
	})
	sampler, calls := sequenceSampler(100)

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.False(t, res.Settled)
	assert.Equal(t, 1, res.SamplesTaken)
	assert.Equal(t, 1, *calls)
}

func TestDetect_SlowSamplerCountsTowardsTimeout(t *testing.T) {
	d, clk := newTestDetector(t, Options{
		Interval:              100 * time.Millisecond,
		RequiredStableSamples: 5,
		Timeout:               time.Second,
	})
	sampler := func(ctx context.Context) (int, error) {
		clk.Advance(400 * time.Millisecond)
		return 1, nil
	}

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.False(t, res.Settled)
	// Samples end at 0.4s, 0.9s and 1.4s; a fourth would start past the deadline.
	assert.Equal(t, 3, res.SamplesTaken)
}

func TestDetect_SamplerErrorAborts(t *testing.T) {
	d, _ := newTestDetector(t, DefaultOptions())
	boom := errors.New("target closed")
	calls := 0
	sampler := func(ctx context.Context) (int, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return 10, nil
	}

	res, err := d.Detect(context.Background(), sampler)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.SamplesTaken)
	assert.False(t, res.Settled)
}

func TestDetect_ContextCancellation(t *testing.T) {
	// Real clock: the detector must wake up from its sleep when ctx is cancelled.
	d, err := NewDetector(Options{
		Interval:              time.Hour,
		RequiredStableSamples: 3,
		Timeout:               2 * time.Hour,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sampler := func(context.Context) (int, error) {
		cancel()
		return 1, nil
	}

	done := make(chan struct{})
	var res Result
	go func() {
		defer close(done)
		res, err = d.Detect(ctx, sampler)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Detect did not return after cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.SamplesTaken)
}

func TestDetect_RealClockSmoke(t *testing.T) {
	d, err := NewDetector(Options{
		Interval:              time.Millisecond,
		RequiredStableSamples: 3,
		Timeout:               time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sampler, _ := sequenceSampler(1, 2, 2, 2)

	res, err := d.Detect(context.Background(), sampler)

	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, 4, res.SamplesTaken)
}

func TestDetect_NilSampler(t *testing.T) {
	d, _ := newTestDetector(t, DefaultOptions())
	_, err := d.Detect(context.Background(), nil)
	assert.Error(t, err)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	tests := []struct {
		name string
		mut  func(*Options)
		msg  string
	}{
		{"zero interval", func(o *Options) { o.Interval = 0 }, "interval must be a positive duration"},
		{"negative timeout", func(o *Options) { o.Timeout = -time.Second }, "timeout must be a positive duration"},
		{"zero required", func(o *Options) { o.RequiredStableSamples = 0 }, "required_stable_samples must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mut(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)

			_, err = NewDetector(opts, nil)
			assert.Error(t, err)
		})
	}
}
