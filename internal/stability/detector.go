// Package stability decides when a live document has stopped changing.
//
// The detector repeatedly asks a caller-supplied sampler for a size metric
// (typically the length of the serialized markup) and reports the page as
// settled once a run of consecutive equal samples reaches the configured
// length. A page that mutates without changing its total size is reported as
// settled.
package stability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrStabilityTimeout is returned by Result.Err when the page did not settle
// before the timeout. It is a degraded-confidence signal, not a failure.
var ErrStabilityTimeout = errors.New("stability: page did not settle before timeout")

// Sampler reads the current size metric from a live page handle.
// It is treated as opaque, synchronous and possibly expensive.
type Sampler func(ctx context.Context) (int, error)

// Sample is one observation of the size metric.
type Sample struct {
	Size       int
	ObservedAt time.Time
}

// Result summarizes one stabilization run.
type Result struct {
	Settled      bool          `json:"settled"`
	SamplesTaken int           `json:"samples_taken"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Err returns ErrStabilityTimeout if the run ended without settling.
func (r Result) Err() error {
	if r.Settled {
		return nil
	}
	return ErrStabilityTimeout
}

// Options tunes the polling loop.
type Options struct {
	Interval              time.Duration `mapstructure:"interval" yaml:"interval"`
	RequiredStableSamples int           `mapstructure:"required_stable_samples" yaml:"required_stable_samples"`
	Timeout               time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultOptions mirrors the values the reconnaissance flow has always used.
func DefaultOptions() Options {
	return Options{
		Interval:              500 * time.Millisecond,
		RequiredStableSamples: 3,
		Timeout:               5 * time.Second,
	}
}

// Validate checks that the options describe a loop that terminates.
func (o Options) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if o.RequiredStableSamples < 1 {
		return fmt.Errorf("required_stable_samples must be at least 1")
	}
	return nil
}

// clock abstracts time so tests can drive the loop deterministically.
type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Detector polls a sampler until the signal stops changing.
// A Detector holds no per-run state and may be shared across goroutines.
type Detector struct {
	opts   Options
	logger *zap.Logger
	clock  clock
}

// NewDetector validates the options and returns a ready detector.
func NewDetector(opts Options, logger *zap.Logger) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stability options: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		opts:   opts,
		logger: logger.Named("stability"),
		clock:  realClock{},
	}, nil
}

// Options returns the configuration the detector was built with.
func (d *Detector) Options() Options { return d.opts }

// Detect blocks until the sampler has returned the same value
// RequiredStableSamples times in a row, or until the timeout elapses.
//
// At least one sample is always taken, even when Timeout < Interval. The
// sampler is the only thing touched, so the page handle behind it stays
// usable whatever the outcome. A sampler error or a cancelled ctx ends the
// run early; the partial Result is returned alongside the error.
func (d *Detector) Detect(ctx context.Context, sampler Sampler) (Result, error) {
	if sampler == nil {
		return Result{}, fmt.Errorf("stability: nil sampler")
	}

	start := d.clock.Now()
	var (
		last   Sample
		run    int
		result Result
	)

	for {
		size, err := sampler(ctx)
		result.SamplesTaken++
		now := d.clock.Now()
		result.Elapsed = now.Sub(start)
		if err != nil {
			return result, fmt.Errorf("stability: sample %d failed: %w", result.SamplesTaken, err)
		}

		if run > 0 && size == last.Size {
			run++
		} else {
			run = 1
			last = Sample{Size: size, ObservedAt: now}
		}

		d.logger.Debug("DOM size sampled",
			zap.Int("sample", result.SamplesTaken),
			zap.Int("size", size),
			zap.Int("run", run),
		)

		if run >= d.opts.RequiredStableSamples {
			result.Settled = true
			d.logger.Debug("DOM has stabilized.",
				zap.Int("samples", result.SamplesTaken),
				zap.Duration("elapsed", result.Elapsed),
			)
			return result, nil
		}

		// The next sample would land past the deadline.
		if result.Elapsed+d.opts.Interval > d.opts.Timeout {
			d.logger.Debug("DOM may not be fully stable after timeout.",
				zap.Int("samples", result.SamplesTaken),
				zap.Int("last_size", last.Size),
			)
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-d.clock.After(d.opts.Interval):
		}
	}
}
