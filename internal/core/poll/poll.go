// Package poll provides the one deadline/interval polling primitive shared
// by health gating and lifecycle transitions. Callers own retry policy; the
// probes themselves are single-attempt.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrDeadlineExceeded is returned when the probe never reported done within
// the configured timeout.
var ErrDeadlineExceeded = errors.New("poll deadline exceeded")

// Config parameterizes a poll loop.
type Config struct {
	// Interval is the pause between probe attempts.
	Interval time.Duration
	// Timeout is the overall deadline. Zero means a single attempt.
	Timeout time.Duration
}

// Probe is one attempt. done=true stops the loop successfully. A non-nil
// error aborts immediately; transient not-ready conditions are (false, nil).
type Probe func(ctx context.Context) (done bool, err error)

// Wait runs probe immediately and then every cfg.Interval until it reports
// done, fails, or the deadline passes. Context cancellation wins over the
// deadline.
func Wait(ctx context.Context, cfg Config, probe Probe) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	deadline := time.Now().Add(cfg.Timeout)

	for {
		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if cfg.Timeout <= 0 || !time.Now().Add(cfg.Interval).Before(deadline) {
			return ErrDeadlineExceeded
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
