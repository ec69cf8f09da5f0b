// Package poller implements the fetch-decode-publish loops that translate
// Flower API responses into Prometheus gauges.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/flower-exporter/internal/flower"
)

// Delays groups the loop timing knobs shared by all pollers.
type Delays struct {
	// Interval is the pause between successful cycles.
	Interval time.Duration
	// ConnRetry is the pause after a connectivity fault.
	ConnRetry time.Duration
	// StatusRetry is the pause after a non-2xx response.
	StatusRetry time.Duration
}

const (
	defaultInterval    = time.Second
	defaultConnRetry   = 5 * time.Second
	defaultStatusRetry = time.Second
)

// Poller runs one endpoint's poll loop. Cycle performs a single
// fetch-decode-publish pass; Reset zeroes previously known series once
// before the loop starts. Both are supplied as plain closures so the two
// spec'd pollers (and the task-state poller) differ only in data.
type Poller struct {
	Host   string
	Kind   string
	Delays Delays
	Log    zerolog.Logger
	Reset  func() error
	Cycle  func(ctx context.Context) error
}

// Run executes the loop until ctx is cancelled or a payload fault occurs.
// Connectivity faults and bad statuses are logged and retried indefinitely;
// a malformed payload terminates this poller only.
func (p *Poller) Run(ctx context.Context) error {
	log := p.Log.With().Str("flower", p.Host).Str("poller", p.Kind).Logger()
	if p.Reset != nil {
		if err := p.Reset(); err != nil {
			log.Error().Err(err).Msg("reset known series")
		}
	}
	log.Info().Msg("poller started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var delay time.Duration
		err := p.Cycle(ctx)
		var statusErr *flower.StatusError
		switch {
		case err == nil:
			delay = fallback(p.Delays.Interval, defaultInterval)
		case errors.Is(err, flower.ErrBadPayload):
			log.Error().Err(err).Msg("unrecoverable payload fault, stopping poller")
			return err
		case errors.As(err, &statusErr):
			log.Error().Err(err).Msg("error receiving data")
			delay = fallback(p.Delays.StatusRetry, defaultStatusRetry)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			log.Error().Err(err).Msg("error receiving data")
			delay = fallback(p.Delays.ConnRetry, defaultConnRetry)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func fallback(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
