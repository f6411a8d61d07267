package scraper

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outgoing image requests by a fixed minimum interval. The first
// request goes out immediately. It is safe for concurrent use.
type Pacer struct {
	limiter *rate.Limiter
	pause   time.Duration
}

// NewPacer returns a Pacer that allows one request per pause. A zero or
// negative pause disables pacing.
func NewPacer(pause time.Duration) *Pacer {
	if pause <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(pause), 1),
		pause:   pause,
	}
}

// Wait blocks until the next request may start or ctx is done. Cancellation
// during the pause returns ctx's error.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		// rate reports "would exceed context deadline" without waiting; surface
		// the context's own error when it has one.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Pause returns the configured spacing.
func (p *Pacer) Pause() time.Duration {
	return p.pause
}
