package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrPersistent marks failures that must not be retried, such as an expired
// credential. Wrap the cause with Persistent to stop a retry loop early.
var ErrPersistent = errors.New("persistent failure")

func Persistent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPersistent, err)
}

func IsPersistent(err error) bool {
	return errors.Is(err, ErrPersistent)
}

// Policy is a reusable exponential-backoff policy. A single policy instance
// is shared by all polling streams so retry behaviour stays in one place.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      float64
}

const (
	_maxAttemptsDefault = 3
	_baseDelayDefault   = 2 * time.Second
	_maxDelayDefault    = 30 * time.Second
	_multiplierDefault  = 2.0
	_jitterDefault      = 0.1
)

type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		p.maxAttempts = n
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.baseDelay = d
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.maxDelay = d
	}
}

func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: _maxAttemptsDefault,
		baseDelay:   _baseDelayDefault,
		maxDelay:    _maxDelayDefault,
		multiplier:  _multiplierDefault,
		jitter:      _jitterDefault,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs fn up to maxAttempts times, sleeping with exponential backoff and
// jitter between attempts. It returns immediately on success, a persistent
// error, or context cancellation.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	delay := p.baseDelay

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.withJitter(delay)):
			}
			delay = time.Duration(float64(delay) * p.multiplier)
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if IsPersistent(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return err
}

func (p *Policy) withJitter(d time.Duration) time.Duration {
	if p.jitter <= 0 {
		return d
	}
	f := float64(d) * (1 + p.jitter*(2*rand.Float64()-1))
	return time.Duration(f)
}
