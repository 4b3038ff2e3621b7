package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoRetriesTransient(t *testing.T) {
	p := New(WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := New(WithMaxAttempts(2), WithBaseDelay(time.Millisecond))

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestDoStopsOnPersistent(t *testing.T) {
	p := New(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))

	calls := 0
	cause := errors.New("token revoked")
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Persistent(cause)
	})
	require.Error(t, err)
	require.True(t, IsPersistent(err))
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	p := New(WithMaxAttempts(10), WithBaseDelay(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
}
