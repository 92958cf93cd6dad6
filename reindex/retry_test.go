package reindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTxnConflict = errors.New("transaction conflict")

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		attempts     int
		failures     int
		wantErr      error
		wantAttempts int
	}{
		{name: "first write lands", attempts: 3, failures: 0, wantAttempts: 1},
		{name: "conflicts then success", attempts: 5, failures: 2, wantAttempts: 3},
		{name: "conflicts exhaust attempts", attempts: 3, failures: 10, wantErr: errTxnConflict, wantAttempts: 3},
		{name: "zero attempts", attempts: 0, wantErr: ErrInvalidMaxAttempts},
		{name: "negative attempts", attempts: -2, wantErr: ErrInvalidMaxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), nil, tt.attempts, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errTxnConflict
				}
				return nil
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, calls)
		})
	}
}

func TestRetryWithBackoff_StopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, nil, 10, 10*time.Millisecond, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errTxnConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoff_DelayDoubles(t *testing.T) {
	var at []time.Duration
	start := time.Now()
	_ = RetryWithBackoff(context.Background(), nil, 3, 20*time.Millisecond, func(context.Context) error {
		at = append(at, time.Since(start))
		return errTxnConflict
	})
	require.Len(t, at, 3)
	assert.GreaterOrEqual(t, at[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, at[2]-at[1], 40*time.Millisecond)
}
