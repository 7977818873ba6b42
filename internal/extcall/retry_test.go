package extcall_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
	"github.com/ankitchauhan1221/maluk-backend/internal/extcall"
)

var testPolicy = extcall.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0

	err := testPolicy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.KindExternalTransient, "timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	calls := 0

	err := testPolicy.Do(context.Background(), func() error {
		calls++
		return apperr.New(apperr.KindExternalTransient, "timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalTransient))
}

func TestDo_DoesNotRetryOtherKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", apperr.New(apperr.KindExternalPermanent, "bad request")},
		{"auth", apperr.New(apperr.KindExternalAuth, "expired token")},
		{"unclassified", assert.AnError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0

			err := testPolicy.Do(context.Background(), func() error {
				calls++
				return tt.err
			})

			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := extcall.Policy{Attempts: 5, BaseDelay: 50 * time.Millisecond}.Do(ctx, func() error {
		calls++
		cancel()
		return apperr.New(apperr.KindExternalTransient, "timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
