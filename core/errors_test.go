package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, IsRetryable(Transient("call", base)))
	assert.False(t, IsRetryable(Permanent("call", base)))
	assert.False(t, IsRetryable(&ValidationError{Reason: "bad"}))
	assert.False(t, IsRetryable(nil))

	// Unclassified errors default to retryable.
	assert.True(t, IsRetryable(base))

	// Classification survives wrapping.
	assert.False(t, IsRetryable(fmt.Errorf("outer: %w", Permanent("call", base))))
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", Transient("call", base))))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("rate limited")

	assert.ErrorIs(t, Transient("generate", base), base)
	assert.ErrorIs(t, Permanent("generate", base), base)
}

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)

	assert.NoError(t, l.Increment())
	assert.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestCallLimiter_Unlimited(t *testing.T) {
	l := NewCallLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, l.Increment())
	}
	assert.Equal(t, -1, l.Remaining())
	assert.Equal(t, 100, l.Count())
}
