package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_Nil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("service unavailable"), 503)
	assert.True(t, IsTransient(err))

	wrapped := fmt.Errorf("confirm batch: %w", err)
	assert.True(t, IsTransient(wrapped))
}

func TestIsTransient_Syscall(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(fmt.Errorf("dial: %w", syscall.ECONNRESET)))
}

func TestIsTransient_Patterns(t *testing.T) {
	transient := []string{
		"ollama: send request: connection refused",
		"read tcp: i/o timeout",
		"Get http://localhost:11434: context deadline exceeded",
		"ollama: unexpected status 503: loading model",
	}
	for _, msg := range transient {
		assert.True(t, IsTransient(errors.New(msg)), msg)
	}

	assert.False(t, IsTransient(errors.New("ollama: unexpected status 404: model not found")))
	assert.False(t, IsTransient(errors.New("invalid taxonomy")))
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	te := NewTransientError(inner, 500)
	assert.Equal(t, "boom", te.Error())
	assert.ErrorIs(t, te, inner)
}
