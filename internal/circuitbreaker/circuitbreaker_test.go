package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/Pantilei/crypto-converter/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	cb := circuitbreaker.New[int](circuitbreaker.DefaultConfig("test"))
	failing := func() (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(failing)
		require.Error(t, err)
	}

	// A 6th call should be rejected by the open breaker itself, not reach
	// failing again.
	_, err := cb.Execute(func() (int, error) {
		t.Fatal("breaker should be open and must not invoke the guarded call")
		return 0, nil
	})
	assert.Error(t, err)
}

func TestPassesThroughOnSuccess(t *testing.T) {
	cb := circuitbreaker.New[string](circuitbreaker.DefaultConfig("test"))
	got, err := cb.Execute(func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
