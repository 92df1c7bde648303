package circuitbreaker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 3, Timeout: time.Minute})
	boom := fmt.Errorf("boom")

	for i := 0; i < 3; i++ {
		assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	}
	assert.Equal(t, "open", cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen, "open breaker rejects without executing")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 2, Timeout: time.Minute})
	boom := fmt.Errorf("boom")

	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return boom })

	assert.Equal(t, "closed", cb.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "test", MaxFailures: 1, Timeout: 10 * time.Millisecond})

	_ = cb.Execute(func() error { return fmt.Errorf("boom") })
	assert.Equal(t, "open", cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, "closed", cb.State())
}
