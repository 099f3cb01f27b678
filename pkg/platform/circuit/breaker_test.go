package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docgate/pkg/testutil"
)

// outcome is one recorded call: true for a primary success.
type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

func record(b *Breaker, outcomes ...outcome) {
	for _, o := range outcomes {
		if o {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	}
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		recovery int
		history  []outcome
		wantOpen bool
	}{
		{"new breaker is closed", 3, 2, nil, false},
		{"below failure threshold", 3, 2, []outcome{fail, fail}, false},
		{"failure threshold reached", 3, 2, []outcome{fail, fail, fail}, true},
		{"success clears failure streak", 3, 2, []outcome{fail, fail, ok, fail, fail}, false},
		{"one success is not recovery", 1, 2, []outcome{fail, ok}, true},
		{"recovery threshold closes", 1, 2, []outcome{fail, ok, ok}, false},
		{"failure while open restarts recovery", 1, 3, []outcome{fail, ok, ok, fail, ok, ok}, true},
		{"full recovery after restart", 1, 3, []outcome{fail, ok, ok, fail, ok, ok, ok}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("forensic-cache", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.recovery))
			record(b, tt.history...)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreaker_ReportsWhichResultToUse(t *testing.T) {
	b := New("forensic-cache", WithFailureThreshold(2), WithSuccessThreshold(2))

	testutil.Given(t, "a closed circuit", func(t *testing.T) {
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, "forensic-cache", b.Name())
	})

	testutil.When(t, "the primary fails below the threshold", func(t *testing.T) {
		useFallback, change := b.RecordFailure()

		testutil.Then(t, "the caller keeps retrying the primary", func(t *testing.T) {
			assert.False(t, useFallback)
			assert.Equal(t, StateChange{}, change)
		})
	})

	testutil.When(t, "the threshold is reached", func(t *testing.T) {
		useFallback, change := b.RecordFailure()

		testutil.Then(t, "the circuit opens once and the fallback is used", func(t *testing.T) {
			assert.True(t, useFallback)
			assert.Equal(t, StateChange{Opened: true}, change)

			useFallback, change = b.RecordFailure()
			assert.True(t, useFallback)
			assert.Equal(t, StateChange{}, change)
		})
	})

	testutil.When(t, "the primary recovers", func(t *testing.T) {
		first, _ := b.RecordSuccess()
		second, change := b.RecordSuccess()

		testutil.Then(t, "its results are used only after the recovery threshold", func(t *testing.T) {
			assert.False(t, first)
			assert.True(t, second)
			assert.Equal(t, StateChange{Closed: true}, change)
		})
	})
}

func TestBreaker_Reset(t *testing.T) {
	b := New("forensic-cache", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.Equal(t, StateChange{}, change)
}
