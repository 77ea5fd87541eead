package backoff

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maxRand always picks the top of the range
type maxRand struct{}

func (maxRand) Int64N(n int64) int64 { return n - 1 }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero attempts", Config{Base: time.Millisecond, Max: time.Second}},
		{"negative attempts", Config{Base: time.Millisecond, Max: time.Second, MaxAttempts: -1}},
		{"zero base", Config{Max: time.Second, MaxAttempts: 1}},
		{"zero max", Config{Base: time.Millisecond, MaxAttempts: 1}},
		{"base above max", Config{Base: time.Second, Max: time.Millisecond, MaxAttempts: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestCeiling(t *testing.T) {
	s, err := New(Config{Base: 500 * time.Millisecond, Max: 5 * time.Second, MaxAttempts: 5}, nil)
	require.NoError(t, err)

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for attempt, ceiling := range want {
		assert.Equal(t, ceiling, s.Ceiling(attempt), "attempt %d", attempt)
	}
	// large attempts must not overflow
	assert.Equal(t, 5*time.Second, s.Ceiling(1000))
}

func TestNextHitsCeiling(t *testing.T) {
	s, err := New(Config{Base: 500 * time.Millisecond, Max: 5 * time.Second, MaxAttempts: 5}, maxRand{})
	require.NoError(t, err)

	var delays []time.Duration
	for {
		d, ok := s.Next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
	}, delays)
	assert.Equal(t, 5, s.Attempt())

	_, ok := s.Next()
	assert.False(t, ok)
}

func TestNextWithinBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for run := 0; run < 100; run++ {
		s, err := New(Config{Base: 10 * time.Millisecond, Max: 300 * time.Millisecond, MaxAttempts: 8}, r)
		require.NoError(t, err)
		for {
			attempt := s.Attempt()
			d, ok := s.Next()
			if !ok {
				break
			}
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, s.Ceiling(attempt))
		}
	}
}
