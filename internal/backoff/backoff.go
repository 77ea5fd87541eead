// Package backoff computes randomized exponential backoff delays with full
// jitter for bounded retry loops.
package backoff

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var ErrInvalidConfig = errors.New("invalid backoff configuration")

// Config bounds a retry sequence
type Config struct {
	// Base delay ceiling of the first retry
	Base time.Duration
	// Max caps the ceiling of every retry
	Max time.Duration
	// MaxAttempts number of retries handed out before Next gives up
	MaxAttempts int
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.Base <= 0 || c.Max <= 0 {
		return fmt.Errorf("%w: base %s and max %s must be positive", ErrInvalidConfig, c.Base, c.Max)
	}
	if c.Base > c.Max {
		return fmt.Errorf("%w: base %s above max %s", ErrInvalidConfig, c.Base, c.Max)
	}
	return nil
}

// Rand is the source of jitter. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// State tracks one retry sequence. It is not safe for concurrent use and
// is meant to be discarded when the sequence ends.
type State struct {
	cfg     Config
	rnd     Rand
	attempt int
}

// New starts a retry sequence. A nil r uses the math/rand/v2 global source.
func New(cfg Config, r Rand) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		r = globalRand{}
	}
	return &State{cfg: cfg, rnd: r}, nil
}

// Attempt number of delays handed out so far
func (s *State) Attempt() int {
	return s.attempt
}

// Ceiling upper bound of the delay for the given attempt,
// min(base * 2^attempt, max)
func (s *State) Ceiling(attempt int) time.Duration {
	ceiling := s.cfg.Base
	for i := 0; i < attempt && ceiling < s.cfg.Max; i++ {
		ceiling *= 2
	}
	return min(ceiling, s.cfg.Max)
}

// Next returns a delay drawn uniformly from [0, Ceiling(attempt)] and moves
// to the next attempt. It returns false once MaxAttempts delays were handed
// out.
func (s *State) Next() (time.Duration, bool) {
	if s.attempt >= s.cfg.MaxAttempts {
		return 0, false
	}
	ceiling := s.Ceiling(s.attempt)
	s.attempt++
	return time.Duration(s.rnd.Int64N(int64(ceiling) + 1)), true
}
