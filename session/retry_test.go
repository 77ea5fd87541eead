package session

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srishina/mqttv5.go/internal/brokertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maxRand always picks the top of the range
type maxRand struct{}

func (maxRand) Int64N(n int64) int64 { return n - 1 }

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

var testRetryConfig = RetryConfig{
	MaxAttempts: 5,
	BaseBackoff: 500 * time.Millisecond,
	MaxBackoff:  5 * time.Second,
}

func TestRetrierConnectAfterFailures(t *testing.T) {
	d := &brokertest.Dialer{Failures: 2}
	defer d.Close()
	logger, hook := test.NewNullLogger()
	sleeps := &sleepRecorder{}

	r := NewRetrier(d, testRetryConfig, WithRand(maxRand{}), WithSleep(sleeps.sleep), WithRetryLogger(logger))
	conn, err := r.Connect(context.Background(), "localhost", 1883, time.Second, 20*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, conn)

	assert.Equal(t, 3, d.Dials())
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps.delays)

	var warnings []*log.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			warnings = append(warnings, e)
		}
	}
	require.Len(t, warnings, 2)
	assert.Equal(t, 1, warnings[0].Data["attempt"])
	assert.Equal(t, "localhost:1883", warnings[0].Data["endpoint"])
	assert.Equal(t, time.Second, warnings[1].Data["delay"])

	last := hook.LastEntry()
	assert.Equal(t, log.InfoLevel, last.Level)
	assert.Equal(t, 3, last.Data["attempt"])
}

func TestRetrierExhausted(t *testing.T) {
	d := &brokertest.Dialer{Failures: 100}
	sleeps := &sleepRecorder{}
	logger, hook := test.NewNullLogger()

	cfg := testRetryConfig
	cfg.MaxAttempts = 3
	r := NewRetrier(d, cfg, WithRand(maxRand{}), WithSleep(sleeps.sleep), WithRetryLogger(logger))
	_, err := r.Connect(context.Background(), "localhost", 1883, time.Second, time.Second)

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, brokertest.ErrRefused, "the last dial error is kept")
	assert.Equal(t, 4, d.Dials())
	assert.Len(t, sleeps.delays, 3)
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}

func TestRetrierInvalidConfig(t *testing.T) {
	d := &brokertest.Dialer{}
	sleeps := &sleepRecorder{}

	for _, cfg := range []RetryConfig{
		{MaxAttempts: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Second},
		{MaxAttempts: 1, BaseBackoff: time.Second, MaxBackoff: time.Millisecond},
	} {
		r := NewRetrier(d, cfg, WithSleep(sleeps.sleep), WithRetryLogger(log.New()))
		_, err := r.Connect(context.Background(), "localhost", 1883, time.Second, time.Second)
		assert.ErrorIs(t, err, ErrInvalidRetryConfig)
	}
	assert.Zero(t, d.Dials())
	assert.Empty(t, sleeps.delays)
}

func TestRetrierCancelled(t *testing.T) {
	d := &brokertest.Dialer{Failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	sleeps := 0
	sleep := func(ctx context.Context, _ time.Duration) error {
		sleeps++
		cancel()
		return ctx.Err()
	}
	logger, _ := test.NewNullLogger()

	r := NewRetrier(d, testRetryConfig, WithSleep(sleep), WithRetryLogger(logger))
	_, err := r.Connect(ctx, "localhost", 1883, time.Second, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sleeps)
	assert.Equal(t, 1, d.Dials())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Second)
}
