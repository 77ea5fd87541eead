package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/srishina/mqttv5.go/internal/backoff"
	"github.com/srishina/mqttv5.go/transport"
)

var (
	// ErrRetriesExhausted every connection attempt failed, the last dial
	// error is wrapped
	ErrRetriesExhausted = errors.New("connection retries exhausted")
	// ErrInvalidRetryConfig the retry policy cannot be used
	ErrInvalidRetryConfig = errors.New("invalid retry configuration")
)

// RetryConfig the connection retry policy. MaxAttempts counts the retries
// after the first dial.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Rand the jitter source of the backoff, *rand.Rand from math/rand/v2
// satisfies it
type Rand = backoff.Rand

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

type retryOptions struct {
	rand   Rand
	sleep  SleepFunc
	logger log.FieldLogger
}

// RetryOption ...
type RetryOption func(*retryOptions)

// WithRand replaces the jitter source
func WithRand(r Rand) RetryOption {
	return func(o *retryOptions) { o.rand = r }
}

// WithSleep replaces the backoff sleep
func WithSleep(sleep SleepFunc) RetryOption {
	return func(o *retryOptions) { o.sleep = sleep }
}

// WithRetryLogger logs the connection attempts to logger
func WithRetryLogger(logger log.FieldLogger) RetryOption {
	return func(o *retryOptions) { o.logger = logger }
}

// Retrier establishes transport connections, backing off exponentially
// with full jitter between failed attempts
type Retrier struct {
	dialer  transport.Dialer
	cfg     RetryConfig
	options retryOptions
}

// NewRetrier creates a retrier dialing through d. The configuration is
// checked on every Connect.
func NewRetrier(d transport.Dialer, cfg RetryConfig, opts ...RetryOption) *Retrier {
	options := retryOptions{sleep: sleepContext}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = log.StandardLogger()
	}
	return &Retrier{dialer: d, cfg: cfg, options: options}
}

// Connect dials endpoint:port until it succeeds or the retries are used up.
// The returned connection applies sendTimeout and recvTimeout to every write
// and read.
func (r *Retrier) Connect(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (transport.Conn, error) {
	state, err := backoff.New(backoff.Config{
		Base:        r.cfg.BaseBackoff,
		Max:         r.cfg.MaxBackoff,
		MaxAttempts: r.cfg.MaxAttempts,
	}, r.options.rand)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRetryConfig, err)
	}

	logger := r.options.logger.WithField("endpoint", net.JoinHostPort(endpoint, strconv.Itoa(int(port))))
	for {
		attempt := state.Attempt() + 1
		conn, err := r.dialer.Dial(ctx, endpoint, port, sendTimeout, recvTimeout)
		if err == nil {
			logger.WithField("attempt", attempt).Info("Transport connection established")
			return conn, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		delay, ok := state.Next()
		if !ok {
			logger.WithField("attempt", attempt).WithError(err).Error("Connection to the broker failed, all attempts exhausted")
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}
		logger.WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("Connection to the broker failed, retrying")

		if err := r.options.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
