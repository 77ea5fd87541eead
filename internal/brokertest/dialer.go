package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srishina/mqttv5.go/transport"
)

// ErrRefused the error returned for scripted dial failures
var ErrRefused = errors.New("brokertest: connection refused")

// Dialer hands out a new Broker for every successful dial. Options are picked
// per connection, so probes on separate connections can be scripted apart.
type Dialer struct {
	// Failures number of dials that fail before the first success
	Failures int
	// Options returns the broker options for the n-th connection, counted
	// from 0. Nil means default answers.
	Options func(n int) []Option

	mu      sync.Mutex
	dials   int
	brokers []*Broker
}

// Dial implements transport.Dialer
func (d *Dialer) Dial(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.Failures > 0 {
		d.Failures--
		return nil, fmt.Errorf("%w: %s:%d", ErrRefused, endpoint, port)
	}

	var opts []Option
	if d.Options != nil {
		opts = d.Options(len(d.brokers))
	}
	b := New(opts...)
	d.brokers = append(d.brokers, b)
	return transport.NewConn(b.ClientConn(), sendTimeout, recvTimeout), nil
}

// Dials number of Dial calls so far, failed ones included
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Brokers the brokers created so far, one per successful dial
func (d *Dialer) Brokers() []*Broker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Broker(nil), d.brokers...)
}

// Close closes every broker and returns the first error
func (d *Dialer) Close() error {
	var first error
	for _, b := range d.Brokers() {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
