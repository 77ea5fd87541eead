package transport

import (
	"context"
	"net"
	"strconv"
	"time"
)

// TCPDialer dials plaintext TCP connections
type TCPDialer struct {
	// Dialer is used as is, its zero value is fine
	Dialer net.Dialer
}

// Dial connect to the MQTT server at endpoint:port
func (t *TCPDialer) Dial(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (Conn, error) {
	conn, err := t.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(endpoint, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}
	return NewConn(conn, sendTimeout, recvTimeout), nil
}
