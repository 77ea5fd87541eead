// Package transport provides the byte streams the MQTT engine runs over.
// Implementations are responsible for establishing the connection (tcp,
// websocket etc...) and for bounding every read and write by a timeout.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Conn is an established connection to an MQTT server. Reads return an
// error for which IsTimeout reports true when nothing arrived within the
// receive timeout, the connection stays usable afterwards.
type Conn interface {
	io.ReadWriter
	Close() error
}

// Dialer establishes connections. If Dial returns an error the caller may
// retry, the retry interval is decided by the caller.
type Dialer interface {
	Dial(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (Conn, error)
}

// IsTimeout reports whether err is a read or write timeout
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// timedConn applies a fresh deadline before every read and write
type timedConn struct {
	conn        net.Conn
	sendTimeout time.Duration
	recvTimeout time.Duration
}

// NewConn wraps an established net.Conn. A zero timeout disables the deadline
// for that direction.
func NewConn(conn net.Conn, sendTimeout, recvTimeout time.Duration) Conn {
	return &timedConn{conn: conn, sendTimeout: sendTimeout, recvTimeout: recvTimeout}
}

func (t *timedConn) Read(p []byte) (int, error) {
	if t.recvTimeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.recvTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Read(p)
}

func (t *timedConn) Write(p []byte) (int, error) {
	if t.sendTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.sendTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Write(p)
}

func (t *timedConn) Close() error {
	return t.conn.Close()
}
