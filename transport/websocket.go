package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer dials MQTT over websocket connections
type WebsocketDialer struct {
	// Path of the websocket endpoint, "/mqtt" when empty
	Path             string
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config
}

// Dial connect to the MQTT server at ws://endpoint:port/path
func (w *WebsocketDialer) Dial(ctx context.Context, endpoint string, port uint16, sendTimeout, recvTimeout time.Duration) (Conn, error) {
	path := w.Path
	if path == "" {
		path = "/mqtt"
	}
	scheme := "ws"
	if w.TLSConfig != nil {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(endpoint, strconv.Itoa(int(port))), Path: path}

	handshakeTimeout := w.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  handshakeTimeout,
		EnableCompression: false,
		TLSClientConfig:   w.TLSConfig,
		Subprotocols:      []string{"mqtt"},
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, err
	}
	return newWebsocketConn(ws, sendTimeout, recvTimeout), nil
}

// websocketConn turns websocket binary messages into a byte stream. A
// gorilla connection is unusable after a read deadline expires, so a reader
// goroutine owns all reads and Read only waits on it with a timer.
type websocketConn struct {
	ws          *websocket.Conn
	sendTimeout time.Duration
	recvTimeout time.Duration

	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	readErr error
	pending []byte
}

func newWebsocketConn(ws *websocket.Conn, sendTimeout, recvTimeout time.Duration) *websocketConn {
	c := &websocketConn{
		ws:          ws,
		sendTimeout: sendTimeout,
		recvTimeout: recvTimeout,
		frames:      make(chan []byte, 16),
		closed:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *websocketConn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.frames <- data:
		case <-c.closed:
			return
		}
	}
}

func (c *websocketConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		var timeout <-chan time.Time
		if c.recvTimeout > 0 {
			timer := time.NewTimer(c.recvTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case data, ok := <-c.frames:
			if !ok {
				if c.readErr != nil {
					return 0, c.readErr
				}
				return 0, io.EOF
			}
			c.pending = data
		case <-timeout:
			return 0, os.ErrDeadlineExceeded
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *websocketConn) Write(p []byte) (int, error) {
	if c.sendTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
			return 0, err
		}
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *websocketConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}
