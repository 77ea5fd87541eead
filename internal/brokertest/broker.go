// Package brokertest provides a scripted MQTT v5 server over net.Pipe for
// engine and session tests.
package brokertest

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	mqttv5 "github.com/srishina/mqttv5.go"
	"golang.org/x/sync/errgroup"
)

type options struct {
	connAck    *mqttv5.ConnAck
	silent     bool
	noAcks     bool
	noPingResp bool
	closeAfter int
	pubRec     *mqttv5.PubRec
}

// Option changes how the broker answers
type Option func(*options)

// WithConnAck answers CONNECT with c instead of a plain success
func WithConnAck(c *mqttv5.ConnAck) Option {
	return func(o *options) { o.connAck = c }
}

// Silent records packets but never answers
func Silent() Option {
	return func(o *options) { o.silent = true }
}

// WithoutAcks does not acknowledge PUBLISH packets
func WithoutAcks() Option {
	return func(o *options) { o.noAcks = true }
}

// WithoutPingResp does not answer PINGREQ
func WithoutPingResp() Option {
	return func(o *options) { o.noPingResp = true }
}

// CloseAfter closes the connection once n packets were received
func CloseAfter(n int) Option {
	return func(o *options) { o.closeAfter = n }
}

// WithPubRec answers QoS 2 publishes with a copy of r, the packet id is
// filled in per publish
func WithPubRec(r *mqttv5.PubRec) Option {
	return func(o *options) { o.pubRec = r }
}

// Broker is the server end of one client connection
type Broker struct {
	server net.Conn
	client net.Conn
	opts   options

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	g         *errgroup.Group

	mu       sync.Mutex
	received []mqttv5.Packet
}

// New starts a broker. The client end is returned by ClientConn.
func New(opts ...Option) *Broker {
	b := &Broker{
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&b.opts)
	}
	b.server, b.client = net.Pipe()

	// responses go through their own goroutine, net.Pipe writes block until
	// the client reads and the reader must keep draining the client meanwhile
	b.g = new(errgroup.Group)
	b.g.Go(b.serve)
	b.g.Go(b.write)
	return b
}

// ClientConn the client end of the pipe
func (b *Broker) ClientConn() net.Conn {
	return b.client
}

// Send queues p for delivery to the client
func (b *Broker) Send(p mqttv5.Packet) error {
	var buf bytes.Buffer
	if err := mqttv5.WritePacket(&buf, p); err != nil {
		return err
	}
	b.SendRaw(buf.Bytes())
	return nil
}

// SendRaw queues raw bytes for delivery to the client
func (b *Broker) SendRaw(data []byte) {
	select {
	case b.out <- data:
	case <-b.done:
	}
}

// Received returns the packets received so far
func (b *Broker) Received() []mqttv5.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mqttv5.Packet(nil), b.received...)
}

// WaitFor waits until at least n packets were received or the timeout expires
func (b *Broker) WaitFor(n int, timeout time.Duration) []mqttv5.Packet {
	deadline := time.Now().Add(timeout)
	for {
		received := b.Received()
		if len(received) >= n || time.Now().After(deadline) {
			return received
		}
		time.Sleep(time.Millisecond)
	}
}

// Close stops the broker and closes both ends of the pipe
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.server.Close()
		b.client.Close()
	})
	return b.g.Wait()
}

func (b *Broker) serve() error {
	for {
		p, err := mqttv5.ReadPacket(b.server)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			log.Errorf("brokertest - read error %v", err)
			return err
		}

		b.mu.Lock()
		b.received = append(b.received, p)
		count := len(b.received)
		b.mu.Unlock()

		if b.opts.closeAfter > 0 && count >= b.opts.closeAfter {
			b.server.Close()
			return nil
		}
		if !b.opts.silent {
			b.respond(p)
		}
	}
}

func (b *Broker) respond(p mqttv5.Packet) {
	var err error
	switch pkt := p.(type) {
	case *mqttv5.Connect:
		connAck := b.opts.connAck
		if connAck == nil {
			connAck = &mqttv5.ConnAck{}
		}
		err = b.Send(connAck)
	case *mqttv5.Publish:
		if b.opts.noAcks {
			return
		}
		switch pkt.QoSLevel {
		case 1:
			err = b.Send(&mqttv5.PubAck{PacketID: pkt.PacketID})
		case 2:
			pubRec := &mqttv5.PubRec{}
			if b.opts.pubRec != nil {
				*pubRec = *b.opts.pubRec
			}
			pubRec.PacketID = pkt.PacketID
			err = b.Send(pubRec)
		}
	case *mqttv5.PubRel:
		err = b.Send(&mqttv5.PubComp{PacketID: pkt.PacketID})
	case *mqttv5.Subscribe:
		codes := make([]mqttv5.SubAckReasonCode, len(pkt.Subscriptions))
		for i, s := range pkt.Subscriptions {
			codes[i] = mqttv5.SubAckReasonCode(s.QoSLevel)
		}
		err = b.Send(&mqttv5.SubAck{PacketID: pkt.PacketID, Payload: codes})
	case *mqttv5.Unsubscribe:
		codes := make([]mqttv5.UnsubAckReasonCode, len(pkt.TopicFilters))
		err = b.Send(&mqttv5.UnsubAck{PacketID: pkt.PacketID, Payload: codes})
	default:
		if mqttv5.IsPingRequest(p) && !b.opts.noPingResp {
			err = b.Send(mqttv5.PingResponse())
		}
	}
	if err != nil {
		log.Errorf("brokertest - encode error %v", err)
	}
}

func (b *Broker) write() error {
	for {
		select {
		case <-b.done:
			return nil
		case data := <-b.out:
			if _, err := b.server.Write(data); err != nil {
				// the client went away, nothing left to deliver to
				return nil
			}
		}
	}
}
