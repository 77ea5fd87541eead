package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/reasoncode"
	"github.com/srishina/mqttv5.go/transport"
)

// TimeFunc returns milliseconds from an arbitrary origin. The value wraps
// around after 2^32 ms, callers compare times by unsigned subtraction.
type TimeFunc func() uint32

// engineOptions contains configurable settings for an engine
type engineOptions struct {
	outgoingRecords   int
	incomingRecords   int
	pingRespTimeoutMs uint32
	logger            log.FieldLogger
}

var defaultEngineOptions = engineOptions{
	outgoingRecords:   15,
	incomingRecords:   15,
	pingRespTimeoutMs: 5000,
}

// EngineOption ...
type EngineOption func(*engineOptions) error

// WithPublishRecords capacity of the outgoing and incoming QoS 1/2 record tables
func WithPublishRecords(outgoing, incoming int) EngineOption {
	return func(o *engineOptions) error {
		if outgoing < 0 || incoming < 0 {
			return fmt.Errorf("%w: negative publish record capacity", ErrBadParameter)
		}
		o.outgoingRecords, o.incomingRecords = outgoing, incoming
		return nil
	}
}

// WithPingRespTimeout time allowed for a PINGRESP after a PINGREQ is sent
func WithPingRespTimeout(ms uint32) EngineOption {
	return func(o *engineOptions) error {
		o.pingRespTimeoutMs = ms
		return nil
	}
}

// WithLogger logger used by the engine, logrus standard logger by default
func WithLogger(logger log.FieldLogger) EngineOption {
	return func(o *engineOptions) error {
		o.logger = logger
		return nil
	}
}

type connectionState byte

const (
	notConnected connectionState = iota
	connected
	disconnected
)

// serverLimits the limits a server announced in its CONNACK
type serverLimits struct {
	maxQoS        byte
	topicAliasMax uint16
	retain        bool
}

// Engine is a synchronous MQTT v5 client protocol engine. It owns no
// goroutines: every operation reads and writes the transport on the caller's
// goroutine, and incoming packets are only processed inside ProcessStep and
// Connect. An Engine must not be used concurrently.
type Engine struct {
	rw       io.ReadWriter
	now      TimeFunc
	callback EventCallback
	log      log.FieldLogger

	buf   []byte
	index int

	state  connectionState
	limits serverLimits

	keepAliveMs       uint32
	pingRespTimeoutMs uint32
	lastSent          uint32
	pingPending       bool
	pingSentAt        uint32

	outgoing     Store
	incoming     Store
	pendingAcks  map[uint16]struct{}
	topicAliases map[uint16]string
	pidgen       *mqttutil.PIDGenerator
}

// NewEngine creates an engine that talks over rw. now is the engine's time
// source, cb receives every decoded packet and buf is the network buffer,
// which bounds the size of every packet sent or received.
func NewEngine(rw io.ReadWriter, now TimeFunc, cb EventCallback, buf []byte, opts ...EngineOption) (*Engine, error) {
	if rw == nil || now == nil || cb == nil {
		return nil, fmt.Errorf("%w: transport, time source and callback are required", ErrBadParameter)
	}
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: network buffer of %d bytes", ErrBadParameter, len(buf))
	}

	options := defaultEngineOptions
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	if options.logger == nil {
		options.logger = log.StandardLogger()
	}

	e := &Engine{
		rw:                rw,
		now:               now,
		callback:          cb,
		log:               options.logger,
		buf:               buf,
		pingRespTimeoutMs: options.pingRespTimeoutMs,
		outgoing:          newMemStore(options.outgoingRecords),
		incoming:          newMemStore(options.incomingRecords),
		pendingAcks:       make(map[uint16]struct{}),
		topicAliases:      make(map[uint16]string),
	}
	e.pidgen = mqttutil.NewPIDGenerator(e.packetIDInUse)
	return e, nil
}

// Now returns the current time of the engine's time source
func (e *Engine) Now() uint32 {
	return e.now()
}

// NextPacketID returns a packet identifier that is not held by any packet in
// flight, or 0 when all of them are
func (e *Engine) NextPacketID() uint16 {
	return e.pidgen.NextID()
}

// TopicAliasMaximum the highest topic alias the server accepts, 0 until a
// CONNACK announced one
func (e *Engine) TopicAliasMaximum() uint16 {
	return e.limits.topicAliasMax
}

func (e *Engine) packetIDInUse(id uint16) bool {
	if _, ok := e.outgoing.GetByID(id); ok {
		return true
	}
	_, ok := e.pendingAcks[id]
	return ok
}

// Connect sends CONNECT and waits up to ackTimeoutMs for the CONNACK. will,
// when not nil, replaces info.Will. It reports whether the server resumed an
// existing session.
func (e *Engine) Connect(info *Connect, will *Will, ackTimeoutMs uint32) (bool, error) {
	if info == nil {
		return false, fmt.Errorf("%w: nil CONNECT", ErrBadParameter)
	}
	if e.state == connected {
		return false, fmt.Errorf("%w: already connected", ErrIllegalState)
	}

	connect := *info
	if will != nil {
		connect.Will = will
	}

	e.index = 0
	e.pingPending = false
	clear(e.pendingAcks)
	clear(e.topicAliases)
	if connect.CleanStart {
		e.outgoing.DeleteAll()
		e.incoming.DeleteAll()
	}

	if err := e.send(&connect); err != nil {
		return false, err
	}
	e.log.WithField("client_id", connect.ClientID).Debugf("CONNECT sent: %s", &connect)

	connAck, err := e.waitConnAck(ackTimeoutMs)
	if err != nil {
		return false, err
	}

	if code := connAck.ReasonCode; reasoncode.ReasonCode(code).IsFailure() {
		return false, fmt.Errorf("%w: %w", ErrServerRefused, code)
	}

	e.state = connected
	e.keepAliveMs = uint32(connect.KeepAlive) * 1000
	e.limits = serverLimits{maxQoS: 2, retain: true}
	if props := connAck.Properties; props != nil {
		if props.ServerKeepAlive != nil {
			e.keepAliveMs = uint32(*props.ServerKeepAlive) * 1000
		}
		if props.MaximumQoS != nil {
			e.limits.maxQoS = *props.MaximumQoS
		}
		if props.TopicAliasMaximum != nil {
			e.limits.topicAliasMax = *props.TopicAliasMaximum
		}
		if props.RetainAvailable != nil {
			e.limits.retain = *props.RetainAvailable
		}
	}
	if !connAck.SessionPresent {
		e.outgoing.DeleteAll()
		e.incoming.DeleteAll()
	}

	e.log.Debugf("CONNACK received: %s", connAck)
	return connAck.SessionPresent, nil
}

func (e *Engine) waitConnAck(ackTimeoutMs uint32) (*ConnAck, error) {
	start := e.now()
	for {
		p, err := e.nextPacket()
		if err != nil && !errors.Is(err, ErrNeedMoreData) {
			return nil, err
		}
		if p != nil {
			connAck, ok := p.(*ConnAck)
			if !ok {
				return nil, fmt.Errorf("%w: expected CONNACK, got %T", ErrBadResponse, p)
			}
			return connAck, nil
		}
		if e.now()-start >= ackTimeoutMs {
			return nil, fmt.Errorf("%w: no CONNACK within %d ms", ErrNoDataAvailable, ackTimeoutMs)
		}
	}
}

// Publish sends p with the given packet identifier. QoS 1 and 2 publishes
// are tracked until their handshake completes in ProcessStep.
func (e *Engine) Publish(p *Publish, packetID uint16) error {
	if e.state != connected {
		return fmt.Errorf("%w: not connected", ErrIllegalState)
	}
	if p == nil {
		return fmt.Errorf("%w: nil PUBLISH", ErrBadParameter)
	}
	if p.QoSLevel > 2 {
		return fmt.Errorf("%w: QoS %d", ErrBadParameter, p.QoSLevel)
	}
	if p.QoSLevel > 0 && packetID == 0 {
		return fmt.Errorf("%w: QoS %d publish needs a packet identifier", ErrBadParameter, p.QoSLevel)
	}
	alias := p.topicAlias()
	if err := mqttutil.ValidatePublishTopic(p.TopicName, alias != 0); err != nil {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	if p.QoSLevel > e.limits.maxQoS {
		return fmt.Errorf("%w: QoS %d above server maximum %d", ErrBadParameter, p.QoSLevel, e.limits.maxQoS)
	}
	if alias > e.limits.topicAliasMax {
		return fmt.Errorf("%w: topic alias %d above server maximum %d", ErrBadParameter, alias, e.limits.topicAliasMax)
	}
	if p.Retain && !e.limits.retain {
		return fmt.Errorf("%w: server does not support retain", ErrBadParameter)
	}

	publish := *p
	publish.PacketID = 0
	if publish.QoSLevel > 0 {
		publish.PacketID = packetID
		state := PublishStatePubAckPending
		if publish.QoSLevel == 2 {
			state = PublishStatePubRecPending
		}
		if err := e.outgoing.Insert(packetID, publish.QoSLevel, state); err != nil {
			return err
		}
	}

	if err := e.send(&publish); err != nil {
		if publish.QoSLevel > 0 {
			e.outgoing.DeleteByID(packetID)
		}
		return err
	}
	e.log.WithField("packet_id", packetID).Debugf("PUBLISH sent: %s", &publish)
	return nil
}

// Subscribe sends SUBSCRIBE, the SUBACK is delivered through the callback
func (e *Engine) Subscribe(s *Subscribe, packetID uint16) error {
	if e.state != connected {
		return fmt.Errorf("%w: not connected", ErrIllegalState)
	}
	if s == nil || len(s.Subscriptions) == 0 || packetID == 0 {
		return fmt.Errorf("%w: SUBSCRIBE needs a packet identifier and at least one subscription", ErrBadParameter)
	}
	if e.packetIDInUse(packetID) {
		return fmt.Errorf("%w: %d", ErrStateCollision, packetID)
	}

	subscribe := *s
	subscribe.PacketID = packetID
	if err := e.send(&subscribe); err != nil {
		return err
	}
	e.pendingAcks[packetID] = struct{}{}
	e.log.WithField("packet_id", packetID).Debugf("SUBSCRIBE sent with %d filters", len(s.Subscriptions))
	return nil
}

// Unsubscribe sends UNSUBSCRIBE, the UNSUBACK is delivered through the
// callback
func (e *Engine) Unsubscribe(u *Unsubscribe, packetID uint16) error {
	if e.state != connected {
		return fmt.Errorf("%w: not connected", ErrIllegalState)
	}
	if u == nil || len(u.TopicFilters) == 0 || packetID == 0 {
		return fmt.Errorf("%w: UNSUBSCRIBE needs a packet identifier and at least one topic filter", ErrBadParameter)
	}
	if e.packetIDInUse(packetID) {
		return fmt.Errorf("%w: %d", ErrStateCollision, packetID)
	}

	unsubscribe := *u
	unsubscribe.PacketID = packetID
	if err := e.send(&unsubscribe); err != nil {
		return err
	}
	e.pendingAcks[packetID] = struct{}{}
	e.log.WithField("packet_id", packetID).Debugf("UNSUBSCRIBE sent with %d filters", len(u.TopicFilters))
	return nil
}

// Disconnect sends DISCONNECT and marks the engine disconnected. The
// transport is left open, closing it is up to the owner.
func (e *Engine) Disconnect(d *Disconnect) error {
	if e.state != connected {
		return fmt.Errorf("%w: not connected", ErrIllegalState)
	}
	if d == nil {
		d = &Disconnect{}
	}
	e.state = disconnected
	if err := e.send(d); err != nil {
		return err
	}
	e.log.Debugf("DISCONNECT sent, reason %s", d.ReasonCode.Text())
	return nil
}

// ProcessStep reads from the transport once, handles at most one complete
// packet and runs the keep-alive check. It returns nil when nothing or a
// whole packet was received and ErrNeedMoreData when a packet is only partly
// buffered. Every other error is fatal for the connection.
func (e *Engine) ProcessStep() error {
	if e.state != connected {
		return fmt.Errorf("%w: not connected", ErrIllegalState)
	}

	p, err := e.nextPacket()
	if err != nil && !errors.Is(err, ErrNeedMoreData) {
		return err
	}
	if p != nil {
		if err := e.handlePacket(p); err != nil {
			return err
		}
	}
	if kaErr := e.manageKeepAlive(); kaErr != nil {
		return kaErr
	}
	return err
}

func (e *Engine) manageKeepAlive() error {
	if e.keepAliveMs == 0 {
		return nil
	}
	now := e.now()
	if e.pingPending {
		if now-e.pingSentAt >= e.pingRespTimeoutMs {
			return fmt.Errorf("%w: no PINGRESP within %d ms", ErrKeepAliveTimeout, e.pingRespTimeoutMs)
		}
		return nil
	}
	if now-e.lastSent >= e.keepAliveMs {
		if err := e.send(&pingReq{}); err != nil {
			return err
		}
		e.pingPending = true
		e.pingSentAt = now
		e.log.Debug("PINGREQ sent")
	}
	return nil
}

func (e *Engine) handlePacket(p Packet) error {
	switch pkt := p.(type) {
	case *PubAck:
		if state, _ := e.outgoing.GetByID(pkt.PacketID); state != PublishStatePubAckPending {
			return fmt.Errorf("%w: PUBACK for packet id %d in state %q", ErrBadResponse, pkt.PacketID, state)
		}
		e.outgoing.DeleteByID(pkt.PacketID)
		e.dispatch(&IncomingEvent{Kind: EventPubAck, PacketType: packettype.PUBACK, PacketID: pkt.PacketID, ReasonCode: byte(pkt.ReasonCode)})
		return nil

	case *PubRec:
		return e.handlePubRec(pkt)

	case *PubRel:
		return e.handlePubRel(pkt)

	case *PubComp:
		if state, _ := e.outgoing.GetByID(pkt.PacketID); state != PublishStatePubCompPending {
			return fmt.Errorf("%w: PUBCOMP for packet id %d in state %q", ErrBadResponse, pkt.PacketID, state)
		}
		e.outgoing.DeleteByID(pkt.PacketID)
		e.dispatch(&IncomingEvent{Kind: EventPubComp, PacketType: packettype.PUBCOMP, PacketID: pkt.PacketID, ReasonCode: byte(pkt.ReasonCode)})
		return nil

	case *pingResp:
		if e.pingPending {
			e.pingPending = false
			e.log.Debug("PINGRESP received")
			return nil
		}
		e.dispatch(&IncomingEvent{Kind: EventPingResp, PacketType: packettype.PINGRESP})
		return nil

	case *SubAck:
		delete(e.pendingAcks, pkt.PacketID)
		e.dispatch(&IncomingEvent{Kind: EventSubAck, PacketType: packettype.SUBACK, PacketID: pkt.PacketID, SubAckCodes: pkt.Payload})
		return nil

	case *UnsubAck:
		delete(e.pendingAcks, pkt.PacketID)
		e.dispatch(&IncomingEvent{Kind: EventUnsubAck, PacketType: packettype.UNSUBACK, PacketID: pkt.PacketID, UnsubAckCodes: pkt.Payload})
		return nil

	case *Publish:
		return e.handlePublish(pkt)

	case *Disconnect:
		e.state = disconnected
		return fmt.Errorf("%w: %w", ErrServerDisconnected, pkt.ReasonCode)

	case *opaquePacket:
		e.dispatch(&IncomingEvent{Kind: EventUnknown, PacketType: pkt.packetType})
		return nil
	}
	return fmt.Errorf("%w: unexpected %T from server", ErrBadResponse, p)
}

func (e *Engine) handlePubRec(pkt *PubRec) error {
	state, _ := e.outgoing.GetByID(pkt.PacketID)
	if state != PublishStatePubRecPending && state != PublishStatePubCompPending {
		return fmt.Errorf("%w: PUBREC for packet id %d in state %q", ErrBadResponse, pkt.PacketID, state)
	}

	ev := &IncomingEvent{
		Kind:       EventPubRec,
		PacketType: packettype.PUBREC,
		PacketID:   pkt.PacketID,
		ReasonCode: byte(pkt.ReasonCode),
		NextAck:    &PublishResponseProperties{},
	}
	e.dispatch(ev)

	// a failed PUBREC ends the flow, no PUBREL follows, MQTT 4.3.3
	if reasoncode.ReasonCode(pkt.ReasonCode).IsFailure() {
		e.outgoing.DeleteByID(pkt.PacketID)
		return nil
	}

	e.outgoing.Update(pkt.PacketID, PublishStatePubCompPending)
	return e.send(&PubRel{PacketID: pkt.PacketID, Properties: ev.NextAck})
}

func (e *Engine) handlePubRel(pkt *PubRel) error {
	ev := &IncomingEvent{
		Kind:       EventPubRel,
		PacketType: packettype.PUBREL,
		PacketID:   pkt.PacketID,
		ReasonCode: byte(pkt.ReasonCode),
		NextAck:    &PublishResponseProperties{},
	}
	e.dispatch(ev)

	pubComp := &PubComp{PacketID: pkt.PacketID, Properties: ev.NextAck}
	if !e.incoming.DeleteByID(pkt.PacketID) {
		pubComp.ReasonCode = PubRelPacketIdentifierNotFound
	}
	return e.send(pubComp)
}

func (e *Engine) handlePublish(pkt *Publish) error {
	if alias := pkt.topicAlias(); alias != 0 {
		if pkt.TopicName == "" {
			topic, ok := e.topicAliases[alias]
			if !ok {
				return fmt.Errorf("%w: unknown topic alias %d", ErrBadResponse, alias)
			}
			pkt.TopicName = topic
		} else {
			e.topicAliases[alias] = pkt.TopicName
		}
	} else if pkt.TopicName == "" {
		return fmt.Errorf("%w: PUBLISH without topic name or alias", ErrBadResponse)
	}

	ev := &IncomingEvent{
		Kind:       EventPublish,
		PacketType: packettype.PUBLISH,
		PacketID:   pkt.PacketID,
		Publish:    pkt,
	}

	switch pkt.QoSLevel {
	case 0:
		e.dispatch(ev)
		return nil
	case 1:
		ev.NextAck = &PublishResponseProperties{}
		e.dispatch(ev)
		return e.send(&PubAck{PacketID: pkt.PacketID, Properties: ev.NextAck})
	}

	// QoS 2, a redelivery of a packet not yet released is acknowledged again
	// but not handed to the application twice
	if _, ok := e.incoming.GetByID(pkt.PacketID); ok {
		return e.send(&PubRec{PacketID: pkt.PacketID})
	}
	if err := e.incoming.Insert(pkt.PacketID, pkt.QoSLevel, PublishStatePubRelPending); err != nil {
		return err
	}
	ev.NextAck = &PublishResponseProperties{}
	e.dispatch(ev)
	return e.send(&PubRec{PacketID: pkt.PacketID, Properties: ev.NextAck})
}

func (e *Engine) dispatch(ev *IncomingEvent) {
	e.log.WithField("packet_id", ev.PacketID).Debugf("%s received", ev.PacketType)
	e.callback(ev)
}

// send encodes p and writes it to the transport in a single write
func (e *Engine) send(p Packet) error {
	var packet bytes.Buffer
	if err := p.encode(&packet); err != nil {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	if packet.Len() > len(e.buf) {
		return fmt.Errorf("%w: packet of %d bytes, buffer of %d", ErrNoMemory, packet.Len(), len(e.buf))
	}
	if _, err := e.rw.Write(packet.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	e.lastSent = e.now()
	return nil
}

// nextPacket returns the next complete packet. It reads from the transport
// only when the buffer does not already hold one. A nil packet with a nil
// error means nothing arrived.
func (e *Engine) nextPacket() (Packet, error) {
	p, err := e.splitBuffered()
	if p != nil || (err != nil && !errors.Is(err, ErrNeedMoreData)) {
		return p, err
	}

	if err := e.fill(); err != nil {
		return nil, err
	}
	return e.splitBuffered()
}

func (e *Engine) splitBuffered() (Packet, error) {
	if e.index == 0 {
		return nil, nil
	}

	p, total, err := splitPacket(e.buf[:e.index])
	if errors.Is(err, errIncompletePacket) {
		if total > len(e.buf) {
			return nil, fmt.Errorf("%w: incoming packet of %d bytes, buffer of %d", ErrNoMemory, total, len(e.buf))
		}
		return nil, ErrNeedMoreData
	}
	if total > 0 {
		e.index = copy(e.buf, e.buf[total:e.index])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	return p, nil
}

// fill reads once into the free part of the network buffer. A read timeout
// is not an error, it only means no bytes arrived.
func (e *Engine) fill() error {
	if e.index == len(e.buf) {
		return nil
	}
	n, err := e.rw.Read(e.buf[e.index:])
	e.index += n
	if err != nil && !transport.IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrRecvFailed, err)
	}
	return nil
}

