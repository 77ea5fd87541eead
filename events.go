package mqttv5

import "github.com/srishina/mqttv5.go/internal/packettype"

// EventKind classifies an IncomingEvent
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPubAck
	EventPubRec
	EventPubRel
	EventPubComp
	EventPingResp
	EventSubAck
	EventUnsubAck
	EventPublish
)

var eventKindText = map[EventKind]string{
	EventUnknown:  "unknown",
	EventPubAck:   "PUBACK",
	EventPubRec:   "PUBREC",
	EventPubRel:   "PUBREL",
	EventPubComp:  "PUBCOMP",
	EventPingResp: "PINGRESP",
	EventSubAck:   "SUBACK",
	EventUnsubAck: "UNSUBACK",
	EventPublish:  "PUBLISH",
}

func (k EventKind) String() string {
	return eventKindText[k]
}

// IncomingEvent is a decoded packet handed to the EventCallback. It is only
// valid for the duration of the callback.
type IncomingEvent struct {
	Kind       EventKind
	PacketType packettype.PacketType
	PacketID   uint16
	ReasonCode byte

	// Publish is set for EventPublish
	Publish *Publish

	// SubAckCodes is set for EventSubAck
	SubAckCodes []SubAckReasonCode

	// UnsubAckCodes is set for EventUnsubAck
	UnsubAckCodes []UnsubAckReasonCode

	// NextAck holds the properties of the acknowledgment the engine sends in
	// answer to this packet. It is preset for PUBLISH QoS 1/2, PUBREC and
	// PUBREL and is ignored for every other kind.
	NextAck *PublishResponseProperties
}

// EventCallback is invoked synchronously from ProcessStep, once per decoded
// packet. It must not block.
type EventCallback func(ev *IncomingEvent)
