package mqttv5

// Store holds the state of the QoS 1 and 2 publishes in flight, keyed by
// packet identifier
type Store interface {
	Insert(packetID uint16, qos byte, state PublishState) error
	GetByID(packetID uint16) (PublishState, bool)
	Update(packetID uint16, state PublishState) bool
	DeleteByID(packetID uint16) bool
	DeleteAll()
	Len() int
}

// PublishState position of a publish in the QoS 1/2 handshake
type PublishState byte

const (
	PublishStateNone PublishState = iota
	// outgoing QoS 1, PUBLISH sent
	PublishStatePubAckPending
	// outgoing QoS 2, PUBLISH sent
	PublishStatePubRecPending
	// outgoing QoS 2, PUBREL sent
	PublishStatePubCompPending
	// incoming QoS 2, PUBREC sent
	PublishStatePubRelPending
)

var publishStateText = map[PublishState]string{
	PublishStateNone:           "none",
	PublishStatePubAckPending:  "PUBACK pending",
	PublishStatePubRecPending:  "PUBREC pending",
	PublishStatePubCompPending: "PUBCOMP pending",
	PublishStatePubRelPending:  "PUBREL pending",
}

func (s PublishState) String() string {
	return publishStateText[s]
}
