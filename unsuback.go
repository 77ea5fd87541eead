package mqttv5

import (
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
	"github.com/srishina/mqttv5.go/internal/reasoncode"
)

// UnsubAckReasonCode MQTT reason code that indicates the result of UNSUBSCRIBE operation
type UnsubAckReasonCode byte

const (
	UnsubAckReasonCodeSuccess            UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.Success)
	UnsubAckNoSubscriptionExisted        UnsubAckReasonCode = 0x11
	UnsubAckReasonCodeUnspecifiedError   UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.UnspecifiedError)
	UnsubAckReasonCodeImplSpecificError  UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.ImplSpecificError)
	UnsubAckReasonCodeNotAuthorized      UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.NotAuthorized)
	UnsubAckReasonCodeTopicFilterInvalid UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.TopicFilterInvalid)
	UnsubAckPacketIdentifierInUse        UnsubAckReasonCode = UnsubAckReasonCode(reasoncode.PacketIdentifierInUse)
)

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code UnsubAckReasonCode) Text() string {
	if code == UnsubAckNoSubscriptionExisted {
		return "No subscription existed"
	}
	return reasoncode.ReasonCode(code).Text()
}

// Removed reports whether the server no longer holds the subscription,
// either because it deleted it or because there was none
func (code UnsubAckReasonCode) Removed() bool {
	return !reasoncode.ReasonCode(code).IsFailure()
}

// UnsubAck MQTT UNSUBACK packet
type UnsubAck struct {
	PacketID   uint16
	Properties *PublishResponseProperties
	Payload    []UnsubAckReasonCode
}

// encode encode the UNSUBACK packet
func (us *UnsubAck) encode(w io.Writer) error {
	propertyLen := us.Properties.length()
	// 2 = packet ID
	remainingLength := 2 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen) + uint32(len(us.Payload))

	packet, err := newPacketBuffer(packettype.UNSUBACK.Header(0), remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeBigEndianUint16(packet, us.PacketID); err != nil {
		return err
	}

	if err := properties.WriteBlock(packet, propertyLen, us.Properties.encode); err != nil {
		return err
	}

	for _, code := range us.Payload {
		packet.WriteByte(byte(code))
	}

	_, err = packet.WriteTo(w)
	return err
}

// decode decode the UNSUBACK packet
func (us *UnsubAck) decode(r io.Reader, remainingLen uint32) error {
	var err error
	if us.PacketID, err = mqttutil.DecodeBigEndianUint16(r); err != nil {
		return err
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		us.Properties = &PublishResponseProperties{}
		if err := us.Properties.decode(block, "UNSUBACK"); err != nil {
			return err
		}
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return ErrNoTopicsPresent
	}
	us.Payload = make([]UnsubAckReasonCode, len(payload))
	for i, code := range payload {
		us.Payload[i] = UnsubAckReasonCode(code)
	}
	return nil
}
