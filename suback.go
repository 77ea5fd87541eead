package mqttv5

import (
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
	"github.com/srishina/mqttv5.go/internal/reasoncode"
)

// SubAckReasonCode MQTT reason code that indicates the result of SUBSCRIBE operation
type SubAckReasonCode byte

const (
	SubAckReasonCodeGrantedQoS0             SubAckReasonCode = SubAckReasonCode(reasoncode.Success)
	SubAckReasonCodeGrantedQoS1             SubAckReasonCode = 0x01
	SubAckReasonCodeGrantedQoS2             SubAckReasonCode = 0x02
	SubAckReasonCodeUnspecifiedError        SubAckReasonCode = SubAckReasonCode(reasoncode.UnspecifiedError)
	SubAckReasonCodeImplSpecificError       SubAckReasonCode = SubAckReasonCode(reasoncode.ImplSpecificError)
	SubAckReasonCodeNotAuthorized           SubAckReasonCode = SubAckReasonCode(reasoncode.NotAuthorized)
	SubAckReasonCodeTopicFilterInvalid      SubAckReasonCode = SubAckReasonCode(reasoncode.TopicFilterInvalid)
	SubAckPacketIdentifierInUse             SubAckReasonCode = SubAckReasonCode(reasoncode.PacketIdentifierInUse)
	SubAckQuotaExceeded                     SubAckReasonCode = SubAckReasonCode(reasoncode.QuotaExceeded)
	SubAckSharedSubscriptionsNotSupported   SubAckReasonCode = SubAckReasonCode(reasoncode.SharedSubscriptionsNotSupported)
	SubAckSubscriptionIdsNotSupported       SubAckReasonCode = SubAckReasonCode(reasoncode.SubscriptionIdsNotSupported)
	SubAckWildcardSubscriptionsNotSupported SubAckReasonCode = SubAckReasonCode(reasoncode.WildcardSubscriptionsNotSupported)
)

var subAckReasonCodeText = map[SubAckReasonCode]string{
	SubAckReasonCodeGrantedQoS0: "Granted QoS 0",
	SubAckReasonCodeGrantedQoS1: "Granted QoS 1",
	SubAckReasonCodeGrantedQoS2: "Granted QoS 2",
}

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code SubAckReasonCode) Text() string {
	if text, ok := subAckReasonCodeText[code]; ok {
		return text
	}
	return reasoncode.ReasonCode(code).Text()
}

// Granted reports whether the subscription was accepted
func (code SubAckReasonCode) Granted() bool {
	return !reasoncode.ReasonCode(code).IsFailure()
}

// SubAck MQTT SUBACK packet
type SubAck struct {
	PacketID   uint16
	Properties *PublishResponseProperties
	Payload    []SubAckReasonCode
}

// encode encode the SUBACK packet
func (s *SubAck) encode(w io.Writer) error {
	propertyLen := s.Properties.length()
	// 2 = packet ID
	remainingLength := 2 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen) + uint32(len(s.Payload))

	packet, err := newPacketBuffer(packettype.SUBACK.Header(0), remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeBigEndianUint16(packet, s.PacketID); err != nil {
		return err
	}

	if err := properties.WriteBlock(packet, propertyLen, s.Properties.encode); err != nil {
		return err
	}

	for _, code := range s.Payload {
		packet.WriteByte(byte(code))
	}

	_, err = packet.WriteTo(w)
	return err
}

// decode decode the SUBACK packet
func (s *SubAck) decode(r io.Reader, remainingLen uint32) error {
	var err error
	if s.PacketID, err = mqttutil.DecodeBigEndianUint16(r); err != nil {
		return err
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		s.Properties = &PublishResponseProperties{}
		if err := s.Properties.decode(block, "SUBACK"); err != nil {
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
	s.Payload = make([]SubAckReasonCode, len(payload))
	for i, code := range payload {
		s.Payload[i] = SubAckReasonCode(code)
	}
	return nil
}
