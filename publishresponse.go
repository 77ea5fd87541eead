package mqttv5

import (
	"bytes"
	"fmt"
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
	"github.com/srishina/mqttv5.go/internal/reasoncode"
)

// PublishResponseProperties MQTT PUBACK, PUBREC, PUBREL, PUBCOMP properties
type PublishResponseProperties struct {
	ReasonString string
	UserProperty []UserProperty
}

func (sp *PublishResponseProperties) length() uint32 {
	if sp == nil {
		return 0
	}
	return properties.EncodedSize.FromUTF8String(sp.ReasonString) +
		properties.EncodedSize.FromUserProperties(sp.UserProperty)
}

func (sp *PublishResponseProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromUTF8String(buf, properties.ReasonStringID, sp.ReasonString); err != nil {
		return err
	}
	return properties.Encoder.FromUserProperties(buf, sp.UserProperty)
}

func (sp *PublishResponseProperties) decode(r *bytes.Reader, packetName string) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.ReasonStringID:
			sp.ReasonString, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, sp.ReasonString)
		case properties.UserPropertyID:
			sp.UserProperty, err = properties.Decoder.ToUserProperty(r, sp.UserProperty)
		default:
			return properties.Unexpected(packetName, propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PubAckReasonCode MQTT reason code that indicates the result of PUBLISH
// operation, used by both PUBACK and PUBREC
type PubAckReasonCode byte

const (
	PubAckReasonCodeSuccess               PubAckReasonCode = PubAckReasonCode(reasoncode.Success)
	PubAckReasonCodeNoMatchingSubscribers PubAckReasonCode = PubAckReasonCode(reasoncode.NoMatchingSubscribers)
	PubAckUnspecifiedError                PubAckReasonCode = PubAckReasonCode(reasoncode.UnspecifiedError)
	PubAckImplSpecificError               PubAckReasonCode = PubAckReasonCode(reasoncode.ImplSpecificError)
	PubAckNotAuthorized                   PubAckReasonCode = PubAckReasonCode(reasoncode.NotAuthorized)
	PubAckTopicNameInvalid                PubAckReasonCode = PubAckReasonCode(reasoncode.TopicNameInvalid)
	PubAckPacketIdentifierInUse           PubAckReasonCode = PubAckReasonCode(reasoncode.PacketIdentifierInUse)
	PubAckQuotaExceeded                   PubAckReasonCode = PubAckReasonCode(reasoncode.QuotaExceeded)
	PubAckPayloadFormatInvalid            PubAckReasonCode = PubAckReasonCode(reasoncode.PayloadFormatInvalid)
)

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code PubAckReasonCode) Text() string {
	return reasoncode.ReasonCode(code).Text()
}

// PubRelReasonCode MQTT reason code used by PUBREL and PUBCOMP
type PubRelReasonCode byte

const (
	PubRelReasonCodeSuccess        PubRelReasonCode = PubRelReasonCode(reasoncode.Success)
	PubRelPacketIdentifierNotFound PubRelReasonCode = PubRelReasonCode(reasoncode.PacketIdentifierNotFound)
)

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code PubRelReasonCode) Text() string {
	return reasoncode.ReasonCode(code).Text()
}

// encodePublishResponse writes the shared PUBACK/PUBREC/PUBREL/PUBCOMP layout.
// The reason code and property length are omitted when the code is success
// and there are no properties, MQTT 3.4.2.1
func encodePublishResponse(w io.Writer, byte0 byte, id uint16, code byte, props *PublishResponseProperties) error {
	propertyLen := props.length()
	remainingLength := uint32(2)
	if propertyLen != 0 {
		remainingLength += 1 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)
	} else if code != 0 {
		remainingLength++
	}

	packet, err := newPacketBuffer(byte0, remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeBigEndianUint16(packet, id); err != nil {
		return err
	}

	if remainingLength > 2 {
		packet.WriteByte(code)
		if remainingLength > 3 {
			if err := properties.WriteBlock(packet, propertyLen, props.encode); err != nil {
				return err
			}
		}
	}

	_, err = packet.WriteTo(w)
	return err
}

func decodePublishResponse(r io.Reader, remainingLen uint32, packetName string) (uint16, byte, *PublishResponseProperties, error) {
	var props *PublishResponseProperties
	var code byte

	packetID, err := mqttutil.DecodeBigEndianUint16(r)
	if err != nil {
		return 0, 0, nil, err
	}
	if packetID == 0 {
		return 0, 0, nil, fmt.Errorf("%w: %s with packet identifier 0", ErrProtocol, packetName)
	}

	if remainingLen > 2 {
		if code, err = mqttutil.DecodeByte(r); err != nil {
			return 0, 0, nil, err
		}
		if remainingLen > 3 {
			block, propertyLen, err := properties.ReadBlock(r)
			if err != nil {
				return 0, 0, nil, err
			}
			if propertyLen > 0 {
				props = &PublishResponseProperties{}
				if err := props.decode(block, packetName); err != nil {
					return 0, 0, nil, err
				}
			}
		}
	}

	return packetID, code, props, nil
}

// PubAck MQTT PUBACK packet
type PubAck struct {
	PacketID   uint16
	ReasonCode PubAckReasonCode
	Properties *PublishResponseProperties
}

func (pa *PubAck) encode(w io.Writer) error {
	return encodePublishResponse(w, packettype.PUBACK.Header(0), pa.PacketID, byte(pa.ReasonCode), pa.Properties)
}

func (pa *PubAck) decode(r io.Reader, remainingLen uint32) error {
	id, code, props, err := decodePublishResponse(r, remainingLen, "PUBACK")
	if err != nil {
		return err
	}
	pa.PacketID, pa.ReasonCode, pa.Properties = id, PubAckReasonCode(code), props
	return nil
}

// PubRec MQTT PUBREC packet
type PubRec struct {
	PacketID   uint16
	ReasonCode PubAckReasonCode
	Properties *PublishResponseProperties
}

func (pr *PubRec) encode(w io.Writer) error {
	return encodePublishResponse(w, packettype.PUBREC.Header(0), pr.PacketID, byte(pr.ReasonCode), pr.Properties)
}

func (pr *PubRec) decode(r io.Reader, remainingLen uint32) error {
	id, code, props, err := decodePublishResponse(r, remainingLen, "PUBREC")
	if err != nil {
		return err
	}
	pr.PacketID, pr.ReasonCode, pr.Properties = id, PubAckReasonCode(code), props
	return nil
}

// PubRel MQTT PUBREL packet
type PubRel struct {
	PacketID   uint16
	ReasonCode PubRelReasonCode
	Properties *PublishResponseProperties
}

func (pr *PubRel) encode(w io.Writer) error {
	return encodePublishResponse(w, packettype.PUBREL.Header(0x02), pr.PacketID, byte(pr.ReasonCode), pr.Properties)
}

func (pr *PubRel) decode(r io.Reader, remainingLen uint32) error {
	id, code, props, err := decodePublishResponse(r, remainingLen, "PUBREL")
	if err != nil {
		return err
	}
	pr.PacketID, pr.ReasonCode, pr.Properties = id, PubRelReasonCode(code), props
	return nil
}

// PubComp MQTT PUBCOMP packet
type PubComp struct {
	PacketID   uint16
	ReasonCode PubRelReasonCode
	Properties *PublishResponseProperties
}

func (pc *PubComp) encode(w io.Writer) error {
	return encodePublishResponse(w, packettype.PUBCOMP.Header(0), pc.PacketID, byte(pc.ReasonCode), pc.Properties)
}

func (pc *PubComp) decode(r io.Reader, remainingLen uint32) error {
	id, code, props, err := decodePublishResponse(r, remainingLen, "PUBCOMP")
	if err != nil {
		return err
	}
	pc.PacketID, pc.ReasonCode, pc.Properties = id, PubRelReasonCode(code), props
	return nil
}
