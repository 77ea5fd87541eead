package mqttv5

import (
	"bytes"
	"fmt"
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
)

// PublishProperties MQTT PUBLISH properties
type PublishProperties struct {
	PayloadFormatIndicator  *bool
	MessageExpiryInterval   *uint32
	TopicAlias              *uint16
	ResponseTopic           string
	CorrelationData         []byte
	UserProperty            []UserProperty
	SubscriptionIdentifiers []uint32
	ContentType             string
}

func (pp *PublishProperties) length() uint32 {
	if pp == nil {
		return 0
	}
	propertyLen := uint32(0)
	propertyLen += properties.EncodedSize.FromBool(pp.PayloadFormatIndicator)
	propertyLen += properties.EncodedSize.FromUint32(pp.MessageExpiryInterval)
	propertyLen += properties.EncodedSize.FromUint16(pp.TopicAlias)
	propertyLen += properties.EncodedSize.FromUTF8String(pp.ResponseTopic)
	propertyLen += properties.EncodedSize.FromBinaryData(pp.CorrelationData)
	propertyLen += properties.EncodedSize.FromUserProperties(pp.UserProperty)
	propertyLen += properties.EncodedSize.FromVarUint32Array(pp.SubscriptionIdentifiers)
	propertyLen += properties.EncodedSize.FromUTF8String(pp.ContentType)
	return propertyLen
}

func (pp *PublishProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromBool(
		buf, properties.PayloadFormatIndicatorID, pp.PayloadFormatIndicator); err != nil {
		return err
	}

	if err := properties.Encoder.FromUint32(
		buf, properties.MessageExpiryIntervalID, pp.MessageExpiryInterval); err != nil {
		return err
	}

	if err := properties.Encoder.FromUint16(
		buf, properties.TopicAliasID, pp.TopicAlias); err != nil {
		return err
	}

	if err := properties.Encoder.FromUTF8String(
		buf, properties.ResponseTopicID, pp.ResponseTopic); err != nil {
		return err
	}

	if err := properties.Encoder.FromBinaryData(
		buf, properties.CorrelationDataID, pp.CorrelationData); err != nil {
		return err
	}

	if err := properties.Encoder.FromUserProperties(buf, pp.UserProperty); err != nil {
		return err
	}

	if err := properties.Encoder.FromVarUint32Array(
		buf, properties.SubscriptionIdentifierID, pp.SubscriptionIdentifiers); err != nil {
		return err
	}

	return properties.Encoder.FromUTF8String(buf, properties.ContentTypeID, pp.ContentType)
}

func (pp *PublishProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.PayloadFormatIndicatorID:
			pp.PayloadFormatIndicator, err = properties.DecoderOnlyOnce.ToBool(r, propID, pp.PayloadFormatIndicator)
		case properties.MessageExpiryIntervalID:
			pp.MessageExpiryInterval, err = properties.DecoderOnlyOnce.ToUint32(r, propID, pp.MessageExpiryInterval)
		case properties.TopicAliasID:
			pp.TopicAlias, err = properties.DecoderOnlyOnce.ToUint16(r, propID, pp.TopicAlias)
			if err == nil && *pp.TopicAlias == 0 {
				err = fmt.Errorf("%w: %s must not be 0", ErrProtocol, propID.Text())
			}
		case properties.ResponseTopicID:
			pp.ResponseTopic, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, pp.ResponseTopic)
		case properties.CorrelationDataID:
			pp.CorrelationData, err = properties.DecoderOnlyOnce.ToBinaryData(r, propID, pp.CorrelationData)
		case properties.UserPropertyID:
			pp.UserProperty, err = properties.Decoder.ToUserProperty(r, pp.UserProperty)
		case properties.SubscriptionIdentifierID:
			pp.SubscriptionIdentifiers, err = properties.Decoder.ToSubscriptionIdentifier(r, pp.SubscriptionIdentifiers)
		case properties.ContentTypeID:
			pp.ContentType, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, pp.ContentType)
		default:
			return properties.Unexpected("PUBLISH", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Publish MQTT PUBLISH packet
type Publish struct {
	QoSLevel   byte
	DUPFlag    bool
	Retain     bool
	TopicName  string
	PacketID   uint16
	Properties *PublishProperties
	Payload    []byte
}

// topicAlias returns the topic alias carried in the properties, 0 when absent
func (p *Publish) topicAlias() uint16 {
	if p.Properties == nil || p.Properties.TopicAlias == nil {
		return 0
	}
	return *p.Properties.TopicAlias
}

func (p *Publish) String() string {
	return fmt.Sprintf("Topic: %s QoS: %d Retain: %t Packet ID: %d Payload: %d bytes",
		p.TopicName, p.QoSLevel, p.Retain, p.PacketID, len(p.Payload))
}

func (p *Publish) encode(w io.Writer) error {
	if p.QoSLevel > 2 {
		return fmt.Errorf("%w: PUBLISH with QoS %d", ErrProtocol, p.QoSLevel)
	}

	propertyLen := p.Properties.length()
	remainingLength := propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)
	remainingLength += mqttutil.EncodedUTF8StringSize(p.TopicName) + uint32(len(p.Payload))
	if p.QoSLevel > 0 {
		remainingLength += 2
	}

	byte0 := packettype.PUBLISH.Header(mqttutil.BoolToByte(p.DUPFlag)<<3 | p.QoSLevel<<1 | mqttutil.BoolToByte(p.Retain))
	packet, err := newPacketBuffer(byte0, remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeUTF8String(packet, p.TopicName); err != nil {
		return err
	}

	// A PUBLISH packet MUST NOT contain a Packet Identifier if its QoS value is set to 0 [MQTT-2.2.1-2].
	if p.QoSLevel > 0 {
		if err := mqttutil.EncodeBigEndianUint16(packet, p.PacketID); err != nil {
			return err
		}
	}

	if err := properties.WriteBlock(packet, propertyLen, p.Properties.encode); err != nil {
		return err
	}

	if err := mqttutil.EncodeBinaryDataNoLen(packet, p.Payload); err != nil {
		return err
	}

	_, err = packet.WriteTo(w)
	return err
}

func (p *Publish) decode(r io.Reader, remainingLen uint32) error {
	var err error
	p.TopicName, _, err = mqttutil.DecodeUTF8String(r)
	if err != nil {
		return err
	}

	if p.QoSLevel > 0 {
		p.PacketID, err = mqttutil.DecodeBigEndianUint16(r)
		if err != nil {
			return err
		}
		if p.PacketID == 0 {
			return fmt.Errorf("%w: PUBLISH QoS %d without packet identifier", ErrProtocol, p.QoSLevel)
		}
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		p.Properties = &PublishProperties{}
		if err := p.Properties.decode(block); err != nil {
			return err
		}
	}

	// the payload is whatever is left of the packet
	p.Payload, err = io.ReadAll(r)
	return err
}

func decodePublishHeader(byte0 byte) (byte, bool, bool) {
	return ((byte0 >> 1) & 0x03), (byte0 & 0x08) > 0, (byte0 & 0x01) > 0
}
