package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
)

var (
	ErrNoTopicsPresent = errors.New("subscription payload MUST contain at least a topic - protocol error")
)

// SubscribeProperties MQTT SUBSCRIBE properties
type SubscribeProperties struct {
	SubscriptionIdentifier *uint32
	UserProperty           []UserProperty
}

func (sp *SubscribeProperties) subscriptionIdentifiers() []uint32 {
	if sp.SubscriptionIdentifier == nil {
		return nil
	}
	return []uint32{*sp.SubscriptionIdentifier}
}

func (sp *SubscribeProperties) length() uint32 {
	if sp == nil {
		return 0
	}
	return properties.EncodedSize.FromVarUint32Array(sp.subscriptionIdentifiers()) +
		properties.EncodedSize.FromUserProperties(sp.UserProperty)
}

func (sp *SubscribeProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromVarUint32Array(
		buf, properties.SubscriptionIdentifierID, sp.subscriptionIdentifiers()); err != nil {
		return err
	}
	return properties.Encoder.FromUserProperties(buf, sp.UserProperty)
}

func (sp *SubscribeProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.SubscriptionIdentifierID:
			if sp.SubscriptionIdentifier != nil {
				return fmt.Errorf("%w: %s must not be included more than once", ErrProtocol, propID.Text())
			}
			var ids []uint32
			if ids, err = properties.Decoder.ToSubscriptionIdentifier(r, nil); err == nil {
				sp.SubscriptionIdentifier = &ids[0]
			}
		case properties.UserPropertyID:
			sp.UserProperty, err = properties.Decoder.ToUserProperty(r, sp.UserProperty)
		default:
			return properties.Unexpected("SUBSCRIBE", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Subscription contains topic filter and subscription options for the MQTT subscribe
type Subscription struct {
	TopicFilter       string
	QoSLevel          byte
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
}

func (s Subscription) options() byte {
	b := s.QoSLevel & 0x03
	if s.NoLocal {
		b |= 0x04
	}
	if s.RetainAsPublished {
		b |= 0x08
	}
	return b | (s.RetainHandling&0x03)<<4
}

// Subscribe MQTT SUBSCRIBE packet
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
	Properties    *SubscribeProperties
}

// encode encode the SUBSCRIBE packet
func (s *Subscribe) encode(w io.Writer) error {
	if len(s.Subscriptions) == 0 {
		return ErrNoTopicsPresent
	}

	propertyLen := s.Properties.length()
	// 2 = packet ID
	remainingLength := 2 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)
	for _, subscription := range s.Subscriptions {
		if err := mqttutil.ValidateSubscribeTopic(subscription.TopicFilter); err != nil {
			return err
		}
		// topic filter and its options byte
		remainingLength += mqttutil.EncodedUTF8StringSize(subscription.TopicFilter) + 1
	}

	packet, err := newPacketBuffer(packettype.SUBSCRIBE.Header(0x02), remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeBigEndianUint16(packet, s.PacketID); err != nil {
		return err
	}

	if err := properties.WriteBlock(packet, propertyLen, s.Properties.encode); err != nil {
		return err
	}

	for _, subscription := range s.Subscriptions {
		if err := mqttutil.EncodeUTF8String(packet, subscription.TopicFilter); err != nil {
			return err
		}
		packet.WriteByte(subscription.options())
	}

	_, err = packet.WriteTo(w)
	return err
}

// decode decode the SUBSCRIBE packet
func (s *Subscribe) decode(r io.Reader, remainingLen uint32) error {
	var err error
	if s.PacketID, err = mqttutil.DecodeBigEndianUint16(r); err != nil {
		return err
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		s.Properties = &SubscribeProperties{}
		if err := s.Properties.decode(block); err != nil {
			return err
		}
	}

	remaining := int(remainingLen) - 2 - int(propertyLen+mqttutil.EncodedVarUint32Size(propertyLen))
	for remaining > 0 {
		topicFilter, nn, err := mqttutil.DecodeUTF8String(r)
		if err != nil {
			return err
		}
		b, err := mqttutil.DecodeByte(r)
		if err != nil {
			return err
		}
		if b&0xC0 != 0 || (b>>4)&0x03 == 3 || b&0x03 == 3 {
			return fmt.Errorf("%w: invalid subscription options 0x%02X", ErrMalformedPacket, b)
		}

		s.Subscriptions = append(s.Subscriptions, Subscription{
			TopicFilter:       topicFilter,
			QoSLevel:          b & 0x03,
			NoLocal:           b&0x04 != 0,
			RetainAsPublished: b&0x08 != 0,
			RetainHandling:    (b >> 4) & 0x03,
		})
		remaining -= nn + 1
	}

	if len(s.Subscriptions) == 0 {
		return ErrNoTopicsPresent
	}
	return nil
}
