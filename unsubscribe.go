package mqttv5

import (
	"bytes"
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
)

// UnsubscribeProperties MQTT UNSUBSCRIBE properties
type UnsubscribeProperties struct {
	UserProperty []UserProperty
}

func (up *UnsubscribeProperties) length() uint32 {
	if up == nil {
		return 0
	}
	return properties.EncodedSize.FromUserProperties(up.UserProperty)
}

func (up *UnsubscribeProperties) encode(buf *bytes.Buffer) error {
	return properties.Encoder.FromUserProperties(buf, up.UserProperty)
}

func (up *UnsubscribeProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		if propID != properties.UserPropertyID {
			return properties.Unexpected("UNSUBSCRIBE", propID)
		}
		if up.UserProperty, err = properties.Decoder.ToUserProperty(r, up.UserProperty); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe MQTT UNSUBSCRIBE packet
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters []string
	Properties   *UnsubscribeProperties
}

// encode encode the UNSUBSCRIBE packet
func (us *Unsubscribe) encode(w io.Writer) error {
	if len(us.TopicFilters) == 0 {
		return ErrNoTopicsPresent
	}

	propertyLen := us.Properties.length()
	// 2 = packet ID
	remainingLength := 2 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)
	for _, topicFilter := range us.TopicFilters {
		if err := mqttutil.ValidateSubscribeTopic(topicFilter); err != nil {
			return err
		}
		remainingLength += mqttutil.EncodedUTF8StringSize(topicFilter)
	}

	packet, err := newPacketBuffer(packettype.UNSUBSCRIBE.Header(0x02), remainingLength)
	if err != nil {
		return err
	}

	if err := mqttutil.EncodeBigEndianUint16(packet, us.PacketID); err != nil {
		return err
	}

	if err := properties.WriteBlock(packet, propertyLen, us.Properties.encode); err != nil {
		return err
	}

	for _, topicFilter := range us.TopicFilters {
		if err := mqttutil.EncodeUTF8String(packet, topicFilter); err != nil {
			return err
		}
	}

	_, err = packet.WriteTo(w)
	return err
}

// decode decode the UNSUBSCRIBE packet
func (us *Unsubscribe) decode(r io.Reader, remainingLen uint32) error {
	var err error
	if us.PacketID, err = mqttutil.DecodeBigEndianUint16(r); err != nil {
		return err
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		us.Properties = &UnsubscribeProperties{}
		if err := us.Properties.decode(block); err != nil {
			return err
		}
	}

	remaining := int(remainingLen) - 2 - int(propertyLen+mqttutil.EncodedVarUint32Size(propertyLen))
	for remaining > 0 {
		topicFilter, n, err := mqttutil.DecodeUTF8String(r)
		if err != nil {
			return err
		}
		us.TopicFilters = append(us.TopicFilters, topicFilter)
		remaining -= n
	}

	if len(us.TopicFilters) == 0 {
		return ErrNoTopicsPresent
	}
	return nil
}
