package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
)

var (
	ErrInvalidProtocolName = errors.New("invalid protocol name")
	ErrInvalidConnectFlags = errors.New("invalid connect flags - Malformed packet")
	ErrInvalidWillQos      = errors.New("invalid QoS - Malformed packet")
	ErrInvalidWillRetain   = errors.New("invalid retain flag - Malformed packet")
)

var protocolName = []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}

// UserProperty a user defined name/value pair carried in the properties
// of most MQTT v5 packets
type UserProperty = properties.UserProperty

// ConnectProperties MQTT CONNECT properties
type ConnectProperties struct {
	SessionExpiryInterval *uint32
	ReceiveMaximum        *uint16
	MaximumPacketSize     *uint32
	TopicAliasMaximum     *uint16
	RequestResponseInfo   *bool
	RequestProblemInfo    *bool
	UserProperty          []UserProperty
	AuthenticationMethod  string
	AuthenticationData    []byte
}

func (cp *ConnectProperties) String() string {
	var fields []string
	if cp.SessionExpiryInterval != nil {
		fields = append(fields, fmt.Sprintf("Session expiry interval: %d", *cp.SessionExpiryInterval))
	}
	if cp.ReceiveMaximum != nil {
		fields = append(fields, fmt.Sprintf("Receive maximum: %d", *cp.ReceiveMaximum))
	}
	if cp.MaximumPacketSize != nil {
		fields = append(fields, fmt.Sprintf("Maximum packet size: %d", *cp.MaximumPacketSize))
	}
	if cp.TopicAliasMaximum != nil {
		fields = append(fields, fmt.Sprintf("Topic alias max: %d", *cp.TopicAliasMaximum))
	}
	if len(cp.AuthenticationMethod) > 0 {
		fields = append(fields, fmt.Sprintf("Authentication method: %s", cp.AuthenticationMethod))
	}
	if len(cp.AuthenticationData) > 0 {
		fields = append(fields, "Authentication data: ****")
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

func (cp *ConnectProperties) length() uint32 {
	if cp == nil {
		return 0
	}
	propertyLen := uint32(0)
	propertyLen += properties.EncodedSize.FromUint32(cp.SessionExpiryInterval)
	propertyLen += properties.EncodedSize.FromUint16(cp.ReceiveMaximum)
	propertyLen += properties.EncodedSize.FromUint32(cp.MaximumPacketSize)
	propertyLen += properties.EncodedSize.FromUint16(cp.TopicAliasMaximum)
	propertyLen += properties.EncodedSize.FromBool(cp.RequestResponseInfo)
	propertyLen += properties.EncodedSize.FromBool(cp.RequestProblemInfo)
	propertyLen += properties.EncodedSize.FromUserProperties(cp.UserProperty)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.AuthenticationMethod)
	propertyLen += properties.EncodedSize.FromBinaryData(cp.AuthenticationData)
	return propertyLen
}

func (cp *ConnectProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromUint32(buf, properties.SessionExpiryIntervalID, cp.SessionExpiryInterval); err != nil {
		return err
	}
	if err := properties.Encoder.FromUint16(buf, properties.ReceiveMaximumID, cp.ReceiveMaximum); err != nil {
		return err
	}
	if err := properties.Encoder.FromUint32(buf, properties.MaximumPacketSizeID, cp.MaximumPacketSize); err != nil {
		return err
	}
	if err := properties.Encoder.FromUint16(buf, properties.TopicAliasMaximumID, cp.TopicAliasMaximum); err != nil {
		return err
	}
	if err := properties.Encoder.FromBool(buf, properties.RequestResponseInfoID, cp.RequestResponseInfo); err != nil {
		return err
	}
	if err := properties.Encoder.FromBool(buf, properties.RequestProblemInfoID, cp.RequestProblemInfo); err != nil {
		return err
	}
	if err := properties.Encoder.FromUserProperties(buf, cp.UserProperty); err != nil {
		return err
	}
	if err := properties.Encoder.FromUTF8String(buf, properties.AuthenticationMethodID, cp.AuthenticationMethod); err != nil {
		return err
	}
	return properties.Encoder.FromBinaryData(buf, properties.AuthenticationDataID, cp.AuthenticationData)
}

func (cp *ConnectProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.SessionExpiryIntervalID:
			cp.SessionExpiryInterval, err = properties.DecoderOnlyOnce.ToUint32(r, propID, cp.SessionExpiryInterval)
		case properties.ReceiveMaximumID:
			cp.ReceiveMaximum, err = properties.DecoderOnlyOnce.ToUint16(r, propID, cp.ReceiveMaximum)
			if err == nil && *cp.ReceiveMaximum == 0 {
				err = fmt.Errorf("%w: %s must not be 0", ErrProtocol, propID.Text())
			}
		case properties.MaximumPacketSizeID:
			cp.MaximumPacketSize, err = properties.DecoderOnlyOnce.ToUint32(r, propID, cp.MaximumPacketSize)
			if err == nil && *cp.MaximumPacketSize == 0 {
				err = fmt.Errorf("%w: %s must not be 0", ErrProtocol, propID.Text())
			}
		case properties.TopicAliasMaximumID:
			cp.TopicAliasMaximum, err = properties.DecoderOnlyOnce.ToUint16(r, propID, cp.TopicAliasMaximum)
		case properties.RequestResponseInfoID:
			cp.RequestResponseInfo, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.RequestResponseInfo)
		case properties.RequestProblemInfoID:
			cp.RequestProblemInfo, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.RequestProblemInfo)
		case properties.UserPropertyID:
			cp.UserProperty, err = properties.Decoder.ToUserProperty(r, cp.UserProperty)
		case properties.AuthenticationMethodID:
			cp.AuthenticationMethod, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.AuthenticationMethod)
		case properties.AuthenticationDataID:
			cp.AuthenticationData, err = properties.DecoderOnlyOnce.ToBinaryData(r, propID, cp.AuthenticationData)
		default:
			return properties.Unexpected("CONNECT", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WillProperties will properties in CONNECT packet
type WillProperties struct {
	WillDelayInterval      *uint32
	PayloadFormatIndicator *bool
	MessageExpiryInterval  *uint32
	ContentType            string
	ResponseTopic          string
	CorrelationData        []byte
	UserProperty           []UserProperty
}

func (wp *WillProperties) length() uint32 {
	if wp == nil {
		return 0
	}
	propertyLen := uint32(0)
	propertyLen += properties.EncodedSize.FromUint32(wp.WillDelayInterval)
	propertyLen += properties.EncodedSize.FromBool(wp.PayloadFormatIndicator)
	propertyLen += properties.EncodedSize.FromUint32(wp.MessageExpiryInterval)
	propertyLen += properties.EncodedSize.FromUTF8String(wp.ContentType)
	propertyLen += properties.EncodedSize.FromUTF8String(wp.ResponseTopic)
	propertyLen += properties.EncodedSize.FromBinaryData(wp.CorrelationData)
	propertyLen += properties.EncodedSize.FromUserProperties(wp.UserProperty)
	return propertyLen
}

func (wp *WillProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromUint32(buf, properties.WillDelayIntervalID, wp.WillDelayInterval); err != nil {
		return err
	}
	if err := properties.Encoder.FromBool(buf, properties.PayloadFormatIndicatorID, wp.PayloadFormatIndicator); err != nil {
		return err
	}
	if err := properties.Encoder.FromUint32(buf, properties.MessageExpiryIntervalID, wp.MessageExpiryInterval); err != nil {
		return err
	}
	if err := properties.Encoder.FromUTF8String(buf, properties.ContentTypeID, wp.ContentType); err != nil {
		return err
	}
	if err := properties.Encoder.FromUTF8String(buf, properties.ResponseTopicID, wp.ResponseTopic); err != nil {
		return err
	}
	if err := properties.Encoder.FromBinaryData(buf, properties.CorrelationDataID, wp.CorrelationData); err != nil {
		return err
	}
	return properties.Encoder.FromUserProperties(buf, wp.UserProperty)
}

func (wp *WillProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.WillDelayIntervalID:
			wp.WillDelayInterval, err = properties.DecoderOnlyOnce.ToUint32(r, propID, wp.WillDelayInterval)
		case properties.PayloadFormatIndicatorID:
			wp.PayloadFormatIndicator, err = properties.DecoderOnlyOnce.ToBool(r, propID, wp.PayloadFormatIndicator)
		case properties.MessageExpiryIntervalID:
			wp.MessageExpiryInterval, err = properties.DecoderOnlyOnce.ToUint32(r, propID, wp.MessageExpiryInterval)
		case properties.ContentTypeID:
			wp.ContentType, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, wp.ContentType)
		case properties.ResponseTopicID:
			wp.ResponseTopic, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, wp.ResponseTopic)
		case properties.CorrelationDataID:
			wp.CorrelationData, err = properties.DecoderOnlyOnce.ToBinaryData(r, propID, wp.CorrelationData)
		case properties.UserPropertyID:
			wp.UserProperty, err = properties.Decoder.ToUserProperty(r, wp.UserProperty)
		default:
			return properties.Unexpected("CONNECT will", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Will the last will message the server publishes when the network
// connection is closed without a DISCONNECT, MQTT 3.1.2.5
type Will struct {
	QoSLevel   byte
	Retain     bool
	Topic      string
	Payload    []byte
	Properties *WillProperties
}

// Connect MQTT CONNECT packet
type Connect struct {
	CleanStart bool
	KeepAlive  uint16
	Properties *ConnectProperties
	ClientID   string
	Will       *Will
	UserName   string
	Password   []byte
}

func (c *Connect) String() string {
	fields := fmt.Sprintf("Client ID: %s Clean start: %t Keep alive: %d Properties: %s",
		c.ClientID, c.CleanStart, c.KeepAlive, c.Properties)

	if c.Will != nil {
		fields += fmt.Sprintf(", Will topic: %s Will QoS: %d Will retain: %t",
			c.Will.Topic, c.Will.QoSLevel, c.Will.Retain)
	}
	if len(c.UserName) > 0 {
		fields += fmt.Sprintf(", User name: %s", c.UserName)
	}
	if len(c.Password) > 0 {
		fields += ", Password: ***"
	}
	return fields
}

func (c *Connect) connectFlags() byte {
	connectFlags := byte(0)
	if c.CleanStart {
		connectFlags |= 0x02
	}
	if c.Will != nil {
		connectFlags |= 0x04 | c.Will.QoSLevel<<3
		if c.Will.Retain {
			connectFlags |= 0x20
		}
	}
	if len(c.Password) > 0 {
		connectFlags |= 0x40
	}
	if len(c.UserName) > 0 {
		connectFlags |= 0x80
	}
	return connectFlags
}

// encode encode the Connect packet and perform protocol validation
func (c *Connect) encode(w io.Writer) error {
	if c.Will != nil {
		if c.Will.QoSLevel > 2 {
			return ErrInvalidWillQos
		}
		if err := mqttutil.ValidatePublishTopic(c.Will.Topic, false); err != nil {
			return fmt.Errorf("will topic: %w", err)
		}
	}

	propertyLen := c.Properties.length()

	// 10 = protocol name + version + flags + keep alive
	remainingLength := 10 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen) + mqttutil.EncodedUTF8StringSize(c.ClientID)

	var willPropertyLen uint32
	if c.Will != nil {
		willPropertyLen = c.Will.Properties.length()
		remainingLength += willPropertyLen + mqttutil.EncodedVarUint32Size(willPropertyLen)
		remainingLength += mqttutil.EncodedUTF8StringSize(c.Will.Topic) + uint32(2+len(c.Will.Payload))
	}
	if len(c.UserName) > 0 {
		remainingLength += mqttutil.EncodedUTF8StringSize(c.UserName)
	}
	if len(c.Password) > 0 {
		remainingLength += uint32(2 + len(c.Password))
	}

	packet, err := newPacketBuffer(packettype.CONNECT.Header(0), remainingLength)
	if err != nil {
		return err
	}

	packet.Write(protocolName)
	packet.WriteByte(PROTOCOLVERSIONv5)
	packet.WriteByte(c.connectFlags())

	if err := mqttutil.EncodeBigEndianUint16(packet, c.KeepAlive); err != nil {
		return err
	}

	if err := properties.WriteBlock(packet, propertyLen, c.Properties.encode); err != nil {
		return err
	}

	if err := mqttutil.EncodeUTF8String(packet, c.ClientID); err != nil {
		return err
	}

	if c.Will != nil {
		if err := properties.WriteBlock(packet, willPropertyLen, c.Will.Properties.encode); err != nil {
			return err
		}
		if err := mqttutil.EncodeUTF8String(packet, c.Will.Topic); err != nil {
			return err
		}
		if err := mqttutil.EncodeBinaryData(packet, c.Will.Payload); err != nil {
			return err
		}
	}

	if len(c.UserName) > 0 {
		if err := mqttutil.EncodeUTF8String(packet, c.UserName); err != nil {
			return err
		}
	}

	if len(c.Password) > 0 {
		if err := mqttutil.EncodeBinaryData(packet, c.Password); err != nil {
			return err
		}
	}

	_, err = packet.WriteTo(w)
	return err
}

func (c *Connect) decode(r io.Reader, remainingLen uint32) error {
	var pname [6]byte
	if _, err := io.ReadFull(r, pname[:]); err != nil {
		return err
	}
	if !bytes.Equal(pname[:], protocolName) {
		return ErrInvalidProtocolName
	}

	version, err := mqttutil.DecodeByte(r)
	if err != nil {
		return err
	}
	if version != PROTOCOLVERSIONv5 {
		return fmt.Errorf("%w: unsupported protocol version %d", ErrProtocol, version)
	}

	connectFlag, err := mqttutil.DecodeByte(r)
	if err != nil {
		return err
	}
	if err := validateConnectFlag(connectFlag); err != nil {
		return err
	}
	c.CleanStart = (connectFlag & 0x02) > 0

	if c.KeepAlive, err = mqttutil.DecodeBigEndianUint16(r); err != nil {
		return err
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		c.Properties = &ConnectProperties{}
		if err := c.Properties.decode(block); err != nil {
			return err
		}
	}

	if c.ClientID, _, err = mqttutil.DecodeUTF8String(r); err != nil {
		return err
	}

	if (connectFlag & 0x04) > 0 {
		c.Will = &Will{
			QoSLevel: 0x03 & (connectFlag >> 3),
			Retain:   (connectFlag & 0x20) > 0,
		}
		block, willPropertyLen, err := properties.ReadBlock(r)
		if err != nil {
			return err
		}
		if willPropertyLen > 0 {
			c.Will.Properties = &WillProperties{}
			if err := c.Will.Properties.decode(block); err != nil {
				return err
			}
		}
		if c.Will.Topic, _, err = mqttutil.DecodeUTF8String(r); err != nil {
			return err
		}
		if c.Will.Payload, _, err = mqttutil.DecodeBinaryData(r); err != nil {
			return err
		}
	}

	if (connectFlag & 0x80) > 0 {
		if c.UserName, _, err = mqttutil.DecodeUTF8String(r); err != nil {
			return err
		}
	}

	if (connectFlag & 0x40) > 0 {
		if c.Password, _, err = mqttutil.DecodeBinaryData(r); err != nil {
			return err
		}
	}

	return nil
}

func validateConnectFlag(connectFlag byte) error {
	if connectFlag&0x01 != 0 {
		return ErrInvalidConnectFlags
	}

	willFlag := (connectFlag & 0x04) > 0
	willQoS := 0x03 & (connectFlag >> 3)
	willRetain := (connectFlag & 0x20) > 0

	// 3.1.2.6
	if (willFlag && willQoS > 2) || (!willFlag && willQoS != 0) {
		return ErrInvalidWillQos
	}

	// 3.1.2.7
	if !willFlag && willRetain {
		return ErrInvalidWillRetain
	}

	return nil
}
