package mqttv5

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/srishina/mqttv5.go/internal/properties"
	"github.com/srishina/mqttv5.go/internal/reasoncode"
)

// ConnAckReasonCode MQTT reason code that indicates the result of an CONNECT operation
type ConnAckReasonCode byte

const (
	ConnAckReasonCodeSuccess                ConnAckReasonCode = ConnAckReasonCode(reasoncode.Success)
	ConnAckReasonCodeUnspecifiedError       ConnAckReasonCode = ConnAckReasonCode(reasoncode.UnspecifiedError)
	ConnAckReasonCodeMalformedPacket        ConnAckReasonCode = ConnAckReasonCode(reasoncode.MalformedPacket)
	ConnAckReasonCodeProtocolError          ConnAckReasonCode = ConnAckReasonCode(reasoncode.ProtocolError)
	ConnAckReasonCodeImplSpecificError      ConnAckReasonCode = ConnAckReasonCode(reasoncode.ImplSpecificError)
	ConnAckReasonCodeUnsupportedProtocolVer ConnAckReasonCode = 0x84
	ConnAckReasonCodeClientIDNotValid       ConnAckReasonCode = 0x85
	ConnAckReasonCodeBadUsernameOrPWD       ConnAckReasonCode = 0x86
	ConnAckReasonCodeNotAuthorized          ConnAckReasonCode = ConnAckReasonCode(reasoncode.NotAuthorized)
	ConnAckReasonCodeServerUnavailable      ConnAckReasonCode = 0x88
	ConnAckReasonCodeServerBusy             ConnAckReasonCode = ConnAckReasonCode(reasoncode.ServerBusy)
	ConnAckReasonCodeBanned                 ConnAckReasonCode = 0x8A
	ConnAckReasonCodeBadAuthMethod          ConnAckReasonCode = ConnAckReasonCode(reasoncode.BadAuthMethod)
	ConnAckReasonCodeTopicNameInvalid       ConnAckReasonCode = ConnAckReasonCode(reasoncode.TopicNameInvalid)
	ConnAckReasonCodePacketTooLarge         ConnAckReasonCode = ConnAckReasonCode(reasoncode.PacketTooLarge)
	ConnAckReasonCodeQuotaExceeded          ConnAckReasonCode = ConnAckReasonCode(reasoncode.QuotaExceeded)
	ConnAckReasonCodePayloadFormatInvalid   ConnAckReasonCode = ConnAckReasonCode(reasoncode.PayloadFormatInvalid)
	ConnAckReasonCodeRetainNotSupported     ConnAckReasonCode = ConnAckReasonCode(reasoncode.RetainNotSupported)
	ConnAckReasonCodeQoSNotSupported        ConnAckReasonCode = ConnAckReasonCode(reasoncode.QoSNotSupported)
	ConnAckReasonCodeUseAnotherServer       ConnAckReasonCode = ConnAckReasonCode(reasoncode.UseAnotherServer)
	ConnAckReasonCodeServerMoved            ConnAckReasonCode = ConnAckReasonCode(reasoncode.ServerMoved)
	ConnAckReasonCodeConnectionRateExceeded ConnAckReasonCode = ConnAckReasonCode(reasoncode.ConnectionRateExceeded)
)

var connAckReasonCodeText = map[ConnAckReasonCode]string{
	ConnAckReasonCodeSuccess:                reasoncode.Success.Text(),
	ConnAckReasonCodeUnspecifiedError:       reasoncode.UnspecifiedError.Text(),
	ConnAckReasonCodeMalformedPacket:        reasoncode.MalformedPacket.Text(),
	ConnAckReasonCodeProtocolError:          reasoncode.ProtocolError.Text(),
	ConnAckReasonCodeImplSpecificError:      reasoncode.ImplSpecificError.Text(),
	ConnAckReasonCodeUnsupportedProtocolVer: "Unsupported Protocol Version",
	ConnAckReasonCodeClientIDNotValid:       "Client Identifier not valid",
	ConnAckReasonCodeBadUsernameOrPWD:       "Bad User Name or Password",
	ConnAckReasonCodeNotAuthorized:          reasoncode.NotAuthorized.Text(),
	ConnAckReasonCodeServerUnavailable:      "Server unavailable",
	ConnAckReasonCodeServerBusy:             reasoncode.ServerBusy.Text(),
	ConnAckReasonCodeBanned:                 "Banned",
	ConnAckReasonCodeBadAuthMethod:          reasoncode.BadAuthMethod.Text(),
	ConnAckReasonCodeTopicNameInvalid:       reasoncode.TopicNameInvalid.Text(),
	ConnAckReasonCodePacketTooLarge:         reasoncode.PacketTooLarge.Text(),
	ConnAckReasonCodeQuotaExceeded:          reasoncode.QuotaExceeded.Text(),
	ConnAckReasonCodePayloadFormatInvalid:   reasoncode.PayloadFormatInvalid.Text(),
	ConnAckReasonCodeRetainNotSupported:     reasoncode.RetainNotSupported.Text(),
	ConnAckReasonCodeQoSNotSupported:        reasoncode.QoSNotSupported.Text(),
	ConnAckReasonCodeUseAnotherServer:       reasoncode.UseAnotherServer.Text(),
	ConnAckReasonCodeServerMoved:            reasoncode.ServerMoved.Text(),
	ConnAckReasonCodeConnectionRateExceeded: reasoncode.ConnectionRateExceeded.Text(),
}

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code ConnAckReasonCode) Text() string {
	return connAckReasonCodeText[code]
}

// Error makes a refused connection usable with errors.As
func (code ConnAckReasonCode) Error() string {
	if text := code.Text(); text != "" {
		return fmt.Sprintf("connack 0x%02X: %s", byte(code), text)
	}
	return fmt.Sprintf("connack 0x%02X", byte(code))
}

// ConnAckProperties MQTT CONNACK properties
type ConnAckProperties struct {
	SessionExpiryInterval           *uint32
	ReceiveMaximum                  *uint16
	MaximumQoS                      *byte
	RetainAvailable                 *bool
	MaximumPacketSize               *uint32
	AssignedClientIdentifier        string
	TopicAliasMaximum               *uint16
	ReasonString                    string
	UserProperty                    []UserProperty
	WildcardSubscriptionAvailable   *bool
	SubscriptionIdentifierAvailable *bool
	SharedSubscriptionAvailable     *bool
	ServerKeepAlive                 *uint16
	ResponseInformation             string
	ServerReference                 string
	AuthenticationMethod            string
	AuthenticationData              []byte
}

func (cp *ConnAckProperties) String() string {
	var fields []string
	if cp.SessionExpiryInterval != nil {
		fields = append(fields, fmt.Sprintf("Session expiry interval: %d", *cp.SessionExpiryInterval))
	}
	if cp.ReceiveMaximum != nil {
		fields = append(fields, fmt.Sprintf("Receive maximum: %d", *cp.ReceiveMaximum))
	}
	if cp.MaximumQoS != nil {
		fields = append(fields, fmt.Sprintf("Maximum QoS: %d", *cp.MaximumQoS))
	}
	if cp.MaximumPacketSize != nil {
		fields = append(fields, fmt.Sprintf("Maximum packet size: %d", *cp.MaximumPacketSize))
	}
	if len(cp.AssignedClientIdentifier) > 0 {
		fields = append(fields, fmt.Sprintf("Assigned client id: %s", cp.AssignedClientIdentifier))
	}
	if cp.TopicAliasMaximum != nil {
		fields = append(fields, fmt.Sprintf("Topic alias max: %d", *cp.TopicAliasMaximum))
	}
	if len(cp.ReasonString) > 0 {
		fields = append(fields, fmt.Sprintf("Reason string: %s", cp.ReasonString))
	}
	if cp.ServerKeepAlive != nil {
		fields = append(fields, fmt.Sprintf("Server keep alive: %d", *cp.ServerKeepAlive))
	}
	if len(cp.ResponseInformation) > 0 {
		fields = append(fields, fmt.Sprintf("Response info: %s", cp.ResponseInformation))
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

func (cp *ConnAckProperties) length() uint32 {
	if cp == nil {
		return 0
	}
	propertyLen := uint32(0)
	propertyLen += properties.EncodedSize.FromUint32(cp.SessionExpiryInterval)
	propertyLen += properties.EncodedSize.FromUint16(cp.ReceiveMaximum)
	propertyLen += properties.EncodedSize.FromByte(cp.MaximumQoS)
	propertyLen += properties.EncodedSize.FromBool(cp.RetainAvailable)
	propertyLen += properties.EncodedSize.FromUint32(cp.MaximumPacketSize)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.AssignedClientIdentifier)
	propertyLen += properties.EncodedSize.FromUint16(cp.TopicAliasMaximum)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.ReasonString)
	propertyLen += properties.EncodedSize.FromUserProperties(cp.UserProperty)
	propertyLen += properties.EncodedSize.FromBool(cp.WildcardSubscriptionAvailable)
	propertyLen += properties.EncodedSize.FromBool(cp.SubscriptionIdentifierAvailable)
	propertyLen += properties.EncodedSize.FromBool(cp.SharedSubscriptionAvailable)
	propertyLen += properties.EncodedSize.FromUint16(cp.ServerKeepAlive)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.ResponseInformation)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.ServerReference)
	propertyLen += properties.EncodedSize.FromUTF8String(cp.AuthenticationMethod)
	propertyLen += properties.EncodedSize.FromBinaryData(cp.AuthenticationData)
	return propertyLen
}

func (cp *ConnAckProperties) encode(buf *bytes.Buffer) error {
	steps := []func() error{
		func() error {
			return properties.Encoder.FromUint32(buf, properties.SessionExpiryIntervalID, cp.SessionExpiryInterval)
		},
		func() error {
			return properties.Encoder.FromUint16(buf, properties.ReceiveMaximumID, cp.ReceiveMaximum)
		},
		func() error {
			return properties.Encoder.FromByte(buf, properties.MaximumQoSID, cp.MaximumQoS)
		},
		func() error {
			return properties.Encoder.FromBool(buf, properties.RetainAvailableID, cp.RetainAvailable)
		},
		func() error {
			return properties.Encoder.FromUint32(buf, properties.MaximumPacketSizeID, cp.MaximumPacketSize)
		},
		func() error {
			return properties.Encoder.FromUTF8String(buf, properties.AssignedClientIdentifierID, cp.AssignedClientIdentifier)
		},
		func() error {
			return properties.Encoder.FromUint16(buf, properties.TopicAliasMaximumID, cp.TopicAliasMaximum)
		},
		func() error {
			return properties.Encoder.FromUTF8String(buf, properties.ReasonStringID, cp.ReasonString)
		},
		func() error {
			return properties.Encoder.FromUserProperties(buf, cp.UserProperty)
		},
		func() error {
			return properties.Encoder.FromBool(buf, properties.WildcardSubscriptionAvailableID, cp.WildcardSubscriptionAvailable)
		},
		func() error {
			return properties.Encoder.FromBool(buf, properties.SubscriptionIdentifierAvailableID, cp.SubscriptionIdentifierAvailable)
		},
		func() error {
			return properties.Encoder.FromBool(buf, properties.SharedSubscriptionAvailableID, cp.SharedSubscriptionAvailable)
		},
		func() error {
			return properties.Encoder.FromUint16(buf, properties.ServerKeepAliveID, cp.ServerKeepAlive)
		},
		func() error {
			return properties.Encoder.FromUTF8String(buf, properties.ResponseInformationID, cp.ResponseInformation)
		},
		func() error {
			return properties.Encoder.FromUTF8String(buf, properties.ServerReferenceID, cp.ServerReference)
		},
		func() error {
			return properties.Encoder.FromUTF8String(buf, properties.AuthenticationMethodID, cp.AuthenticationMethod)
		},
		func() error {
			return properties.Encoder.FromBinaryData(buf, properties.AuthenticationDataID, cp.AuthenticationData)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (cp *ConnAckProperties) decode(r *bytes.Reader) error {
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
		case properties.MaximumQoSID:
			cp.MaximumQoS, err = properties.DecoderOnlyOnce.ToByte(r, propID, cp.MaximumQoS)
			if err == nil && *cp.MaximumQoS > 1 {
				err = fmt.Errorf("%w: %s wrong maximum QoS %d", ErrProtocol, propID.Text(), *cp.MaximumQoS)
			}
		case properties.RetainAvailableID:
			cp.RetainAvailable, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.RetainAvailable)
		case properties.MaximumPacketSizeID:
			cp.MaximumPacketSize, err = properties.DecoderOnlyOnce.ToUint32(r, propID, cp.MaximumPacketSize)
			if err == nil && *cp.MaximumPacketSize == 0 {
				err = fmt.Errorf("%w: %s must not be 0", ErrProtocol, propID.Text())
			}
		case properties.AssignedClientIdentifierID:
			cp.AssignedClientIdentifier, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.AssignedClientIdentifier)
		case properties.TopicAliasMaximumID:
			cp.TopicAliasMaximum, err = properties.DecoderOnlyOnce.ToUint16(r, propID, cp.TopicAliasMaximum)
		case properties.ReasonStringID:
			cp.ReasonString, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.ReasonString)
		case properties.UserPropertyID:
			cp.UserProperty, err = properties.Decoder.ToUserProperty(r, cp.UserProperty)
		case properties.WildcardSubscriptionAvailableID:
			cp.WildcardSubscriptionAvailable, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.WildcardSubscriptionAvailable)
		case properties.SubscriptionIdentifierAvailableID:
			cp.SubscriptionIdentifierAvailable, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.SubscriptionIdentifierAvailable)
		case properties.SharedSubscriptionAvailableID:
			cp.SharedSubscriptionAvailable, err = properties.DecoderOnlyOnce.ToBool(r, propID, cp.SharedSubscriptionAvailable)
		case properties.ServerKeepAliveID:
			cp.ServerKeepAlive, err = properties.DecoderOnlyOnce.ToUint16(r, propID, cp.ServerKeepAlive)
		case properties.ResponseInformationID:
			cp.ResponseInformation, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.ResponseInformation)
		case properties.ServerReferenceID:
			cp.ServerReference, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.ServerReference)
		case properties.AuthenticationMethodID:
			cp.AuthenticationMethod, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, cp.AuthenticationMethod)
		case properties.AuthenticationDataID:
			cp.AuthenticationData, err = properties.DecoderOnlyOnce.ToBinaryData(r, propID, cp.AuthenticationData)
		default:
			return properties.Unexpected("CONNACK", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ConnAck MQTT CONNACK packet
type ConnAck struct {
	SessionPresent bool
	ReasonCode     ConnAckReasonCode
	Properties     *ConnAckProperties
}

func (c *ConnAck) String() string {
	return fmt.Sprintf("Session present: %t Reason code: %d Properties: %s",
		c.SessionPresent, c.ReasonCode, c.Properties)
}

func (c *ConnAck) encode(w io.Writer) error {
	propertyLen := c.Properties.length()
	// 2 = session present flag + reason code
	remainingLength := 2 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)

	packet, err := newPacketBuffer(packettype.CONNACK.Header(0), remainingLength)
	if err != nil {
		return err
	}

	packet.WriteByte(mqttutil.BoolToByte(c.SessionPresent))
	packet.WriteByte(byte(c.ReasonCode))

	if err := properties.WriteBlock(packet, propertyLen, c.Properties.encode); err != nil {
		return err
	}

	_, err = packet.WriteTo(w)
	return err
}

func (c *ConnAck) decode(r io.Reader, remainingLen uint32) error {
	flags, err := mqttutil.DecodeByte(r)
	if err != nil {
		return err
	}
	if flags&0xFE != 0 {
		return fmt.Errorf("%w: CONNACK reserved flags 0x%02X", ErrMalformedPacket, flags)
	}
	c.SessionPresent = flags&0x01 > 0

	reasonCode, err := mqttutil.DecodeByte(r)
	if err != nil {
		return err
	}
	c.ReasonCode = ConnAckReasonCode(reasonCode)

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		c.Properties = &ConnAckProperties{}
		return c.Properties.decode(block)
	}
	return nil
}
