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

// DisconnectReasonCode indicates DISCONNECT MQTT reason code
type DisconnectReasonCode byte

const (
	DisconnectReasonCodeNormalDisconnect     DisconnectReasonCode = DisconnectReasonCode(reasoncode.Success)
	DisconnectReasonCodeWithWillMessage      DisconnectReasonCode = 0x04
	DisconnectReasonCodeUnspecifiedError     DisconnectReasonCode = DisconnectReasonCode(reasoncode.UnspecifiedError)
	DisconnectReasonCodeMalformedPacket      DisconnectReasonCode = DisconnectReasonCode(reasoncode.MalformedPacket)
	DisconnectReasonCodeProtocolError        DisconnectReasonCode = DisconnectReasonCode(reasoncode.ProtocolError)
	DisconnectReasonCodeImplSpecificError    DisconnectReasonCode = DisconnectReasonCode(reasoncode.ImplSpecificError)
	DisconnectReasonCodeNotAuthorized        DisconnectReasonCode = DisconnectReasonCode(reasoncode.NotAuthorized)
	DisconnectReasonCodeServerBusy           DisconnectReasonCode = DisconnectReasonCode(reasoncode.ServerBusy)
	DisconnectReasonCodeServerShuttingDown   DisconnectReasonCode = 0x8B
	DisconnectReasonCodeKeepAliveTimeout     DisconnectReasonCode = 0x8D
	DisconnectReasonCodeSessionTakenOver     DisconnectReasonCode = 0x8E
	DisconnectReasonCodeTopicNameInvalid     DisconnectReasonCode = DisconnectReasonCode(reasoncode.TopicNameInvalid)
	DisconnectReasonCodeReceiveMaximumExceed DisconnectReasonCode = 0x93
	DisconnectReasonCodeTopicAliasInvalid    DisconnectReasonCode = 0x94
	DisconnectReasonCodePacketTooLarge       DisconnectReasonCode = DisconnectReasonCode(reasoncode.PacketTooLarge)
	DisconnectReasonCodeQuotaExceeded        DisconnectReasonCode = DisconnectReasonCode(reasoncode.QuotaExceeded)
	DisconnectReasonCodeAdministrativeAction DisconnectReasonCode = 0x98
	DisconnectReasonCodeUseAnotherServer     DisconnectReasonCode = DisconnectReasonCode(reasoncode.UseAnotherServer)
	DisconnectReasonCodeServerMoved          DisconnectReasonCode = DisconnectReasonCode(reasoncode.ServerMoved)
)

var disconnectReasonCodeText = map[DisconnectReasonCode]string{
	DisconnectReasonCodeWithWillMessage:      "Disconnect with Will Message",
	DisconnectReasonCodeServerShuttingDown:   "Server shutting down",
	DisconnectReasonCodeKeepAliveTimeout:     "Keep Alive timeout",
	DisconnectReasonCodeSessionTakenOver:     "Session taken over",
	DisconnectReasonCodeReceiveMaximumExceed: "Receive Maximum exceeded",
	DisconnectReasonCodeTopicAliasInvalid:    "Topic Alias invalid",
	DisconnectReasonCodeAdministrativeAction: "Administrative action",
}

// Text returns a text for the MQTT reason code. Returns the empty
// string if the reason code is unknown.
func (code DisconnectReasonCode) Text() string {
	if code == DisconnectReasonCodeNormalDisconnect {
		return "Normal disconnection"
	}
	if text, ok := disconnectReasonCodeText[code]; ok {
		return text
	}
	return reasoncode.ReasonCode(code).Text()
}

func (code DisconnectReasonCode) Error() string {
	return fmt.Sprintf("disconnect 0x%02X: %s", byte(code), code.Text())
}

// DisconnectProperties MQTT DISCONNECT properties
type DisconnectProperties struct {
	SessionExpiryInterval *uint32
	ReasonString          string
	UserProperty          []UserProperty
	ServerReference       string
}

func (dp *DisconnectProperties) length() uint32 {
	if dp == nil {
		return 0
	}
	propertyLen := uint32(0)
	propertyLen += properties.EncodedSize.FromUint32(dp.SessionExpiryInterval)
	propertyLen += properties.EncodedSize.FromUTF8String(dp.ReasonString)
	propertyLen += properties.EncodedSize.FromUserProperties(dp.UserProperty)
	propertyLen += properties.EncodedSize.FromUTF8String(dp.ServerReference)
	return propertyLen
}

func (dp *DisconnectProperties) encode(buf *bytes.Buffer) error {
	if err := properties.Encoder.FromUint32(
		buf, properties.SessionExpiryIntervalID, dp.SessionExpiryInterval); err != nil {
		return err
	}

	if err := properties.Encoder.FromUTF8String(
		buf, properties.ReasonStringID, dp.ReasonString); err != nil {
		return err
	}

	if err := properties.Encoder.FromUserProperties(buf, dp.UserProperty); err != nil {
		return err
	}

	return properties.Encoder.FromUTF8String(buf, properties.ServerReferenceID, dp.ServerReference)
}

func (dp *DisconnectProperties) decode(r *bytes.Reader) error {
	for r.Len() > 0 {
		propID, err := properties.NextID(r)
		if err != nil {
			return err
		}
		switch propID {
		case properties.SessionExpiryIntervalID:
			dp.SessionExpiryInterval, err = properties.DecoderOnlyOnce.ToUint32(r, propID, dp.SessionExpiryInterval)
		case properties.ReasonStringID:
			dp.ReasonString, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, dp.ReasonString)
		case properties.UserPropertyID:
			dp.UserProperty, err = properties.Decoder.ToUserProperty(r, dp.UserProperty)
		case properties.ServerReferenceID:
			dp.ServerReference, err = properties.DecoderOnlyOnce.ToUTF8String(r, propID, dp.ServerReference)
		default:
			return properties.Unexpected("DISCONNECT", propID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Disconnect MQTT DISCONNECT packet
type Disconnect struct {
	ReasonCode DisconnectReasonCode
	Properties *DisconnectProperties
}

// encode encode the DISCONNECT packet
func (d *Disconnect) encode(w io.Writer) error {
	propertyLen := d.Properties.length()
	// 1 = reason code
	remainingLength := 1 + propertyLen + mqttutil.EncodedVarUint32Size(propertyLen)

	packet, err := newPacketBuffer(packettype.DISCONNECT.Header(0), remainingLength)
	if err != nil {
		return err
	}

	packet.WriteByte(byte(d.ReasonCode))

	if err := properties.WriteBlock(packet, propertyLen, d.Properties.encode); err != nil {
		return err
	}

	_, err = packet.WriteTo(w)
	return err
}

// decode decode the DISCONNECT packet, an empty body is a normal
// disconnection, MQTT 3.14.2.1
func (d *Disconnect) decode(r io.Reader, remainingLen uint32) error {
	if remainingLen == 0 {
		d.ReasonCode = DisconnectReasonCodeNormalDisconnect
		return nil
	}

	reasonCode, err := mqttutil.DecodeByte(r)
	if err != nil {
		return err
	}
	d.ReasonCode = DisconnectReasonCode(reasonCode)
	if remainingLen == 1 {
		return nil
	}

	block, propertyLen, err := properties.ReadBlock(r)
	if err != nil {
		return err
	}
	if propertyLen > 0 {
		d.Properties = &DisconnectProperties{}
		return d.Properties.decode(block)
	}
	return nil
}
