package packettype

import "fmt"

// PacketType MQTT control packet type
// MQTT 2.1.2
type PacketType byte

// MQTT Control packet type
const (
	RESERVED    PacketType = 0
	CONNECT     PacketType = 1
	CONNACK     PacketType = 2
	PUBLISH     PacketType = 3
	PUBACK      PacketType = 4
	PUBREC      PacketType = 5
	PUBREL      PacketType = 6
	PUBCOMP     PacketType = 7
	SUBSCRIBE   PacketType = 8
	SUBACK      PacketType = 9
	UNSUBSCRIBE PacketType = 10
	UNSUBACK    PacketType = 11
	PINGREQ     PacketType = 12
	PINGRESP    PacketType = 13
	DISCONNECT  PacketType = 14
	AUTH        PacketType = 15
)

var packetTypeText = map[PacketType]string{
	RESERVED:    "RESERVED for future use",
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
	AUTH:        "AUTH",
}

// Text returns a text for the MQTT control packet type. Returns the empty
// string if the control packet type is unknown.
func (ct PacketType) Text() string {
	return packetTypeText[ct]
}

// String implements fmt.Stringer, unknown values are printed in hex
func (ct PacketType) String() string {
	if text, ok := packetTypeText[ct]; ok {
		return text
	}
	return fmt.Sprintf("0x%02X", byte(ct))
}

// FromHeader extracts the packet type from the first byte of the fixed header
func FromHeader(byte0 byte) PacketType {
	return PacketType(byte0 >> 4)
}

// Header builds the first byte of the fixed header. flags holds the low
// nibble, which is fixed for every packet but PUBLISH, MQTT 2.1.3
func (ct PacketType) Header(flags byte) byte {
	return byte(ct)<<4 | flags&0x0F
}
