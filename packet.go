package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/srishina/mqttv5.go/internal/mqttutil"
	"github.com/srishina/mqttv5.go/internal/packettype"
)

var (
	ErrProtocol        = errors.New("protocol error")
	ErrMalformedPacket = errors.New("malformed packet")

	errIncompletePacket = errors.New("incomplete packet")
)

// PROTOCOLVERSIONv5 MQTT protocol version
const PROTOCOLVERSIONv5 = byte(0x05)

// Packet MQTT control packet codec interface
type Packet interface {
	encode(w io.Writer) error
	decode(r io.Reader, remainingLen uint32) error
}

// ReadPacket reads one complete MQTT control packet from r
func ReadPacket(r io.Reader) (Packet, error) {
	byte0, remainingLength, err := readFixedHeader(r)
	if err != nil {
		return nil, err
	}

	p, err := newPacketWithHeader(byte0)
	if err != nil {
		return nil, err
	}

	body := make([]byte, remainingLength)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return p, decodeBody(p, body)
}

// WritePacket encodes p and writes it to w in a single write
func WritePacket(w io.Writer, p Packet) error {
	return p.encode(w)
}

// splitPacket decodes the packet at the start of b. It returns
// errIncompletePacket when b does not hold the whole packet yet, and the
// total size of the packet so the caller can tell whether it will ever fit
func splitPacket(b []byte) (Packet, int, error) {
	if len(b) < 2 {
		return nil, 0, errIncompletePacket
	}

	remainingLength, n, complete, err := mqttutil.PeekVarUint32(b[1:])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformedPacket, err)
	}
	if !complete {
		return nil, 0, errIncompletePacket
	}

	headerLen := 1 + n
	total := headerLen + int(remainingLength)
	if len(b) < total {
		return nil, total, errIncompletePacket
	}

	p, err := newPacketWithHeader(b[0])
	if err != nil {
		return nil, total, err
	}
	return p, total, decodeBody(p, b[headerLen:total])
}

func decodeBody(p Packet, body []byte) error {
	r := bytes.NewReader(body)
	if err := p.decode(r, uint32(len(body))); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %w", ErrMalformedPacket, err)
		}
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedPacket, r.Len())
	}
	return nil
}

// newPacketWithHeader creates an empty packet for the fixed header byte0
// and checks the reserved flag bits, MQTT 2.1.3
func newPacketWithHeader(byte0 byte) (Packet, error) {
	pktType := packettype.FromHeader(byte0)
	flags := byte0 & 0x0F

	expectedFlags := byte(0)
	switch pktType {
	case packettype.PUBLISH:
		qos, dup, retain := decodePublishHeader(byte0)
		if qos > 2 {
			return nil, fmt.Errorf("%w: PUBLISH with QoS 3", ErrMalformedPacket)
		}
		return &Publish{QoSLevel: qos, DUPFlag: dup, Retain: retain}, nil
	case packettype.PUBREL, packettype.SUBSCRIBE, packettype.UNSUBSCRIBE:
		expectedFlags = 0x02
	}
	if flags != expectedFlags {
		return nil, fmt.Errorf("%w: invalid flags 0x%X for %s", ErrMalformedPacket, flags, pktType)
	}

	switch pktType {
	case packettype.CONNECT:
		return &Connect{}, nil
	case packettype.CONNACK:
		return &ConnAck{}, nil
	case packettype.PUBACK:
		return &PubAck{}, nil
	case packettype.PUBREC:
		return &PubRec{}, nil
	case packettype.PUBREL:
		return &PubRel{}, nil
	case packettype.PUBCOMP:
		return &PubComp{}, nil
	case packettype.SUBSCRIBE:
		return &Subscribe{}, nil
	case packettype.SUBACK:
		return &SubAck{}, nil
	case packettype.UNSUBSCRIBE:
		return &Unsubscribe{}, nil
	case packettype.UNSUBACK:
		return &UnsubAck{}, nil
	case packettype.PINGREQ:
		return &pingReq{}, nil
	case packettype.PINGRESP:
		return &pingResp{}, nil
	case packettype.DISCONNECT:
		return &Disconnect{}, nil
	case packettype.AUTH:
		return &opaquePacket{packetType: pktType}, nil
	}
	return nil, fmt.Errorf("%w: unsupported packet type, 0x%x", ErrMalformedPacket, byte(pktType))
}

func readFixedHeader(r io.Reader) (byte, uint32, error) {
	byte0, err := mqttutil.DecodeByte(r)
	if err != nil {
		return 0, 0, err
	}

	remainingLength, _, err := mqttutil.DecodeVarUint32(r)
	if err != nil {
		return 0, 0, err
	}

	return byte0, remainingLength, nil
}

// newPacketBuffer returns a buffer holding the fixed header, ready for the
// variable header and payload of remainingLength bytes
func newPacketBuffer(byte0 byte, remainingLength uint32) (*bytes.Buffer, error) {
	var packet bytes.Buffer
	packet.Grow(int(1 + remainingLength + mqttutil.EncodedVarUint32Size(remainingLength)))
	if err := mqttutil.EncodeByte(&packet, byte0); err != nil {
		return nil, err
	}
	if err := mqttutil.EncodeVarUint32(&packet, remainingLength); err != nil {
		return nil, err
	}
	return &packet, nil
}

// opaquePacket a packet the client understands the framing of but does not
// act upon, its body is kept as is
type opaquePacket struct {
	packetType packettype.PacketType
	body       []byte
}

func (o *opaquePacket) encode(w io.Writer) error {
	packet, err := newPacketBuffer(o.packetType.Header(0), uint32(len(o.body)))
	if err != nil {
		return err
	}
	packet.Write(o.body)
	_, err = packet.WriteTo(w)
	return err
}

func (o *opaquePacket) decode(r io.Reader, remainingLen uint32) error {
	o.body = make([]byte, remainingLen)
	_, err := io.ReadFull(r, o.body)
	return err
}
