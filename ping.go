package mqttv5

import (
	"io"

	"github.com/srishina/mqttv5.go/internal/packettype"
)

// pingReq MQTT ping request control packet
type pingReq struct {
}

// encode encode MQTT PINGREQ packet
func (p *pingReq) encode(w io.Writer) error {
	_, err := w.Write([]byte{packettype.PINGREQ.Header(0), 0})
	return err
}

func (p *pingReq) decode(r io.Reader, len uint32) error {
	return nil
}

// pingResp MQTT PINGRESP control packet
type pingResp struct {
}

// encode encode MQTT PINGRESP packet
func (p *pingResp) encode(w io.Writer) error {
	_, err := w.Write([]byte{packettype.PINGRESP.Header(0), 0})
	return err
}

func (p *pingResp) decode(r io.Reader, len uint32) error {
	return nil
}

// PingRequest returns a PINGREQ packet, for peers that need to write one
// without an engine
func PingRequest() Packet { return &pingReq{} }

// PingResponse returns a PINGRESP packet
func PingResponse() Packet { return &pingResp{} }

// IsPingRequest reports whether p is a PINGREQ
func IsPingRequest(p Packet) bool {
	_, ok := p.(*pingReq)
	return ok
}
