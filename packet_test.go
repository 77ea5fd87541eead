package mqttv5

import (
	"bytes"
	"testing"

	"github.com/srishina/mqttv5.go/internal/packettype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDecode checks that encoded decodes into want and that want encodes
// back into exactly the same bytes
func encodeDecode(t *testing.T, encoded []byte, want Packet) {
	t.Helper()

	got, err := ReadPacket(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, want))
	assert.Equal(t, encoded, buf.Bytes())
}

func TestSplitPacket(t *testing.T) {
	pubAck := []byte{0x40, 0x02, 0x00, 0x01}

	_, _, err := splitPacket(pubAck[:1])
	assert.ErrorIs(t, err, errIncompletePacket)

	_, total, err := splitPacket(pubAck[:3])
	assert.ErrorIs(t, err, errIncompletePacket)
	assert.Equal(t, 4, total)

	// a second packet right behind the first is left alone
	buffered := append(append([]byte{}, pubAck...), 0xD0, 0x00)
	p, total, err := splitPacket(buffered)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, &PubAck{PacketID: 1}, p)

	p, total, err = splitPacket(buffered[4:])
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.IsType(t, &pingResp{}, p)
}

func TestSplitPacketLargeRemainingLength(t *testing.T) {
	// remaining length 200 needs two bytes
	_, total, err := splitPacket([]byte{0x30, 0xC8, 0x01, 0x00})
	assert.ErrorIs(t, err, errIncompletePacket)
	assert.Equal(t, 203, total)

	// the length itself is still incomplete
	_, total, err = splitPacket([]byte{0x30, 0xC8})
	assert.ErrorIs(t, err, errIncompletePacket)
	assert.Equal(t, 0, total)
}

func TestSplitPacketMalformed(t *testing.T) {
	tests := map[string][]byte{
		"remaining length overflow": {0x30, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F},
		"PINGREQ with flags":        {0xC1, 0x00},
		"PUBREL without flags":      {0x60, 0x02, 0x00, 0x01},
		"SUBSCRIBE without flags":   {0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x01, 'a'},
		"PUBLISH with QoS 3":        {0x36, 0x03, 0x00, 0x01, 'a'},
		"reserved packet type":      {0x00, 0x00},
		"trailing bytes":            {0xD0, 0x01, 0x00},
		"truncated body":            {0x20, 0x01, 0x00},
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := splitPacket(encoded)
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}

func TestOpaquePacket(t *testing.T) {
	// AUTH, continue authentication, no properties
	encoded := []byte{0xF0, 0x02, 0x18, 0x00}
	encodeDecode(t, encoded, &opaquePacket{packetType: packettype.AUTH, body: encoded[2:]})

	p, _, err := splitPacket([]byte{0xF0, 0x00})
	require.NoError(t, err)
	assert.Equal(t, &opaquePacket{packetType: packettype.AUTH, body: []byte{}}, p)
}

func TestPingPackets(t *testing.T) {
	encodeDecode(t, []byte{0xC0, 0x00}, PingRequest())
	encodeDecode(t, []byte{0xD0, 0x00}, PingResponse())

	assert.True(t, IsPingRequest(PingRequest()))
	assert.False(t, IsPingRequest(PingResponse()))
}
