package packettype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	assert.Equal(t, byte(0x62), PUBREL.Header(0x02))
	assert.Equal(t, byte(0xC0), PINGREQ.Header(0))
	assert.Equal(t, PUBREL, FromHeader(0x62))
	assert.Equal(t, PUBLISH, FromHeader(0x3D))
}

func TestString(t *testing.T) {
	assert.Equal(t, "PUBREC", PUBREC.String())
	assert.Equal(t, "0x10", PacketType(0x10).String())
}
