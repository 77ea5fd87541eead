package mqttv5

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsubAckCodec(t *testing.T) {
	encoded := []byte{
		0xB0, 0x06,
		0x00, 0x10, // Packet identifier 16
		0x00, // no properties
		byte(UnsubAckNoSubscriptionExisted),
		byte(UnsubAckReasonCodeNotAuthorized), byte(UnsubAckReasonCodeSuccess),
	}
	encodeDecode(t, encoded, &UnsubAck{
		PacketID: 16,
		Payload: []UnsubAckReasonCode{
			UnsubAckNoSubscriptionExisted,
			UnsubAckReasonCodeNotAuthorized,
			UnsubAckReasonCodeSuccess,
		},
	})
}

func TestUnsubAckWithReasonString(t *testing.T) {
	encoded := []byte{
		0xB0, 0x0B,
		0x00, 0x01,
		0x07, 0x1F, 0x00, 0x04, 'g', 'o', 'n', 'e',
		byte(UnsubAckReasonCodeSuccess),
	}
	encodeDecode(t, encoded, &UnsubAck{
		PacketID:   1,
		Properties: &PublishResponseProperties{ReasonString: "gone"},
		Payload:    []UnsubAckReasonCode{UnsubAckReasonCodeSuccess},
	})
}

func TestUnsubAckReasonCodes(t *testing.T) {
	assert.True(t, UnsubAckReasonCodeSuccess.Removed())
	assert.True(t, UnsubAckNoSubscriptionExisted.Removed())
	assert.False(t, UnsubAckReasonCodeNotAuthorized.Removed())
	assert.Equal(t, "No subscription existed", UnsubAckNoSubscriptionExisted.Text())

	// no reason codes at all
	_, err := ReadPacket(bytes.NewReader([]byte{0xB0, 0x03, 0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, ErrNoTopicsPresent)
}
