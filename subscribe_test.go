package mqttv5

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecSubscribePacket(t *testing.T) {
	encoded := []byte{0x82, 0x0F,
		0x00, 0x01,
		0x00,
		0x00, 0x03, 'a', '/', 'b',
		0x01,
		0x00, 0x03, 'c', '/', '#',
		0x2E, // retain handling 2, retain as published, no local, QoS 2
	}

	encodeDecode(t, encoded, &Subscribe{
		PacketID: 1,
		Subscriptions: []Subscription{
			{TopicFilter: "a/b", QoSLevel: 1},
			{TopicFilter: "c/#", QoSLevel: 2, NoLocal: true, RetainAsPublished: true, RetainHandling: 2},
		},
	})
}

func TestCodecSubscribeWithIdentifier(t *testing.T) {
	encoded := []byte{0x82, 0x09,
		0x00, 0x02,
		0x02, 0x0B, 0x07, // subscription identifier 7
		0x00, 0x01, 'a',
		0x00,
	}

	id := uint32(7)
	encodeDecode(t, encoded, &Subscribe{
		PacketID:      2,
		Subscriptions: []Subscription{{TopicFilter: "a"}},
		Properties:    &SubscribeProperties{SubscriptionIdentifier: &id},
	})
}

func TestSubscribeErrors(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, (&Subscribe{PacketID: 1}).encode(&buf), ErrNoTopicsPresent)
	assert.Error(t, (&Subscribe{PacketID: 1, Subscriptions: []Subscription{{TopicFilter: "a/#/b"}}}).encode(&buf))

	_, err := ReadPacket(bytes.NewReader([]byte{0x82, 0x03, 0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, ErrNoTopicsPresent)

	_, err = ReadPacket(bytes.NewReader([]byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'a', 0xC0}))
	assert.ErrorIs(t, err, ErrMalformedPacket)

	_, err = ReadPacket(bytes.NewReader([]byte{0x82, 0x07, 0x00, 0x01, 0x00, 0x00, 0x01, 'a', 0x03}))
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestCodecSubAckPacket(t *testing.T) {
	encoded := []byte{0x90, 0x05, 0x00, 0x01, 0x00, 0x01, 0x87}
	encodeDecode(t, encoded, &SubAck{
		PacketID: 1,
		Payload:  []SubAckReasonCode{SubAckReasonCodeGrantedQoS1, SubAckReasonCodeNotAuthorized},
	})

	assert.True(t, SubAckReasonCodeGrantedQoS1.Granted())
	assert.False(t, SubAckReasonCodeNotAuthorized.Granted())

	_, err := ReadPacket(bytes.NewReader([]byte{0x90, 0x03, 0x00, 0x01, 0x00}))
	assert.ErrorIs(t, err, ErrNoTopicsPresent)
}
