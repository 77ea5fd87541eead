package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecConnAckPacket(t *testing.T) {
	encoded := []byte{0x20, 0x03, 0x01, 0x00, 0x00}
	encodeDecode(t, encoded, &ConnAck{SessionPresent: true, ReasonCode: ConnAckReasonCodeSuccess})
}

func TestCodecConnAckWithProperties(t *testing.T) {
	encoded := []byte{0x20, 0x09,
		0x00, 0x00,
		0x06,
		0x22, 0x00, 0x14, // topic alias maximum 20
		0x13, 0x00, 0x1E, // server keep alive 30
	}

	topicAliasMax := uint16(20)
	serverKeepAlive := uint16(30)
	encodeDecode(t, encoded, &ConnAck{
		Properties: &ConnAckProperties{
			TopicAliasMaximum: &topicAliasMax,
			ServerKeepAlive:   &serverKeepAlive,
		},
	})
}

func TestConnAckDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		encoded []byte
		want    error
	}{
		{"reserved flags", []byte{0x20, 0x03, 0x02, 0x00, 0x00}, ErrMalformedPacket},
		{"maximum QoS 2", []byte{0x20, 0x05, 0x00, 0x00, 0x02, 0x24, 0x02}, ErrProtocol},
		{"receive maximum 0", []byte{0x20, 0x06, 0x00, 0x00, 0x03, 0x21, 0x00, 0x00}, ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPacket(bytes.NewReader(tt.encoded))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConnAckReasonCodeIsError(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrServerRefused, ConnAckReasonCodeBadAuthMethod)

	var code ConnAckReasonCode
	require.True(t, errors.As(err, &code))
	assert.Equal(t, ConnAckReasonCodeBadAuthMethod, code)
	assert.Contains(t, err.Error(), "connack 0x8C")
	assert.NotEmpty(t, code.Text())
}
