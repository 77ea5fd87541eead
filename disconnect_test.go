package mqttv5

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecDisconnectPacket(t *testing.T) {
	encodeDecode(t, []byte{0xE0, 0x02, 0x00, 0x00}, &Disconnect{})
}

func TestCodecDisconnectWithProperties(t *testing.T) {
	encoded := []byte{0xE0, 0x22, 0x00, 0x20}
	encoded = append(encoded, 0x1F, 0x00, 0x04, 't', 'e', 's', 't')
	encoded = append(encoded, 0x26, 0x00, 0x0A)
	encoded = append(encoded, "Disconnect"...)
	encoded = append(encoded, 0x00, 0x0A)
	encoded = append(encoded, "Disconnect"...)

	encodeDecode(t, encoded, &Disconnect{Properties: &DisconnectProperties{
		ReasonString: "test",
		UserProperty: []UserProperty{{Key: "Disconnect", Value: "Disconnect"}},
	}})
}

func TestDisconnectShortForms(t *testing.T) {
	p, err := ReadPacket(bytes.NewReader([]byte{0xE0, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, &Disconnect{ReasonCode: DisconnectReasonCodeNormalDisconnect}, p)

	p, err = ReadPacket(bytes.NewReader([]byte{0xE0, 0x01, 0x8B}))
	require.NoError(t, err)
	assert.Equal(t, &Disconnect{ReasonCode: DisconnectReasonCodeServerShuttingDown}, p)
}

func TestDisconnectReasonCodeIsError(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrServerDisconnected, DisconnectReasonCodeSessionTakenOver)

	var code DisconnectReasonCode
	require.True(t, errors.As(err, &code))
	assert.Equal(t, DisconnectReasonCodeSessionTakenOver, code)
	assert.Contains(t, err.Error(), "disconnect 0x8E")
}
