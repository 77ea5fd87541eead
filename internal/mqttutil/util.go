package mqttutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	maxVarUint32 = 268435455

	// MaxVarUint32Len is the largest number of bytes a variable byte integer can occupy
	MaxVarUint32Len = 4
)

var (
	ErrInvalidUTF8String = errors.New("invalid or malformed utf-8 string")
	ErrVarUint32Overflow = errors.New("variable byte integer exceeds 4 bytes")
)

// DecodeByte read and returns the next byte from the reader
// returns EOF when no byte is available to read
func DecodeByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}

	var value [1]byte
	if _, err := io.ReadFull(r, value[:]); err != nil {
		return 0, err
	}
	return value[0], nil
}

// EncodeByte appends the byte val to the buffer
func EncodeByte(buf *bytes.Buffer, val byte) error {
	return buf.WriteByte(val)
}

// DecodeBool reads the next byte and reports whether it is non zero
func DecodeBool(r io.Reader) (bool, error) {
	value, err := DecodeByte(r)
	return value != 0, err
}

// EncodeBool appends the bool as a single byte
func EncodeBool(buf *bytes.Buffer, val bool) error {
	return EncodeByte(buf, BoolToByte(val))
}

func DecodeBigEndianUint16(r io.Reader) (uint16, error) {
	var value [2]byte
	if _, err := io.ReadFull(r, value[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(value[:]), nil
}

func EncodeBigEndianUint16(buf *bytes.Buffer, value uint16) error {
	_, err := buf.Write(binary.BigEndian.AppendUint16(nil, value))
	return err
}

func DecodeBigEndianUint32(r io.Reader) (uint32, error) {
	var value [4]byte
	if _, err := io.ReadFull(r, value[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(value[:]), nil
}

func EncodeBigEndianUint32(buf *bytes.Buffer, value uint32) error {
	_, err := buf.Write(binary.BigEndian.AppendUint32(nil, value))
	return err
}

// DecodeVarUint32 reads an MQTT variable byte integer, returns the value
// and the number of bytes consumed
func DecodeVarUint32(r io.Reader) (uint32, int, error) {
	var value uint32
	multiplier := uint32(1)

	for consumed := 1; ; consumed++ {
		if consumed > MaxVarUint32Len {
			return 0, 0, ErrVarUint32Overflow
		}

		encodedByte, err := DecodeByte(r)
		if err != nil {
			return 0, 0, err
		}

		value += uint32(encodedByte&0x7f) * multiplier
		if encodedByte&0x80 == 0 {
			return value, consumed, nil
		}
		multiplier *= 128
	}
}

// PeekVarUint32 decodes a variable byte integer from the start of b without
// consuming anything. complete is false when b ends before the last byte of
// the integer.
func PeekVarUint32(b []byte) (value uint32, n int, complete bool, err error) {
	multiplier := uint32(1)
	for i, encodedByte := range b {
		if i == MaxVarUint32Len {
			return 0, 0, false, ErrVarUint32Overflow
		}
		value += uint32(encodedByte&0x7f) * multiplier
		if encodedByte&0x80 == 0 {
			return value, i + 1, true, nil
		}
		multiplier *= 128
	}
	if len(b) > MaxVarUint32Len {
		return 0, 0, false, ErrVarUint32Overflow
	}
	return 0, 0, false, nil
}

func EncodedVarUint32Size(val uint32) uint32 {
	switch {
	case val < 128:
		return 1
	case val < 16384:
		return 2
	case val < 2097152:
		return 3
	default:
		return 4
	}
}

func EncodeVarUint32(buf *bytes.Buffer, val uint32) error {
	if val > maxVarUint32 {
		return fmt.Errorf("variable integer contains value of %d which is more than the permissible", val)
	}

	for {
		encodedByte := byte(val % 0x80)
		val /= 0x80
		if val > 0 {
			encodedByte |= 0x80
		}

		if err := buf.WriteByte(encodedByte); err != nil {
			return err
		}
		if val == 0 {
			return nil
		}
	}
}

func DecodeBinaryData(r io.Reader) ([]byte, int, error) {
	buflen, err := DecodeBigEndianUint16(r)
	if err != nil {
		return nil, 0, err
	}

	if buflen == 0 {
		return []byte{}, 2, nil
	}

	payload, nn, err := DecodeBinaryDataNoLength(r, int(buflen))
	return payload, nn + 2, err
}

func DecodeBinaryDataNoLength(r io.Reader, byteToRead int) ([]byte, int, error) {
	payload := make([]byte, byteToRead)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, err
	}
	return payload, byteToRead, nil
}

func EncodeBinaryData(buf *bytes.Buffer, val []byte) error {
	if len(val) > 65535 {
		return fmt.Errorf("binary data of %d bytes does not fit a two byte length", len(val))
	}
	if err := EncodeBigEndianUint16(buf, uint16(len(val))); err != nil {
		return err
	}
	_, err := buf.Write(val)
	return err
}

func EncodeBinaryDataNoLen(buf *bytes.Buffer, val []byte) error {
	_, err := buf.Write(val)
	return err
}

func DecodeUTF8String(r io.Reader) (string, int, error) {
	buf, nn, err := DecodeBinaryData(r)
	if err != nil {
		return "", nn, err
	}

	if !validateUTF8Chars(buf) {
		return "", nn, ErrInvalidUTF8String
	}

	return string(buf), nn, nil
}

func EncodeUTF8String(buf *bytes.Buffer, val string) error {
	if len(val) > 65535 {
		return fmt.Errorf("string of %d bytes does not fit a two byte length", len(val))
	}
	if err := EncodeBigEndianUint16(buf, uint16(len(val))); err != nil {
		return err
	}
	_, err := buf.WriteString(val)
	return err
}

// EncodedUTF8StringSize size of a length prefixed string
func EncodedUTF8StringSize(val string) uint32 {
	return uint32(2 + len(val))
}

func validateUTF8Chars(buf []byte) bool {
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)

		if r == utf8.RuneError || !utf8.ValidRune(r) {
			return false
		}

		// control characters are not allowed, MQTT 1.5.4
		if r <= '\u001f' || (r >= '\u007f' && r <= '\u009f') {
			return false
		}

		buf = buf[size:]
	}

	return true
}

func BoolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
