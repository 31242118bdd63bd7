package message

import (
	"encoding/binary"
	"io"
)

// EncodeVarint encodes n in the compact size form
func EncodeVarint(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		return buf
	case n <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], n)
		return buf
	}
}

// varintWidth returns the bytes following the tag
func varintWidth(tag byte) int {
	switch tag {
	case 0xfd:
		return 2
	case 0xfe:
		return 4
	case 0xff:
		return 8
	default:
		return 0
	}
}

// DecodeVarint decodes the varint starting at data[offset] and returns the offset after it
func DecodeVarint(data []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset >= len(data) {
		return 0, offset, ErrTruncatedInput
	}

	tag := data[offset]
	width := varintWidth(tag)
	if width == 0 {
		return uint64(tag), offset + 1, nil
	}

	start := offset + 1
	if len(data)-start < width {
		return 0, offset, ErrTruncatedInput
	}

	var value uint64
	switch width {
	case 2:
		value = uint64(binary.LittleEndian.Uint16(data[start:]))
	case 4:
		value = uint64(binary.LittleEndian.Uint32(data[start:]))
	default:
		value = binary.LittleEndian.Uint64(data[start:])
	}
	return value, start + width, nil
}

// ReadVarint reads one varint from r
func ReadVarint(r io.Reader) (uint64, error) {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, ErrTruncatedInput
	}
	width := varintWidth(buf[0])
	if width == 0 {
		return uint64(buf[0]), nil
	}
	if _, err := io.ReadFull(r, buf[1:1+width]); err != nil {
		return 0, ErrTruncatedInput
	}
	value, _, err := DecodeVarint(buf[:1+width], 0)
	return value, err
}
