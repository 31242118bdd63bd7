package message

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/996BC/btccrawler/utils"
)

const (
	// HeaderSize is the fixed envelope size before the payload
	HeaderSize   = 24
	CommandSize  = 12
	ChecksumSize = 4
)

// Header is the decoded envelope of one message
type Header struct {
	Magic    uint32
	Command  string
	Length   uint32
	Checksum [ChecksumSize]byte
}

func (h *Header) String() string {
	return fmt.Sprintf("Command %s Length %d Magic 0x%08x", h.Command, h.Length, h.Magic)
}

// Checksum returns the first 4 bytes of the double sha256 of payload
func Checksum(payload []byte) [ChecksumSize]byte {
	var result [ChecksumSize]byte
	copy(result[:], chainhash.DoubleHashB(payload))
	return result
}

// VerifyChecksum checks the claimed checksum against payload
func VerifyChecksum(payload []byte, claimed [ChecksumSize]byte) bool {
	return Checksum(payload) == claimed
}

// BuildMessage frames payload into a complete message
func BuildMessage(magic uint32, command string, payload []byte) ([]byte, error) {
	if len(command) > CommandSize {
		return nil, fmt.Errorf("%w: %q", ErrCommandTooLong, command)
	}

	var cmd [CommandSize]byte
	copy(cmd[:], command)
	checksum := Checksum(payload)

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+len(payload)))
	binary.Write(buf, binary.LittleEndian, magic)
	buf.Write(cmd[:])
	binary.Write(buf, binary.LittleEndian, utils.Uint32Len(payload))
	buf.Write(checksum[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

// ParseHeader decodes the first 24 bytes of data and validates magic and declared length
func ParseHeader(data []byte, magic uint32, maxPayload uint32) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedInput
	}

	h := &Header{
		Magic:  binary.LittleEndian.Uint32(data[0:4]),
		Length: binary.LittleEndian.Uint32(data[16:20]),
	}
	copy(h.Checksum[:], data[20:24])

	cmd := data[4:16]
	if idx := bytes.IndexByte(cmd, 0); idx >= 0 {
		cmd = cmd[:idx]
	}
	h.Command = string(cmd)

	if h.Magic != magic {
		return nil, fmt.Errorf("%w: got 0x%08x want 0x%08x", ErrBadMagic, h.Magic, magic)
	}
	if h.Length > maxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversizedPayload, h.Length, maxPayload)
	}
	return h, nil
}
