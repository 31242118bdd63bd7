package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/996BC/btccrawler/utils"
)

// MaxUserAgentLen bounds the user agent accepted from a peer
const MaxUserAgentLen = 256

type Version struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewVersion creates the version announced by the crawler: no services, height 0, relay on
func NewVersion(protocol int32, userAgent string, recv NetAddress, nonce uint64) *Version {
	return &Version{
		ProtocolVersion: protocol,
		Timestamp:       time.Now().Unix(),
		AddrRecv:        recv,
		Nonce:           nonce,
		UserAgent:       userAgent,
		Relay:           true,
	}
}

// UnmarshalVersion decodes a version payload.
// Peers of old protocol versions may omit the fields after the receiving address
// or the ones after the nonce, those are left zero.
func UnmarshalVersion(payload []byte) (*Version, error) {
	data := bytes.NewReader(payload)
	result := &Version{}
	var err error

	if err = binary.Read(data, binary.LittleEndian, &result.ProtocolVersion); err != nil {
		return nil, ErrTruncatedInput
	}
	if err = binary.Read(data, binary.LittleEndian, &result.Services); err != nil {
		return nil, ErrTruncatedInput
	}
	if err = binary.Read(data, binary.LittleEndian, &result.Timestamp); err != nil {
		return nil, ErrTruncatedInput
	}
	if result.AddrRecv, err = UnmarshalNetAddress(data); err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return result, nil
	}

	if result.AddrFrom, err = UnmarshalNetAddress(data); err != nil {
		return nil, err
	}
	if err = binary.Read(data, binary.LittleEndian, &result.Nonce); err != nil {
		return nil, ErrTruncatedInput
	}
	if data.Len() == 0 {
		return result, nil
	}

	uaLen, err := ReadVarint(data)
	if err != nil {
		return nil, err
	}
	if uaLen > MaxUserAgentLen {
		return nil, fmt.Errorf("%w: user agent length %d", ErrMalformedPayload, uaLen)
	}
	ua := make([]byte, uaLen)
	if _, err = io.ReadFull(data, ua); err != nil {
		return nil, ErrTruncatedInput
	}
	result.UserAgent = string(ua)

	if data.Len() < 4 {
		return result, nil
	}
	binary.Read(data, binary.LittleEndian, &result.StartHeight)

	if data.Len() == 0 {
		return result, nil
	}
	var relay uint8
	binary.Read(data, binary.LittleEndian, &relay)
	result.Relay = relay != 0
	return result, nil
}

func (v *Version) Marshal() []byte {
	result := new(bytes.Buffer)

	binary.Write(result, binary.LittleEndian, v.ProtocolVersion)
	binary.Write(result, binary.LittleEndian, v.Services)
	binary.Write(result, binary.LittleEndian, v.Timestamp)
	result.Write(v.AddrRecv.Marshal())
	result.Write(v.AddrFrom.Marshal())
	binary.Write(result, binary.LittleEndian, v.Nonce)

	result.Write(EncodeVarint(uint64(len(v.UserAgent))))
	result.WriteString(v.UserAgent)

	binary.Write(result, binary.LittleEndian, v.StartHeight)
	var relay uint8
	if v.Relay {
		relay = 1
	}
	binary.Write(result, binary.LittleEndian, relay)

	return result.Bytes()
}

func (v *Version) String() string {
	return fmt.Sprintf("Version %d Services %v Agent %q Height %d Time %s",
		v.ProtocolVersion, wire.ServiceFlag(v.Services), v.UserAgent, v.StartHeight,
		utils.TimeToString(time.Unix(v.Timestamp, 0)))
}
