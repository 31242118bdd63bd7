package message

import (
	"bytes"
	"encoding/binary"
	"net/netip"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/params"
)

// DecodeAddressRecord decodes a 30 bytes addr record.
// Records which are not IPv4-mapped, or fall in an excluded range, or have port 0 are dropped.
func DecodeAddressRecord(b []byte) (peer.Address, bool) {
	if len(b) < AddressRecordSize {
		return peer.Address{}, false
	}

	// skip timestamp(4) and services(8)
	var raw [16]byte
	copy(raw[:], b[12:28])
	ip := netip.AddrFrom16(raw)
	if !ip.Is4In6() {
		return peer.Address{}, false
	}
	ip = ip.Unmap()
	if !peer.IsRoutable(ip) {
		return peer.Address{}, false
	}

	port := binary.BigEndian.Uint16(b[28:30])
	if port == 0 {
		return peer.Address{}, false
	}
	return peer.Address{IP: ip, Port: port}, true
}

// DecodeAddressList decodes an addr payload, the count is clamped to params.MaxAddrPerMsg.
// A short buffer stops the decoding and the addresses parsed so far are returned.
func DecodeAddressList(payload []byte) []peer.Address {
	count, offset, err := DecodeVarint(payload, 0)
	if err != nil {
		return nil
	}
	if count > params.MaxAddrPerMsg {
		count = params.MaxAddrPerMsg
	}

	var result []peer.Address
	for i := uint64(0); i < count; i++ {
		if len(payload)-offset < AddressRecordSize {
			break
		}
		if addr, ok := DecodeAddressRecord(payload[offset : offset+AddressRecordSize]); ok {
			result = append(result, addr)
		}
		offset += AddressRecordSize
	}
	return result
}

// EncodeAddressList builds an addr payload
func EncodeAddressList(records []TimedAddress) []byte {
	result := new(bytes.Buffer)
	result.Write(EncodeVarint(uint64(len(records))))
	for _, r := range records {
		result.Write(r.Marshal())
	}
	return result.Bytes()
}
