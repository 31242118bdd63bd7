package message

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/params"
)

const testMagic = uint32(0xd9b4bef9)

func TestVarint(t *testing.T) {
	var tests = []struct {
		n    uint64
		size int
	}{
		{0, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
	}

	for _, test := range tests {
		encoded := EncodeVarint(test.n)
		require.Len(t, encoded, test.size)

		value, offset, err := DecodeVarint(encoded, 0)
		require.NoError(t, err)
		require.Equal(t, test.n, value)
		require.Equal(t, len(encoded), offset)

		read, err := ReadVarint(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, test.n, read)
	}
}

func TestVarintTruncated(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0xfd, 0x01},
		{0xfe, 0x01, 0x02, 0x03},
		{0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07},
	} {
		_, _, err := DecodeVarint(data, 0)
		require.ErrorIs(t, err, ErrTruncatedInput)
	}

	// offset inside a larger buffer
	data := append([]byte{0xaa, 0xbb}, EncodeVarint(0x1234)...)
	value, offset, err := DecodeVarint(data, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1234), value)
	require.Equal(t, 5, offset)
}

func TestBuildAndParseHeader(t *testing.T) {
	payload := []byte("hello bitcoin")
	msg, err := BuildMessage(testMagic, CmdVersion, payload)
	require.NoError(t, err)
	require.Len(t, msg, HeaderSize+len(payload))

	// magic is little endian on the wire
	require.Equal(t, []byte{0xf9, 0xbe, 0xb4, 0xd9}, msg[:4])
	require.Equal(t, []byte("version\x00\x00\x00\x00\x00"), msg[4:16])

	h, err := ParseHeader(msg, testMagic, params.MaxPayloadSize)
	require.NoError(t, err)
	require.Equal(t, CmdVersion, h.Command)
	require.Equal(t, uint32(len(payload)), h.Length)
	require.True(t, VerifyChecksum(msg[HeaderSize:], h.Checksum))

	_, err = BuildMessage(testMagic, "thirteenbytes", nil)
	require.ErrorIs(t, err, ErrCommandTooLong)
}

func TestEmptyPayloadChecksum(t *testing.T) {
	// well known checksum of an empty payload, as carried by verack
	msg, err := BuildMessage(testMagic, CmdVerack, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x5d, 0xf6, 0xe0, 0xe2}, msg[20:24])
}

func TestParseHeaderErrors(t *testing.T) {
	msg, _ := BuildMessage(testMagic, CmdPing, EncodeNonce(7))

	_, err := ParseHeader(msg[:HeaderSize-1], testMagic, params.MaxPayloadSize)
	require.ErrorIs(t, err, ErrTruncatedInput)

	_, err = ParseHeader(msg, 0x0709110b, params.MaxPayloadSize)
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = ParseHeader(msg, testMagic, 4)
	require.ErrorIs(t, err, ErrOversizedPayload)

	oversized := append([]byte(nil), msg[:HeaderSize]...)
	binary.LittleEndian.PutUint32(oversized[16:20], params.MaxPayloadSize+1)
	_, err = ParseHeader(oversized, testMagic, params.MaxPayloadSize)
	require.ErrorIs(t, err, ErrOversizedPayload)
}

func TestChecksumBitFlip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x7f, 0x80, 0xff, 0x42}
	claimed := Checksum(payload)

	for i := range payload {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), payload...)
			flipped[i] ^= 1 << bit
			require.False(t, VerifyChecksum(flipped, claimed), "byte %d bit %d", i, bit)
		}
	}
	require.True(t, VerifyChecksum(payload, claimed))
}

func record(ip string, port uint16) []byte {
	addr := peer.Address{IP: netip.MustParseAddr(ip), Port: port}
	return NewTimedAddress(addr, 1, time.Unix(1700000000, 0)).Marshal()
}

func TestDecodeAddressRecord(t *testing.T) {
	b := record("203.0.113.5", 8333)
	require.Len(t, b, AddressRecordSize)

	addr, ok := DecodeAddressRecord(b)
	require.True(t, ok)
	require.Equal(t, peer.Address{IP: netip.MustParseAddr("203.0.113.5"), Port: 8333}, addr)

	_, ok = DecodeAddressRecord(record("10.0.0.5", 8333))
	require.False(t, ok)

	_, ok = DecodeAddressRecord(record("203.0.113.5", 0))
	require.False(t, ok)

	_, ok = DecodeAddressRecord(b[:AddressRecordSize-1])
	require.False(t, ok)

	// native IPv6
	v6 := TimedAddress{NetAddress: NetAddress{IP: netip.MustParseAddr("2001:db8::1"), Port: 8333}}
	_, ok = DecodeAddressRecord(v6.Marshal())
	require.False(t, ok)

	// onion v2 encoded in the OnionCat range
	onion := TimedAddress{NetAddress: NetAddress{IP: netip.MustParseAddr("fd87:d87e:eb43::1"), Port: 8333}}
	_, ok = DecodeAddressRecord(onion.Marshal())
	require.False(t, ok)
}

func TestDecodeAddressList(t *testing.T) {
	var payload []byte
	payload = append(payload, EncodeVarint(4)...)
	payload = append(payload, record("203.0.113.5", 8333)...)
	payload = append(payload, record("192.168.1.4", 8333)...)
	payload = append(payload, record("198.51.100.7", 18333)...)
	payload = append(payload, record("8.8.8.8", 8333)[:10]...)

	addrs := DecodeAddressList(payload)
	require.Equal(t, []peer.Address{
		{IP: netip.MustParseAddr("203.0.113.5"), Port: 8333},
		{IP: netip.MustParseAddr("198.51.100.7"), Port: 18333},
	}, addrs)

	require.Empty(t, DecodeAddressList(nil))
	require.Empty(t, DecodeAddressList([]byte{0xfd, 0x01}))
}

func TestDecodeAddressListClamp(t *testing.T) {
	records := make([]TimedAddress, params.MaxAddrPerMsg+5)
	for i := range records {
		ip := netip.AddrFrom4([4]byte{11, byte(i >> 16), byte(i >> 8), byte(i)})
		records[i] = NewTimedAddress(peer.Address{IP: ip, Port: 8333}, 0, time.Now())
	}

	addrs := DecodeAddressList(EncodeAddressList(records))
	require.Len(t, addrs, params.MaxAddrPerMsg)
}

func TestVersion(t *testing.T) {
	recv := NewNetAddress(peer.Address{IP: netip.MustParseAddr("203.0.113.5"), Port: 8333}, 0)
	v := NewVersion(params.ProtocolVersion, params.UserAgent, recv, 0x1122334455667788)
	v.StartHeight = 840000

	payload := v.Marshal()
	require.Len(t, payload, 4+8+8+26+26+8+1+len(params.UserAgent)+4+1)

	decoded, err := UnmarshalVersion(payload)
	require.NoError(t, err)
	require.Equal(t, v.ProtocolVersion, decoded.ProtocolVersion)
	require.Equal(t, v.Timestamp, decoded.Timestamp)
	require.Equal(t, v.Nonce, decoded.Nonce)
	require.Equal(t, v.UserAgent, decoded.UserAgent)
	require.Equal(t, int32(840000), decoded.StartHeight)
	require.True(t, decoded.Relay)
	require.Equal(t, recv.Port, decoded.AddrRecv.Port)
	require.Equal(t, recv.IP, decoded.AddrRecv.IP.Unmap())
}

func TestVersionOldPeer(t *testing.T) {
	v := NewVersion(60002, "/Satoshi:0.7.2/", NetAddress{}, 1)
	v.StartHeight = 100
	full := v.Marshal()

	// no relay flag
	decoded, err := UnmarshalVersion(full[:len(full)-1])
	require.NoError(t, err)
	require.Equal(t, int32(100), decoded.StartHeight)
	require.False(t, decoded.Relay)

	// stops after the nonce
	decoded, err = UnmarshalVersion(full[:4+8+8+26+26+8])
	require.NoError(t, err)
	require.Equal(t, uint64(1), decoded.Nonce)
	require.Empty(t, decoded.UserAgent)

	_, err = UnmarshalVersion(full[:30])
	require.ErrorIs(t, err, ErrTruncatedInput)

	broken := append([]byte(nil), full[:4+8+8+26+26+8]...)
	broken = append(broken, EncodeVarint(MaxUserAgentLen+1)...)
	_, err = UnmarshalVersion(broken)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNonce(t *testing.T) {
	nonce, ok := DecodeNonce(EncodeNonce(0xdeadbeef))
	require.True(t, ok)
	require.Equal(t, uint64(0xdeadbeef), nonce)

	_, ok = DecodeNonce(nil)
	require.False(t, ok)
}

func TestVersionString(t *testing.T) {
	v := &Version{ProtocolVersion: 70016, Services: 1, UserAgent: "/Satoshi:26.0.0/", Timestamp: 1700000000}
	require.Contains(t, v.String(), "SFNodeNetwork")
}
