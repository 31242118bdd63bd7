package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/996BC/btccrawler/p2p/peer"
)

const (
	netAddressSize = 26
	// AddressRecordSize is the size of one timestamped record in an addr payload
	AddressRecordSize = 30
)

// NetAddress is the network address form used in version and addr payloads
type NetAddress struct {
	Services uint64
	IP       netip.Addr
	Port     uint16
}

// NewNetAddress returns the NetAddress of a peer address
func NewNetAddress(addr peer.Address, services uint64) NetAddress {
	return NetAddress{
		Services: services,
		IP:       addr.IP,
		Port:     addr.Port,
	}
}

func UnmarshalNetAddress(data io.Reader) (NetAddress, error) {
	result := NetAddress{}
	var ip [16]byte

	if err := binary.Read(data, binary.LittleEndian, &result.Services); err != nil {
		return result, ErrTruncatedInput
	}
	if err := binary.Read(data, binary.BigEndian, &ip); err != nil {
		return result, ErrTruncatedInput
	}
	if err := binary.Read(data, binary.BigEndian, &result.Port); err != nil {
		return result, ErrTruncatedInput
	}
	result.IP = netip.AddrFrom16(ip)
	return result, nil
}

func (n NetAddress) Marshal() []byte {
	result := bytes.NewBuffer(make([]byte, 0, netAddressSize))
	binary.Write(result, binary.LittleEndian, n.Services)
	ip := n.ip16()
	result.Write(ip[:])
	binary.Write(result, binary.BigEndian, n.Port)
	return result.Bytes()
}

// the zero IP is written as ::
func (n NetAddress) ip16() [16]byte {
	if !n.IP.IsValid() {
		return [16]byte{}
	}
	return n.IP.As16()
}

func (n NetAddress) String() string {
	return fmt.Sprintf("%s services %d", netip.AddrPortFrom(n.IP.Unmap(), n.Port), n.Services)
}

// TimedAddress is one record of an addr payload
type TimedAddress struct {
	Timestamp uint32
	NetAddress
}

// NewTimedAddress returns the addr record of a peer address seen at t
func NewTimedAddress(addr peer.Address, services uint64, t time.Time) TimedAddress {
	return TimedAddress{
		Timestamp:  uint32(t.Unix()),
		NetAddress: NewNetAddress(addr, services),
	}
}

func (t TimedAddress) Marshal() []byte {
	result := bytes.NewBuffer(make([]byte, 0, AddressRecordSize))
	binary.Write(result, binary.LittleEndian, t.Timestamp)
	result.Write(t.NetAddress.Marshal())
	return result.Bytes()
}
