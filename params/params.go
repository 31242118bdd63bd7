package params

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

const (
	// ProtocolVersion announced in our version message
	ProtocolVersion = int32(70015)

	// UserAgent announced in our version message
	UserAgent = "/996crawler:0.1.0/"

	// MaxPayloadSize is the sanity ceiling of a message payload, 5MB
	MaxPayloadSize = 5000000

	// MaxAddrPerMsg bounds the addresses decoded from one addr message
	MaxAddrPerMsg = 1000
)

// Network holds the constants of the crawled network
type Network struct {
	Name        string
	Magic       wire.BitcoinNet
	DefaultPort uint16
	DNSSeeds    []string
}

var networks = map[string]*chaincfg.Params{
	"mainnet":  &chaincfg.MainNetParams,
	"testnet3": &chaincfg.TestNet3Params,
	"regtest":  &chaincfg.RegressionNetParams,
	"simnet":   &chaincfg.SimNetParams,
}

// NetworkByName returns the network constants derived from the btcd chain params.
// "testnet" is accepted as an alias of "testnet3".
func NetworkByName(name string) (*Network, error) {
	if name == "testnet" {
		name = "testnet3"
	}
	p, ok := networks[name]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", name)
	}

	port, err := strconv.ParseUint(p.DefaultPort, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid default port %q of %s", p.DefaultPort, name)
	}

	result := &Network{
		Name:        name,
		Magic:       p.Net,
		DefaultPort: uint16(port),
	}
	for _, s := range p.DNSSeeds {
		result.DNSSeeds = append(result.DNSSeeds, s.Host)
	}
	return result, nil
}

// MagicValue returns the network magic as it is written on the wire
func (n *Network) MagicValue() uint32 {
	return uint32(n.Magic)
}

func (n *Network) String() string {
	return fmt.Sprintf("%s(magic 0x%08x, port %d)", n.Name, uint32(n.Magic), n.DefaultPort)
}
